// Package cameras keeps the registry of configured cameras. Each camera owns
// a streaming delegate and a snapshot pipeline built from its video settings.
package cameras

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/camstream/internal/config"
	"github.com/smazurov/camstream/internal/events"
	"github.com/smazurov/camstream/internal/ffmpeg"
	"github.com/smazurov/camstream/internal/logging"
	"github.com/smazurov/camstream/internal/metrics"
	"github.com/smazurov/camstream/internal/snapshot"
	"github.com/smazurov/camstream/internal/streaming"
)

// ErrCameraNotFound is returned when no camera has the requested name.
var ErrCameraNotFound = errors.New("camera not found")

// Camera is one configured camera.
type Camera struct {
	Config    config.CameraConfig
	Delegate  *streaming.Delegate
	Snapshots *snapshot.Pipeline

	executable string
}

// Name returns the camera name.
func (c *Camera) Name() string {
	return c.Config.Name
}

func (c *Camera) close() {
	c.Delegate.Close()
	c.Snapshots.Close()
}

// Options configures a Manager.
type Options struct {
	// Controller receives force-stop notifications. When nil they are logged.
	Controller streaming.Controller
	Events     events.Publisher
	Logger     *slog.Logger

	// WatchdogUnit is passed to every delegate; zero means seconds.
	WatchdogUnit time.Duration
}

// Diff lists what an Apply changed.
type Diff struct {
	Added    []string
	Removed  []string
	Replaced []string
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Replaced) == 0
}

// Manager owns the cameras.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	cameras map[string]*Camera
	closed  bool
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("cameras")
	}
	if opts.Controller == nil {
		opts.Controller = logController{logger: logger}
	}
	return &Manager{
		opts:    opts,
		logger:  logger,
		cameras: make(map[string]*Camera),
	}
}

// Apply brings the registry in line with cfg. Cameras whose settings did
// not change keep running; changed cameras are recreated, which stops their
// sessions; cameras no longer configured are closed.
func (m *Manager) Apply(cfg *config.CamerasConfig) Diff {
	executable := cfg.VideoProcessor
	if executable == "" {
		executable = ffmpeg.DefaultExecutable
	}

	var diff Diff
	var retired []*Camera

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return diff
	}

	wanted := make(map[string]bool, len(cfg.Cameras))
	for _, camCfg := range cfg.Cameras {
		wanted[camCfg.Name] = true
		old, exists := m.cameras[camCfg.Name]
		if exists && old.executable == executable && reflect.DeepEqual(old.Config, camCfg) {
			continue
		}
		if exists {
			retired = append(retired, old)
			diff.Replaced = append(diff.Replaced, camCfg.Name)
		} else {
			diff.Added = append(diff.Added, camCfg.Name)
		}
		m.cameras[camCfg.Name] = m.newCamera(camCfg, executable)
	}

	for name, cam := range m.cameras {
		if !wanted[name] {
			retired = append(retired, cam)
			diff.Removed = append(diff.Removed, name)
			delete(m.cameras, name)
		}
	}
	count := len(m.cameras)
	m.mu.Unlock()

	for _, cam := range retired {
		cam.close()
	}
	for _, name := range diff.Removed {
		streaming.DeleteCameraMetrics(name)
	}
	slices.Sort(diff.Added)
	slices.Sort(diff.Removed)
	slices.Sort(diff.Replaced)

	metrics.SetCameraCount(count)
	if !diff.Empty() {
		m.logger.Info("Cameras updated", "added", diff.Added, "removed", diff.Removed, "replaced", diff.Replaced)
		m.publish(events.CamerasReloadedEvent{
			Added:     diff.Added,
			Removed:   diff.Removed,
			Replaced:  diff.Replaced,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	return diff
}

func (m *Manager) newCamera(cfg config.CameraConfig, executable string) *Camera {
	logger := logging.ForCamera(cfg.Name, cfg.Video.Debug)
	name := cfg.Name

	return &Camera{
		Config:     cfg,
		executable: executable,
		Delegate: streaming.NewDelegate(streaming.Options{
			Camera:       name,
			Executable:   executable,
			Config:       cfg.Video,
			Controller:   m.opts.Controller,
			Logger:       logger,
			Events:       m.opts.Events,
			WatchdogUnit: m.opts.WatchdogUnit,
		}),
		Snapshots: snapshot.New(snapshot.Options{
			Camera:     name,
			Executable: executable,
			Config:     cfg.Video,
			Unbridge:   cfg.Unbridge,
			Logger:     logger,
			OnFetch:    m.onFetch,
		}),
	}
}

func (m *Manager) onFetch(r snapshot.FetchResult) {
	ev := events.SnapshotFetchedEvent{
		Camera:    r.Camera,
		Seconds:   r.Elapsed.Seconds(),
		Bytes:     r.Bytes,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	m.publish(ev)
}

// Get returns the named camera.
func (m *Manager) Get(name string) (*Camera, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cam, ok := m.cameras[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, name)
	}
	return cam, nil
}

// List returns all cameras sorted by name.
func (m *Manager) List() []*Camera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Camera, 0, len(m.cameras))
	for _, name := range slices.Sorted(maps.Keys(m.cameras)) {
		out = append(out, m.cameras[name])
	}
	return out
}

// Close stops every camera. The registry accepts no further changes.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	cams := slices.Collect(maps.Values(m.cameras))
	m.cameras = make(map[string]*Camera)
	m.mu.Unlock()

	for _, cam := range cams {
		cam.close()
	}
}

func (m *Manager) publish(ev events.Event) {
	if m.opts.Events != nil {
		m.opts.Events.Publish(ev)
	}
}

// logController stands in for a protocol layer that cannot be told about
// force stops; viewers notice through the closed stream.
type logController struct {
	logger *slog.Logger
}

func (c logController) ForceStopStreamingSession(sessionID string) {
	c.logger.Warn("Force-stopping streaming session", "session_id", sessionID)
}
