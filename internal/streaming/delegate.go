// Package streaming negotiates and runs the encrypted RTP sessions a camera
// serves to viewers: session registries, transcoder arguments, the two-way
// audio description and the return-port watchdog.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pion/srtp/v3"

	"github.com/smazurov/camstream/internal/config"
	"github.com/smazurov/camstream/internal/events"
	"github.com/smazurov/camstream/internal/ffmpeg"
	"github.com/smazurov/camstream/internal/logging"
	"github.com/smazurov/camstream/internal/process"
)

// ErrClosed is returned by PrepareStream after Close.
var ErrClosed = errors.New("camera is shutting down")

// Options configures a Delegate.
type Options struct {
	Camera     string
	Executable string
	Config     config.VideoConfig
	Controller Controller
	Logger     *slog.Logger
	Events     events.Publisher

	// WatchdogUnit scales rtcp_interval. Defaults to one second.
	WatchdogUnit time.Duration
}

type pendingSession struct {
	target     Target
	preparedAt time.Time
}

type activeSession struct {
	target    Target
	main      *process.Supervisor
	ret       *process.Supervisor
	watchdog  *watchdog
	startedAt time.Time
}

// Delegate manages the streaming sessions of one camera. It owns the
// pending and active registries; they change only through PrepareStream,
// StartStream and StopStream.
type Delegate struct {
	opts         Options
	logger       *slog.Logger
	returnLogger *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingSession
	active  map[string]*activeSession
	closed  bool
}

// NewDelegate creates the session manager for a camera.
func NewDelegate(opts Options) *Delegate {
	if opts.Executable == "" {
		opts.Executable = ffmpeg.DefaultExecutable
	}
	if opts.Config.MaxStreams <= 0 {
		opts.Config.MaxStreams = config.DefaultMaxStreams
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.ForCamera(opts.Camera, opts.Config.Debug)
	}

	return &Delegate{
		opts:         opts,
		logger:       logger,
		returnLogger: logging.ForCamera(opts.Camera, opts.Config.DebugReturn).With("leg", "two-way"),
		pending:      make(map[string]*pendingSession),
		active:       make(map[string]*activeSession),
	}
}

// Camera returns the camera name.
func (d *Delegate) Camera() string {
	return d.opts.Camera
}

// PrepareStream allocates the local return ports and synchronization
// sources for a session and remembers the viewer's parameters.
func (d *Delegate) PrepareStream(ctx context.Context, req PrepareRequest) (*PrepareResponse, error) {
	if err := validateEndpoint("video", req.Video); err != nil {
		return nil, NewStreamError(ErrCodeInvalidSRTP, "video endpoint", err)
	}
	if err := validateEndpoint("audio", req.Audio); err != nil {
		return nil, NewStreamError(ErrCodeInvalidSRTP, "audio endpoint", err)
	}
	for _, ep := range []struct {
		name  string
		suite SRTPCryptoSuite
	}{{"video", req.Video.SRTPCryptoSuite}, {"audio", req.Audio.SRTPCryptoSuite}} {
		if ep.suite != SuiteAESCM128HMACSHA180 {
			d.logger.Warn("Unsupported crypto suite requested, streaming with AES_CM_128_HMAC_SHA1_80",
				"session_id", req.SessionID, "stream", ep.name, "suite", ep.suite.String())
		}
	}

	if d.isActive(req.SessionID) {
		return nil, NewStreamError(ErrCodeSessionActive, "prepare "+req.SessionID, ErrSessionActive)
	}

	ipv6 := req.AddressVersion == AddressIPv6
	ports, err := allocatePorts(ctx, 2, ipv6, req.Video.Port, req.Audio.Port)
	if err != nil {
		return nil, NewStreamError(ErrCodePortAllocation, "failed to allocate return ports", err)
	}
	ssrcs, err := generateSSRCs(2)
	if err != nil {
		return nil, err
	}

	target := Target{
		Address: req.TargetAddress,
		IPv6:    ipv6,
		Video: Leg{
			Port:        req.Video.Port,
			ReturnPort:  ports[0],
			SSRC:        ssrcs[0],
			Key:         req.Video.SRTPKey,
			Salt:        req.Video.SRTPSalt,
			CryptoSuite: req.Video.SRTPCryptoSuite,
		},
		Audio: Leg{
			Port:        req.Audio.Port,
			ReturnPort:  ports[1],
			SSRC:        ssrcs[1],
			Key:         req.Audio.SRTPKey,
			Salt:        req.Audio.SRTPSalt,
			CryptoSuite: req.Audio.SRTPCryptoSuite,
		},
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := d.active[req.SessionID]; ok {
		d.mu.Unlock()
		return nil, NewStreamError(ErrCodeSessionActive, "prepare "+req.SessionID, ErrSessionActive)
	}
	d.pending[req.SessionID] = &pendingSession{target: target, preparedAt: time.Now()}
	d.updateGaugesLocked()
	d.mu.Unlock()

	d.logger.Debug("Prepared session", "session_id", req.SessionID,
		"address", req.TargetAddress, "video_return_port", ports[0], "audio_return_port", ports[1])
	d.publish(events.SessionPreparedEvent{
		Camera:          d.opts.Camera,
		SessionID:       req.SessionID,
		VideoReturnPort: ports[0],
		AudioReturnPort: ports[1],
		Timestamp:       now(),
	})

	return &PrepareResponse{
		Video: EndpointResponse{
			Port:     ports[0],
			SSRC:     ssrcs[0],
			SRTPKey:  req.Video.SRTPKey,
			SRTPSalt: req.Video.SRTPSalt,
		},
		Audio: EndpointResponse{
			Port:     ports[1],
			SSRC:     ssrcs[1],
			SRTPKey:  req.Audio.SRTPKey,
			SRTPSalt: req.Audio.SRTPSalt,
		},
	}, nil
}

// validateEndpoint checks key and salt lengths for the suite the transcoder
// will use. Other suites are accepted and downgraded with a warning.
func validateEndpoint(name string, ep MediaEndpoint) error {
	if ep.SRTPCryptoSuite != SuiteAESCM128HMACSHA180 {
		return nil
	}
	profile := srtp.ProtectionProfileAes128CmHmacSha1_80
	keyLen, err := profile.KeyLen()
	if err != nil {
		return err
	}
	saltLen, err := profile.SaltLen()
	if err != nil {
		return err
	}
	if len(ep.SRTPKey) != keyLen || len(ep.SRTPSalt) != saltLen {
		return fmt.Errorf("%w: %s key/salt must be %d/%d bytes, got %d/%d",
			ErrInvalidSRTP, name, keyLen, saltLen, len(ep.SRTPKey), len(ep.SRTPSalt))
	}
	return nil
}

// StartStream spawns the transcoder for a prepared session. The callback is
// invoked exactly once: with nil when the transcoder produced its first
// output, or with the reason the start failed.
func (d *Delegate) StartStream(req StartRequest, callback func(error)) {
	if callback == nil {
		callback = func(error) {}
	}
	cfg := d.opts.Config

	d.mu.Lock()
	pending, ok := d.pending[req.SessionID]
	if !ok {
		d.mu.Unlock()
		d.logger.Error("Error finding session information.", "session_id", req.SessionID)
		recordStart(d.opts.Camera, StartNotFound)
		callback(NewStreamError(ErrCodeSessionNotFound, "start "+req.SessionID, ErrSessionNotFound))
		return
	}
	if _, ok := d.active[req.SessionID]; ok {
		delete(d.pending, req.SessionID)
		d.updateGaugesLocked()
		d.mu.Unlock()
		d.logger.Error("Session is already streaming", "session_id", req.SessionID)
		recordStart(d.opts.Camera, StartRejected)
		callback(NewStreamError(ErrCodeSessionActive, "start "+req.SessionID, ErrSessionActive))
		return
	}
	if len(d.active) >= cfg.MaxStreams {
		d.mu.Unlock()
		d.logger.Error("Too many active streams", "session_id", req.SessionID, "max_streams", cfg.MaxStreams)
		recordStart(d.opts.Camera, StartRejected)
		callback(NewStreamError(ErrCodeTooManyStreams, fmt.Sprintf("limit is %d", cfg.MaxStreams), ErrTooManyStreams))
		return
	}
	target := pending.target

	args, settings := BuildArgs(cfg, target, req)
	d.logger.Debug("Video stream requested", "session_id", req.SessionID,
		"width", req.Video.Width, "height", req.Video.Height, "fps", req.Video.FPS, "kbps", req.Video.MaxBitRate)
	d.logger.Info("Starting video stream", "session_id", req.SessionID,
		"width", nativeOr(settings.Width), "height", nativeOr(settings.Height),
		"fps", nativeOr(settings.FPS), "kbps", settings.Bitrate, "audio", audioLabel(cfg, req.Audio))
	if settings.UnsupportedAudio != "" {
		d.logger.Error("Unsupported audio codec requested", "session_id", req.SessionID, "codec", settings.UnsupportedAudio)
	}

	sessionID := req.SessionID
	dog, err := startWatchdog(watchdogOptions{
		IPv6:     target.IPv6,
		Port:     target.Video.ReturnPort,
		Timeout:  watchdogTimeout(req.Video.RTCPInterval, d.opts.WatchdogUnit),
		Logger:   d.logger.With("session_id", sessionID),
		OnPacket: func(kind string, size int) { d.onReturnPacket(sessionID, kind, size) },
		OnExpire: func() { d.onWatchdogExpired(sessionID) },
		OnError:  func(error) { d.StopStream(sessionID) },
	})
	if err != nil {
		d.mu.Unlock()
		d.logger.Error("Socket error", "session_id", sessionID, "error", err)
		recordStart(d.opts.Camera, StartFailed)
		callback(NewStreamError(ErrCodeSocket, "watchdog", err))
		d.StopStream(sessionID)
		return
	}

	session := &activeSession{
		target:    target,
		watchdog:  dog,
		startedAt: time.Now(),
	}
	session.main = process.New(process.Options{
		Executable: d.opts.Executable,
		Args:       args.String(),
		SessionID:  sessionID,
		Logger:     d.logger,
		Debug:      cfg.Debug,
		Owner:      d,
		Controller: d,
		OnStart:    callback,
		OnProgress: func(p *ffmpeg.Progress) { d.onProgress(sessionID, p) },
	})

	var sessionDescription string
	if cfg.ReturnAudioTarget != "" {
		sessionDescription, err = BuildReturnAudioSDP(target)
		if err != nil {
			d.logger.Error("Failed to build two-way audio description", "session_id", sessionID, "error", err)
		} else {
			session.ret = process.New(process.Options{
				Executable: d.opts.Executable,
				Args:       ReturnAudioArgs(cfg).String(),
				SessionID:  sessionID,
				Logger:     d.returnLogger,
				Debug:      cfg.DebugReturn,
				Owner:      d,
				Controller: d,
			})
		}
	}

	d.active[sessionID] = session
	delete(d.pending, sessionID)
	d.updateGaugesLocked()
	d.mu.Unlock()

	if err := session.main.Start(); err != nil {
		recordStart(d.opts.Camera, StartFailed)
		return
	}
	recordStart(d.opts.Camera, StartOK)

	if session.ret != nil {
		d.startReturnAudio(sessionID, session.ret, sessionDescription)
	}

	d.publish(events.SessionStartedEvent{
		Camera:    d.opts.Camera,
		SessionID: sessionID,
		Codec:     settings.Codec,
		Width:     settings.Width,
		Height:    settings.Height,
		FPS:       settings.FPS,
		Bitrate:   settings.Bitrate,
		Audio:     settings.Audio,
		TwoWay:    session.ret != nil,
		Timestamp: now(),
	})
}

func (d *Delegate) startReturnAudio(sessionID string, ret *process.Supervisor, description string) {
	if err := ret.Start(); err != nil {
		return
	}
	stdin := ret.Stdin()
	if stdin == nil {
		return
	}
	if _, err := stdin.Write([]byte(description)); err != nil {
		d.returnLogger.Debug("Failed to write session description", "session_id", sessionID, "error", err)
	}
	if err := stdin.Close(); err != nil {
		d.returnLogger.Debug("Failed to close transcoder input", "session_id", sessionID, "error", err)
	}
}

// Reconfigure is accepted and ignored; the running transcoder keeps its
// parameters.
func (d *Delegate) Reconfigure(req ReconfigureRequest) {
	d.logger.Debug("Received request to reconfigure (Ignored)", "session_id", req.SessionID,
		"width", req.Video.Width, "height", req.Video.Height, "fps", req.Video.FPS, "kbps", req.Video.MaxBitRate)
}

func (d *Delegate) isActive(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[sessionID]
	return ok
}

// StopStream tears a session down. Pending sessions are discarded; active
// sessions have their watchdog, main and two-way transcoders released
// independently. Unknown ids are ignored.
func (d *Delegate) StopStream(sessionID string) {
	d.mu.Lock()
	_, wasPending := d.pending[sessionID]
	delete(d.pending, sessionID)
	session, wasActive := d.active[sessionID]
	delete(d.active, sessionID)
	d.updateGaugesLocked()
	d.mu.Unlock()

	if !wasActive {
		if wasPending {
			d.logger.Debug("Discarded prepared session", "session_id", sessionID)
			d.publish(events.SessionStoppedEvent{
				Camera:    d.opts.Camera,
				SessionID: sessionID,
				Pending:   true,
				Timestamp: now(),
			})
		} else {
			d.logger.Debug("Stop requested for unknown session", "session_id", sessionID)
		}
		return
	}

	d.release(sessionID, session)
	d.logger.Info("Stopped video stream.", "session_id", sessionID,
		"duration", time.Since(session.startedAt).Round(time.Millisecond).String())
	d.publish(events.SessionStoppedEvent{
		Camera:    d.opts.Camera,
		SessionID: sessionID,
		Timestamp: now(),
	})
}

func (d *Delegate) release(sessionID string, session *activeSession) {
	if session.watchdog != nil {
		d.safely(sessionID, "closing socket", session.watchdog.Stop)
	}
	if session.main != nil {
		d.safely(sessionID, "terminating main transcoder", func() error {
			session.main.Stop()
			return nil
		})
	}
	if session.ret != nil {
		d.safely(sessionID, "terminating two-way transcoder", func() error {
			session.ret.Stop()
			return nil
		})
	}
}

// safely runs one teardown step so a failure cannot skip the others.
func (d *Delegate) safely(sessionID, step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Error occurred "+step, "session_id", sessionID, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		d.logger.Error("Error occurred "+step, "session_id", sessionID, "error", err)
	}
}

// HandleStreamRequest dispatches a combined stream request.
func (d *Delegate) HandleStreamRequest(req StreamRequest, callback func(error)) {
	if callback == nil {
		callback = func(error) {}
	}
	switch req.Type {
	case RequestStart:
		d.StartStream(StartRequest{SessionID: req.SessionID, Video: req.Video, Audio: req.Audio}, callback)
	case RequestReconfigure:
		d.Reconfigure(ReconfigureRequest{SessionID: req.SessionID, Video: req.Video})
		callback(nil)
	case RequestStop:
		d.StopStream(req.SessionID)
		callback(nil)
	default:
		callback(fmt.Errorf("unknown stream request type %q", req.Type))
	}
}

// ForceStopStreamingSession ends the protocol session the viewer still
// considers running. Supervisors call it when a started transcoder fails.
func (d *Delegate) ForceStopStreamingSession(sessionID string) {
	recordForceStop(d.opts.Camera)
	d.publish(events.SessionForceStoppedEvent{
		Camera:    d.opts.Camera,
		SessionID: sessionID,
		Timestamp: now(),
	})
	if d.opts.Controller != nil {
		d.opts.Controller.ForceStopStreamingSession(sessionID)
	}
}

func (d *Delegate) onWatchdogExpired(sessionID string) {
	d.logger.Info("Device appears to be inactive. Stopping stream.", "session_id", sessionID)
	recordWatchdogExpiration(d.opts.Camera)
	d.ForceStopStreamingSession(sessionID)
	d.StopStream(sessionID)
}

func (d *Delegate) onReturnPacket(sessionID, kind string, size int) {
	recordReturnPacket(d.opts.Camera, kind, size)
	d.publish(events.WatchdogPacketEvent{
		Camera:    d.opts.Camera,
		SessionID: sessionID,
		Kind:      kind,
		Bytes:     size,
	})
}

func (d *Delegate) onProgress(sessionID string, p *ffmpeg.Progress) {
	d.publish(events.SessionProgressEvent{
		Camera:     d.opts.Camera,
		SessionID:  sessionID,
		Frame:      p.Frame,
		FPS:        p.FPS,
		Bitrate:    p.Bitrate,
		DropFrames: p.DropFrames,
		DupFrames:  p.DupFrames,
		Speed:      p.Speed,
	})
}

// Sessions returns a snapshot of the pending and active sessions sorted by id.
func (d *Delegate) Sessions() []SessionInfo {
	d.mu.Lock()
	out := make([]SessionInfo, 0, len(d.pending)+len(d.active))
	for id, p := range d.pending {
		out = append(out, SessionInfo{
			SessionID:       id,
			State:           "pending",
			Address:         p.target.Address,
			VideoReturnPort: p.target.Video.ReturnPort,
			AudioReturnPort: p.target.Audio.ReturnPort,
		})
	}
	for id, a := range d.active {
		out = append(out, SessionInfo{
			SessionID:       id,
			State:           "active",
			Address:         a.target.Address,
			VideoReturnPort: a.target.Video.ReturnPort,
			AudioReturnPort: a.target.Audio.ReturnPort,
			TwoWay:          a.ret != nil,
		})
	}
	d.mu.Unlock()

	slices.SortFunc(out, func(a, b SessionInfo) int {
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return out
}

// ActiveCount returns the number of running sessions.
func (d *Delegate) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// Close stops every pending and active session. Further prepares fail.
func (d *Delegate) Close() {
	d.mu.Lock()
	d.closed = true
	ids := make([]string, 0, len(d.pending)+len(d.active))
	for id := range d.pending {
		ids = append(ids, id)
	}
	for id := range d.active {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		d.StopStream(id)
	}
}

func (d *Delegate) updateGaugesLocked() {
	setSessionCounts(d.opts.Camera, len(d.pending), len(d.active))
}

func (d *Delegate) publish(ev events.Event) {
	if d.opts.Events != nil {
		d.opts.Events.Publish(ev)
	}
}

func nativeOr(v int) any {
	if v > 0 {
		return v
	}
	return "native"
}

func audioLabel(cfg config.VideoConfig, audio AudioRequest) string {
	if !cfg.Audio {
		return "none"
	}
	return string(audio.Codec)
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
