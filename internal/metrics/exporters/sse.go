package exporters

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/camstream/internal/events"
	"github.com/smazurov/camstream/internal/metrics"
)

const defaultSSEInterval = time.Second

// SSEExporter republishes the transcoder figures of every running session
// on the event bus once per interval, ordered by session ID.
type SSEExporter struct {
	bus      events.Publisher
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSSEExporter creates an exporter publishing to bus. It does nothing until Start.
func NewSSEExporter(bus events.Publisher) *SSEExporter {
	return &SSEExporter{bus: bus, interval: defaultSSEInterval}
}

// Start launches the publishing loop. It runs until ctx ends or Stop is
// called; starting a running exporter has no effect.
func (s *SSEExporter) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop ends the loop and waits for it to return.
func (s *SSEExporter) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *SSEExporter) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish()
		}
	}
}

func (s *SSEExporter) publish() {
	sessions := metrics.GetAllSessionMetrics()
	for _, id := range slices.Sorted(maps.Keys(sessions)) {
		s.bus.Publish(metricsEvent(id, sessions[id]))
	}
}

func metricsEvent(sessionID string, m *metrics.SessionMetrics) events.SessionMetricsEvent {
	count := func(v float64) string { return strconv.FormatFloat(v, 'f', 0, 64) }
	return events.SessionMetricsEvent{
		EventType:       "session_metrics",
		Camera:          m.Camera,
		SessionID:       sessionID,
		FPS:             strconv.FormatFloat(m.FPS, 'f', 2, 64),
		DroppedFrames:   count(m.DroppedFrames),
		DuplicateFrames: count(m.DuplicateFrames),
	}
}

// GetEventTypes maps SSE event names to their payloads for the events and
// metrics endpoints.
func GetEventTypes() map[string]any {
	return map[string]any{
		"session-metrics":       events.SessionMetricsEvent{},
		"session-prepared":      events.SessionPreparedEvent{},
		"session-started":       events.SessionStartedEvent{},
		"session-stopped":       events.SessionStoppedEvent{},
		"session-force-stopped": events.SessionForceStoppedEvent{},
		"snapshot-fetched":      events.SnapshotFetchedEvent{},
		"cameras-reloaded":      events.CamerasReloadedEvent{},
	}
}
