package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camstream/internal/events"
	"github.com/smazurov/camstream/internal/metrics/exporters"
)

// registerSSERoutes registers the session and camera event stream.
func (s *Server) registerSSERoutes() {
	eventTypes := exporters.GetEventTypes()
	delete(eventTypes, "session-metrics")

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of session lifecycle, snapshot and camera reload events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, eventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionPreparedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionStoppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionForceStoppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SnapshotFetchedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CamerasReloadedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Lets clients tell "connected, nothing happening" from a dead stream.
		hello := events.CamerasReloadedEvent{Timestamp: time.Now().Format(time.RFC3339)}
		for _, cam := range s.cameras.List() {
			hello.Added = append(hello.Added, cam.Name())
		}
		if err := send.Data(hello); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
