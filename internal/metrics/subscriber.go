package metrics

import (
	"github.com/smazurov/camstream/internal/events"
)

// Subscriber is the part of the event bus the metrics need.
type Subscriber interface {
	Subscribe(handler any) func()
}

// SubscribeToEvents keeps the metrics in step with session and snapshot
// events. The returned function unsubscribes all handlers.
func SubscribeToEvents(bus Subscriber) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.SessionProgressEvent) {
			SetSessionProgress(e.Camera, e.SessionID, Progress{
				Frame:      e.Frame,
				FPS:        e.FPS,
				Bitrate:    e.Bitrate,
				DropFrames: e.DropFrames,
				DupFrames:  e.DupFrames,
				Speed:      e.Speed,
			})
		}),
		bus.Subscribe(func(e events.SessionStoppedEvent) {
			DeleteSessionMetrics(e.Camera, e.SessionID)
		}),
		bus.Subscribe(func(e events.SnapshotFetchedEvent) {
			ObserveSnapshot(e.Camera, e.Seconds, e.Bytes, e.Error != "")
		}),
		bus.Subscribe(func(e events.CamerasReloadedEvent) {
			RecordCameraReload()
			for _, camera := range e.Removed {
				DeleteSnapshotMetrics(camera)
			}
		}),
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
