package events

import (
	"github.com/kelindar/event"
)

// Publisher is the publishing half of Bus.
type Publisher interface {
	Publish(ev Event)
}

// Bus fans events out to typed subscribers through a kelindar/event
// dispatcher. Delivery is asynchronous and ordered per subscriber.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// route adapts one concrete event type to the dispatcher, which routes on
// the static type of the value it is given.
type route struct {
	publish   func(*event.Dispatcher, Event)
	subscribe func(*event.Dispatcher, any) (func(), bool)
}

func routeFor[T Event]() route {
	return route{
		publish: func(d *event.Dispatcher, ev Event) {
			event.Publish(d, ev.(T))
		},
		subscribe: func(d *event.Dispatcher, handler any) (func(), bool) {
			fn, ok := handler.(func(T))
			if !ok {
				return nil, false
			}
			return event.Subscribe(d, fn), true
		},
	}
}

var routes = map[uint32]route{
	TypeSessionPrepared:     routeFor[SessionPreparedEvent](),
	TypeSessionStarted:      routeFor[SessionStartedEvent](),
	TypeSessionStopped:      routeFor[SessionStoppedEvent](),
	TypeSessionForceStopped: routeFor[SessionForceStoppedEvent](),
	TypeSessionProgress:     routeFor[SessionProgressEvent](),
	TypeWatchdogPacket:      routeFor[WatchdogPacketEvent](),
	TypeSnapshotFetched:     routeFor[SnapshotFetchedEvent](),
	TypeCamerasReloaded:     routeFor[CamerasReloadedEvent](),
	TypeSessionMetrics:      routeFor[SessionMetricsEvent](),
	TypeLogEntry:            routeFor[LogEntryEvent](),
}

// Publish delivers ev to every subscriber of its type. Events of types the
// bus does not know are dropped.
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		return
	}
	if r, ok := routes[ev.Type()]; ok {
		r.publish(b.dispatcher, ev)
	}
}

// Subscribe registers handler, a func taking one concrete event type such
// as func(SessionStartedEvent), and returns the function that removes it.
// Handlers of any other shape are ignored.
func (b *Bus) Subscribe(handler any) func() {
	for _, r := range routes {
		if unsub, ok := r.subscribe(b.dispatcher, handler); ok {
			return unsub
		}
	}
	return func() {}
}

// SubscribeToChannel forwards events of type T into ch for select-based
// consumers such as SSE handlers. When ch is full the event is dropped for
// that subscriber only.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		offer(ch, e)
	})
}

func offer(ch chan<- any, v any) {
	select {
	case ch <- v:
	default:
	}
}
