package watchdog

import (
	"time"
)

// EventKind names a step of the watchdog cycle.
type EventKind string

const (
	EventListening     EventKind = "listening"
	EventBindFailed    EventKind = "bind_failed"
	EventAccepted      EventKind = "accepted"
	EventDisconnected  EventKind = "disconnected"
	EventTokenAdvanced EventKind = "token_advanced"
	EventLaunchOK      EventKind = "launch_ok"
	EventLaunchFailed  EventKind = "launch_failed"
)

// Event is emitted by the server and launcher loops.
type Event struct {
	Kind       EventKind
	SocketName string
	Token      Token
	Err        error
	Time       time.Time
}

// Details is the error text, if any.
func (e Event) Details() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Observer receives watchdog events. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// MultiObserver fans an event out to every non-nil observer.
type MultiObserver []Observer

func (m MultiObserver) Observe(e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
