package event

import (
	"log/slog"
)

// Handler processes one normalized event. Handlers run synchronously
// on the publishing goroutine, in registration order.
type Handler func(Event)

// Dispatcher is a typed publish/subscribe registry keyed by event
// kind. It is not safe for concurrent use; the listener loop drives it
// from a single goroutine.
type Dispatcher struct {
	logger   *slog.Logger
	handlers map[Kind][]Handler
}

// NewDispatcher returns an empty dispatcher. A nil logger uses
// slog.Default().
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[Kind][]Handler),
	}
}

// Subscribe appends handler to the ordered handler list for kind.
func (d *Dispatcher) Subscribe(kind Kind, handler Handler) {
	d.handlers[kind] = append(d.handlers[kind], handler)
}

// Publish invokes all handlers registered for the event's kind, in
// registration order. A panicking handler is recovered and logged so
// it cannot block the remaining handlers or subsequent events.
func (d *Dispatcher) Publish(ev Event) {
	for _, handler := range d.handlers[ev.Kind()] {
		d.invoke(handler, ev)
	}
}

// invoke runs one handler with panic isolation.
func (d *Dispatcher) invoke(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", "kind", ev.Kind(), "panic", r)
		}
	}()
	handler(ev)
}
