package client

import "sync"

// Handler receives one dispatched event. Handlers run synchronously on the
// receive loop in registration order; long-running work belongs in the
// handler's own goroutine.
type Handler func(Event)

type observerEntry struct {
	id int
	fn Handler
}

// observers is an interest-based callback registry. Dispatch iterates a
// snapshot, so On and Off are safe to call from inside a handler.
type observers struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string][]observerEntry
}

func newObservers() *observers {
	return &observers{handlers: make(map[string][]observerEntry)}
}

func (o *observers) On(event string, fn Handler) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	o.handlers[event] = append(o.handlers[event], observerEntry{id: o.nextID, fn: fn})
	return o.nextID
}

// Off removes a registration by id; removing an id that is already gone is
// a no-op.
func (o *observers) Off(event string, id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entries := o.handlers[event]
	for i, e := range entries {
		if e.id == id {
			o.handlers[event] = append(append([]observerEntry{}, entries[:i]...), entries[i+1:]...)
			return
		}
	}
}

func (o *observers) dispatch(evt Event) {
	o.mu.Lock()
	entries := make([]observerEntry, len(o.handlers[evt.Type]))
	copy(entries, o.handlers[evt.Type])
	o.mu.Unlock()

	for _, e := range entries {
		e.fn(evt)
	}
}
