package event

import (
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
)

// Handler receives a published event.
type Handler func(Event)

// wildcard is the pseudo event type used by SubscribeAll.
const wildcard = "*"

type subscription struct {
	id      string
	handler Handler
}

// Bus is a synchronous pub-sub bus for task lifecycle events.
// Handlers run on the publishing goroutine, so they must be quick and must
// tolerate being called concurrently from several tasks.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]subscription // event type -> subscriptions
	nextID  atomic.Uint64
	onPanic func(eventType string, recovered any)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// OnPanic replaces the default panic reporter (slog at error level).
func (b *Bus) OnPanic(fn func(eventType string, recovered any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPanic = fn
}

// Subscribe registers handler for one event type and returns its id.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := "sub-" + strconv.FormatUint(b.nextID.Add(1), 10)
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	return id
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(wildcard, handler)
}

// Unsubscribe removes a subscription. It reports whether id was found.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subs {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			kept := make([]subscription, 0, len(subs)-1)
			kept = append(kept, subs[:i]...)
			b.subs[eventType] = append(kept, subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers e to the handlers of its type, then to wildcard
// handlers, each group in registration order. A panicking handler is
// reported and skipped.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	specific := b.subs[e.EventType()]
	all := b.subs[wildcard]
	onPanic := b.onPanic
	b.mu.RUnlock()

	// Unsubscribe copies on write, so the snapshots above stay valid.
	for _, sub := range specific {
		b.safeCall(sub.handler, e, onPanic)
	}
	for _, sub := range all {
		b.safeCall(sub.handler, e, onPanic)
	}
}

func (b *Bus) safeCall(handler Handler, e Event, onPanic func(string, any)) {
	defer func() {
		if r := recover(); r != nil {
			if onPanic != nil {
				onPanic(e.EventType(), r)
				return
			}
			slog.Error("event handler panicked",
				"event_type", e.EventType(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	handler(e)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]subscription)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}
