// Package event provides the typed publish/subscribe channel that carries
// progress events from the long-running components (download orchestrator,
// watermark pipeline) to whoever wants to render them.
//
// The event set is closed: every event is one of the payload structs in
// events.go, discriminated by Kind. Publishing is fire-and-forget; it never
// blocks and never fails, even with zero subscribers. A subscriber that
// stops draining its channel misses events instead of stalling publishers.
//
// Example usage:
//
//	bus := event.NewBus()
//	ch := bus.Subscribe(event.KindDownloadEnd)
//	go func() {
//	    for ev := range ch {
//	        end := ev.(event.DownloadEnd)
//	        fmt.Println("task finished:", end.ID)
//	    }
//	}()
//	bus.Publish(event.DownloadEnd{ID: 42})
package event

import "sync"

// subscriberBuffer is the per-subscriber channel capacity. A slow listener
// starts dropping once it falls this far behind.
const subscriberBuffer = 64

type subscriber struct {
	ch    chan Event
	kinds map[Kind]struct{} // empty means all kinds
}

func (s *subscriber) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Bus fans events out to any number of subscribers.
// The zero value is not usable; create one with NewBus.
type Bus struct {
	mu   sync.RWMutex
	subs map[<-chan Event]*subscriber
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[<-chan Event]*subscriber)}
}

// Subscribe registers a new listener and returns its channel. If kinds is
// empty the listener receives every event, otherwise only the listed kinds.
// The channel is closed by Unsubscribe.
func (b *Bus) Subscribe(kinds ...Kind) <-chan Event {
	sub := &subscriber{
		ch:    make(chan Event, subscriberBuffer),
		kinds: make(map[Kind]struct{}, len(kinds)),
	}
	for _, k := range kinds {
		sub.kinds[k] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub.ch] = sub
	return sub.ch
}

// Unsubscribe removes a listener previously returned by Subscribe and
// closes its channel. Unsubscribing an unknown channel is a no-op.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[ch]
	if !ok {
		return
	}
	delete(b.subs, ch)
	close(sub.ch)
}

// Publish delivers ev to every subscriber interested in its kind.
// Delivery is best-effort: a subscriber whose buffer is full is skipped
// rather than blocking the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.wants(ev.Kind()) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Listener fell behind; drop rather than block the worker.
		}
	}
}
