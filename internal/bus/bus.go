// Package bus fans incident events out to SSE subscribers and the
// optional export sink. Publishing never blocks: a full subscriber
// queue drops its oldest event.
package bus

import (
	"sync"

	"github.com/evhagen/sitmon/internal/observability"
)

const subscriberQueueSize = 200

// Event is one incident lifecycle notification.
type Event struct {
	Type string
	Data map[string]any
}

type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func New() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber queue.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, subscriberQueueSize)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Publish delivers to every subscriber. A slow subscriber loses its
// oldest event rather than stalling ingest.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
				observability.IncBusDropped()
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// SubscriberCount is exposed for tests and the health endpoint.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
