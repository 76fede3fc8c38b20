// Package realtime fans out change notifications to the websocket clients
// connected to each room.
package realtime

import "sync"

// subscriberBuffer is the number of undelivered events a subscriber may hold
// before further events are dropped for it.
const subscriberBuffer = 16

// Broadcaster publishes change kinds to the subscribers of one scope.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan string]struct{})}
}

// Subscribe registers a new subscriber and returns its event channel.
func (b *Broadcaster) Subscribe() chan string {
	ch := make(chan string, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. It reports how many
// subscribers remain.
func (b *Broadcaster) Unsubscribe(ch chan string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	return len(b.subs)
}

// Publish delivers kind to every subscriber without blocking.
func (b *Broadcaster) Publish(kind string) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- kind:
		default:
			// Lagging subscriber; the next event carries a full snapshot anyway.
		}
	}
	b.mu.Unlock()
}

// Len returns the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
