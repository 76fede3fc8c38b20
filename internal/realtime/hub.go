package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/storage"
)

// Hub keeps one broadcaster per scope key. When a storage.Watcher is set, the
// first subscriber of a shared room starts a watch so that writes made by
// other server instances reach local clients too; the watch stops with the
// last subscriber. Local scopes live in this process only and are never
// watched.
type Hub struct {
	mu      sync.Mutex
	scopes  map[string]*Broadcaster
	watches map[string]context.CancelFunc
	watcher storage.Watcher
}

// NewHub creates a hub. watcher may be nil.
func NewHub(watcher storage.Watcher) *Hub {
	return &Hub{
		scopes:  make(map[string]*Broadcaster),
		watches: make(map[string]context.CancelFunc),
		watcher: watcher,
	}
}

// Publish notifies the scope's subscribers that kind changed. Scopes without
// subscribers are ignored.
func (h *Hub) Publish(scope, kind string) {
	h.mu.Lock()
	b, ok := h.scopes[scope]
	h.mu.Unlock()
	if ok {
		b.Publish(kind)
	}
}

// Subscribe registers for scope's events. The returned cancel func must be
// called once the subscriber is done; it closes the channel.
func (h *Hub) Subscribe(scope string) (<-chan string, func()) {
	h.mu.Lock()
	b, ok := h.scopes[scope]
	if !ok {
		b = NewBroadcaster()
		h.scopes[scope] = b
		h.startWatch(scope)
	}
	ch := b.Subscribe()
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.unsubscribe(scope, b, ch) })
	}
	return ch, cancel
}

// Subscribers returns the number of subscribers of scope.
func (h *Hub) Subscribers(scope string) int {
	h.mu.Lock()
	b, ok := h.scopes[scope]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	return b.Len()
}

// Close stops every watch.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for scope, stop := range h.watches {
		stop()
		delete(h.watches, scope)
	}
}

func (h *Hub) unsubscribe(scope string, b *Broadcaster, ch chan string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b.Unsubscribe(ch) > 0 {
		return
	}
	if h.scopes[scope] == b {
		delete(h.scopes, scope)
	}
	if stop, ok := h.watches[scope]; ok {
		stop()
		delete(h.watches, scope)
	}
}

// startWatch must be called with h.mu held.
func (h *Hub) startWatch(scope string) {
	if h.watcher == nil || strings.HasPrefix(scope, models.LocalKeyPrefix) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.watches[scope] = cancel
	go func() {
		err := h.watcher.WatchScope(ctx, scope, func(kind string) {
			h.Publish(scope, kind)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Printf("[Realtime] Watch on %s ended: %v\n", scope, err)
		}
	}()
}
