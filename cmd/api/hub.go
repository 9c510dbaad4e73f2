package main

import (
	"sync"

	"github.com/PaulBabatuyi/feedchat/internal/metrics"
)

// SubscriptionHub tracks open live-window subscriptions. Each subscriber
// gets a one-slot channel that is signalled whenever the message set
// changes; signals that arrive while one is pending collapse into it.
type SubscriptionHub struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]chan struct{}
	nextID int64
}

// NewSubscriptionHub creates a new hub instance.
func NewSubscriptionHub() *SubscriptionHub {
	return &SubscriptionHub{subs: make(map[string]map[int64]chan struct{})}
}

// Register adds a subscription for email and returns its id and the channel
// that will be signalled on change.
func (h *SubscriptionHub) Register(email string) (int64, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[email]; !ok {
		h.subs[email] = make(map[int64]chan struct{})
	}

	h.nextID++
	id := h.nextID
	ch := make(chan struct{}, 1)
	h.subs[email][id] = ch
	metrics.ActiveSubscribers.Inc()
	return id, ch
}

// Unregister removes a previously registered subscription.
func (h *SubscriptionHub) Unregister(email string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.subs[email]
	if !ok {
		return
	}
	if _, ok := conns[id]; !ok {
		return
	}
	delete(conns, id)
	metrics.ActiveSubscribers.Dec()
	if len(conns) == 0 {
		delete(h.subs, email)
	}
}

// Broadcast signals every subscriber and returns how many there were.
// It never blocks.
func (h *SubscriptionHub) Broadcast() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.subs {
		for _, ch := range conns {
			select {
			case ch <- struct{}{}:
			default:
			}
			n++
		}
	}
	return n
}

// Connected reports whether email has at least one open subscription.
func (h *SubscriptionHub) Connected(email string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[email]) > 0
}
