package events

import (
	"context"
	"sync"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
)

// Hub fans events out to in-process subscribers. Callbacks run on the
// dispatching goroutine and must not block.
type Hub struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(usersession.AuthEvent)
}

// NewHub creates an empty Hub
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]func(usersession.AuthEvent))}
}

// Subscribe implements usersession.AuthEventSource
func (h *Hub) Subscribe(ctx context.Context, fn func(usersession.AuthEvent)) (usersession.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	h.subs[id] = fn
	return &hubSubscription{hub: h, id: id}, nil
}

// Dispatch delivers ev to every current subscriber
func (h *Hub) Dispatch(ev usersession.AuthEvent) {
	h.mu.RLock()
	fns := make([]func(usersession.AuthEvent), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len returns the number of live subscriptions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type hubSubscription struct {
	hub  *Hub
	id   uint64
	once sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}
