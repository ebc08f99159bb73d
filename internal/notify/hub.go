package notify

import (
	"context"
	"log/slog"
	"sync"
)

const defaultSubscriberCapacity = 64

// Hub is the in-process subscription registry. A subscription listens on
// any number of scopes; delivery never blocks the publisher and drops the
// event for a subscriber whose buffer is full.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[Scope]map[*subscriber]struct{}
	capacity    int
	logger      *slog.Logger
}

type HubOption func(*Hub)

func WithSubscriberCapacity(capacity int) HubOption {
	return func(h *Hub) {
		if capacity > 0 {
			h.capacity = capacity
		}
	}
}

func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subscribers: map[Scope]map[*subscriber]struct{}{},
		capacity:    defaultSubscriberCapacity,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Subscription is an active registration on one or more scopes.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (h *Hub) Subscribe(scopes ...Scope) *Subscription {
	sub := &subscriber{ch: make(chan Event, h.capacity)}
	h.mu.Lock()
	for _, scope := range scopes {
		if h.subscribers[scope] == nil {
			h.subscribers[scope] = map[*subscriber]struct{}{}
		}
		h.subscribers[scope][sub] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	return &Subscription{
		Events: sub.ch,
		cancel: func() {
			once.Do(func() { h.remove(scopes, sub) })
		},
	}
}

// Publish implements Publisher for single-process deployments.
func (h *Hub) Publish(_ context.Context, scope Scope, event string, payload any) error {
	evt, err := newEvent(scope, event, payload)
	if err != nil {
		return err
	}
	return h.Deliver(evt)
}

// Deliver hands an already-encoded event to the scope's subscribers.
func (h *Hub) Deliver(evt Event) error {
	h.mu.RLock()
	live := h.subscribers[evt.Scope]
	subs := make([]*subscriber, 0, len(live))
	for sub := range live {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		return ErrNoSubscribers
	}
	for _, sub := range subs {
		if !sub.deliver(evt) {
			h.logger.Warn("live event dropped", "scope", evt.Scope, "event", evt.Name)
		}
	}
	return nil
}

// SubscriberCount reports how many subscriptions listen on scope.
func (h *Hub) SubscriberCount(scope Scope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[scope])
}

func (h *Hub) remove(scopes []Scope, sub *subscriber) {
	h.mu.Lock()
	for _, scope := range scopes {
		if subs := h.subscribers[scope]; subs != nil {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.subscribers, scope)
			}
		}
	}
	h.mu.Unlock()
	sub.close()
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *subscriber) deliver(evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
