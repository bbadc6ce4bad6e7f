// Package memory is the audit sink used in development and tests. It keeps a
// bounded number of events per user so a long-running server without Kafka
// does not grow without limit.
package memory

import (
	"context"
	"sync"

	audit "backoffice/pkg/platform/audit"
)

// DefaultCapacity is the per-user event limit.
const DefaultCapacity = 1000

type Option func(*InMemoryStore)

// WithCapacity bounds the events kept per user; the oldest are dropped first.
func WithCapacity(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// InMemoryStore keeps audit events per user. Events without a user, such as
// a corrupt session found at startup, are kept under the empty key.
type InMemoryStore struct {
	mu       sync.RWMutex
	capacity int
	events   map[string][]audit.Event
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{capacity: DefaultCapacity, events: make(map[string][]audit.Event)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.events[event.UserID], event)
	if over := len(list) - s.capacity; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	s.events[event.UserID] = list
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[userID]...), nil
}

// Actions returns the user's event actions in append order.
func (s *InMemoryStore) Actions(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.events[userID]))
	for _, e := range s.events[userID] {
		out = append(out, e.Action)
	}
	return out
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
}
