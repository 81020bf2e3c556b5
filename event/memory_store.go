package event

import (
	"context"
	"sync"
)

// MemoryStore is an in-process event store for tests and the broker-less
// development profile.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event

	// FailAppend, when set, is returned from Append to simulate a store
	// outage in tests.
	FailAppend error
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append records the event in memory.
func (s *MemoryStore) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend != nil {
		return s.FailAppend
	}
	s.events = append(s.events, e)
	return nil
}

// EventsForAggregate returns the aggregate's events in append order.
func (s *MemoryStore) EventsForAggregate(_ context.Context, aggregateID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every appended event in order.
func (s *MemoryStore) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
