package broker

import (
	"context"
	"sync"

	"github.com/flowmint/txfabric/event"
)

// Published is one message accepted by the memory publisher.
type Published struct {
	Topic string
	Event event.Event
}

// MemoryPublisher records published events in memory. Used in tests and the
// broker-less development profile.
type MemoryPublisher struct {
	mu        sync.Mutex
	published []Published
	closed    bool

	// FailPublish, when set, is returned from Publish to simulate a broker
	// outage in tests.
	FailPublish error
}

var _ Publisher = (*MemoryPublisher)(nil)

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the event.
func (p *MemoryPublisher) Publish(_ context.Context, topic string, e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailPublish != nil {
		return p.FailPublish
	}
	p.published = append(p.published, Published{Topic: topic, Event: e})
	return nil
}

// Published returns the recorded messages in publish order.
func (p *MemoryPublisher) Published() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.published))
	copy(out, p.published)
	return out
}

// Close marks the publisher closed.
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
