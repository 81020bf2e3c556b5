// Package event defines the domain event model and the append-only event
// store backing the command pipeline. Events are the durable record of
// every accepted state change; records in the read stores are projections
// that may transiently lead the log, never the reverse.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is an immutable fact describing a state change that has happened.
// Construct it once and never mutate it afterwards.
type Event struct {
	// ID uniquely identifies the event. Consumers dedupe on it.
	ID string `json:"id"`
	// Kind names the event type, e.g. "payment.created".
	Kind string `json:"kind"`
	// AggregateID groups events belonging to one entity.
	AggregateID string `json:"aggregate_id"`
	// Timestamp is when the event was stamped.
	Timestamp time.Time `json:"timestamp"`
	// Data is the event payload.
	Data map[string]any `json:"data,omitempty"`
	// Metadata carries tracing context such as the correlation id.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clock supplies timestamps. Injected so stamping is deterministic in tests.
type Clock func() time.Time

// IDGenerator supplies event ids.
type IDGenerator func() string

// Stamper fills in the identity fields of new events.
type Stamper struct {
	clock Clock
	newID IDGenerator
}

// NewStamper creates a stamper with the given clock and id generator.
// Nil arguments fall back to time.Now and uuid.
func NewStamper(clock Clock, newID IDGenerator) *Stamper {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	return &Stamper{clock: clock, newID: newID}
}

// Stamp returns a fully-populated event for the given kind and aggregate.
// A fresh id and timestamp are assigned; caller-provided maps are copied so
// the event cannot be mutated through them afterwards.
func (s *Stamper) Stamp(kind, aggregateID string, data map[string]any, metadata map[string]string) Event {
	return Event{
		ID:          s.newID(),
		Kind:        kind,
		AggregateID: aggregateID,
		Timestamp:   s.clock(),
		Data:        copyData(data),
		Metadata:    copyMetadata(metadata),
	}
}

func copyData(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
