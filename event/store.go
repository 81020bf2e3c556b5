package event

import "context"

// Store is the append-only event log. Append is the pipeline's durability
// boundary: once it returns nil the event is recoverable.
type Store interface {
	// Append durably records the event. Events are never updated or deleted.
	Append(ctx context.Context, e Event) error
	// EventsForAggregate returns the aggregate's events in append order.
	EventsForAggregate(ctx context.Context, aggregateID string) ([]Event, error)
}
