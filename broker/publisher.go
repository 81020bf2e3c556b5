// Package broker publishes domain events to the message broker with
// at-least-once delivery. The partition key is the aggregate id so one
// entity's events stay ordered within a partition; consumers dedupe by
// event id.
package broker

import (
	"context"

	"github.com/flowmint/txfabric/event"
)

// Publisher sends events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, e event.Event) error
	Close() error
}
