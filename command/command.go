// Package command defines the platform's write surface: validated intents
// submitted by callers and dispatched through the handler pipeline. Commands
// are immutable after construction; Validate is pure and reports every
// violated field, in order, through a single validation error.
package command

import (
	"time"

	"github.com/google/uuid"
)

// Kind names a command type.
type Kind string

const (
	KindCreatePayment       Kind = "payment.create"
	KindUpdatePaymentStatus Kind = "payment.update_status"
	KindCreateAccount       Kind = "account.create"
	KindSendNotification    Kind = "notification.send"
	KindBulkNotification    Kind = "notification.bulk"
	KindRecordSettlement    Kind = "settlement.record"
)

// MetaCorrelationID is the metadata key tracing sub-commands and their
// events back to an originating batch.
const MetaCorrelationID = "correlation_id"

// Command is a validated intent to change state.
type Command interface {
	// ID uniquely identifies this command instance.
	ID() string
	// Kind names the command type for dispatch.
	Kind() Kind
	// AggregateID identifies the entity the command targets.
	AggregateID() string
	// CreatedAt is when the command was constructed.
	CreatedAt() time.Time
	// Metadata carries tracing context across the pipeline.
	Metadata() map[string]string
	// ScheduledAt returns the requested execution time, or nil for
	// immediate commands.
	ScheduledAt() *time.Time
	// Validate reports every violated field or nil. It is pure: no
	// side effects, no store access.
	Validate() error
}

// Base carries the fields shared by all commands. Embed it by value.
type Base struct {
	CommandID string
	Created   time.Time
	Meta      map[string]string
}

// NewBase stamps a fresh command identity.
func NewBase() Base {
	return Base{
		CommandID: uuid.New().String(),
		Created:   time.Now().UTC(),
	}
}

// NewBaseWithMeta stamps a fresh command identity carrying metadata.
func NewBaseWithMeta(meta map[string]string) Base {
	b := NewBase()
	b.Meta = meta
	return b
}

// ID returns the command id, stamping one if construction bypassed NewBase.
func (b Base) ID() string { return b.CommandID }

// CreatedAt returns the construction time.
func (b Base) CreatedAt() time.Time { return b.Created }

// Metadata returns the command metadata.
func (b Base) Metadata() map[string]string { return b.Meta }

// ScheduledAt returns nil; commands supporting scheduling override it.
func (b Base) ScheduledAt() *time.Time { return nil }
