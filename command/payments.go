package command

import (
	"time"

	"github.com/flowmint/txfabric/validation"
)

// Payment statuses. Transitions are restricted: a payment starts pending,
// moves to exactly one of completed/failed/cancelled, and only a completed
// payment can be refunded.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
)

// allowedTransitions maps a current status to its permitted successors.
var allowedTransitions = map[string][]string{
	StatusPending:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {StatusRefunded},
}

// AllowedTransition reports whether a payment may move from one status to
// another.
func AllowedTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// targetStatuses are the statuses a transition command may request.
var targetStatuses = []string{StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded}

// CreatePayment opens a new payment between two accounts. Amount is in
// minor units of the currency.
type CreatePayment struct {
	Base
	PaymentID   string `json:"payment_id" validate:"required,uuid"`
	FromAccount string `json:"from_account" validate:"required"`
	ToAccount   string `json:"to_account" validate:"required"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
	Reference   string `json:"reference,omitempty" validate:"max=140"`
}

func (c CreatePayment) Kind() Kind          { return KindCreatePayment }
func (c CreatePayment) AggregateID() string { return c.PaymentID }

// Validate combines struct-tag checks with rules tags cannot express.
func (c CreatePayment) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	return validation.New().
		Custom(c.FromAccount != c.ToAccount, "to_account", "must differ from from_account").
		Err()
}

// UpdatePaymentStatus moves a payment to a new status. The requested
// status must be in the fixed target set; whether the transition from the
// payment's current status is legal is checked against the prior record
// during precondition evaluation.
type UpdatePaymentStatus struct {
	Base
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

func (c UpdatePaymentStatus) Kind() Kind          { return KindUpdatePaymentStatus }
func (c UpdatePaymentStatus) AggregateID() string { return c.PaymentID }

func (c UpdatePaymentStatus) Validate() error {
	return validation.New().
		RequiredUUID("payment_id", c.PaymentID).
		Required("status", c.Status).
		OneOf("status", c.Status, targetStatuses).
		MaxLength("reason", c.Reason, 280).
		Err()
}

// CreateAccount registers a new account that can send and receive payments.
type CreateAccount struct {
	Base
	AccountID string `json:"account_id" validate:"required,uuid"`
	Owner     string `json:"owner" validate:"required,max=140"`
	Currency  string `json:"currency" validate:"required,len=3"`
}

func (c CreateAccount) Kind() Kind          { return KindCreateAccount }
func (c CreateAccount) AggregateID() string { return c.AccountID }

func (c CreateAccount) Validate() error {
	return validation.Struct(c)
}

// RecordSettlement records the settlement of a batch of payments. When
// Scheduled is set the settlement is recorded for later processing and
// skips the asynchronous continuation.
type RecordSettlement struct {
	Base
	SettlementID string     `json:"settlement_id"`
	PaymentIDs   []string   `json:"payment_ids"`
	Scheduled    *time.Time `json:"scheduled_at,omitempty"`
}

func (c RecordSettlement) Kind() Kind          { return KindRecordSettlement }
func (c RecordSettlement) AggregateID() string { return c.SettlementID }

// ScheduledAt returns the requested settlement time, nil for immediate.
func (c RecordSettlement) ScheduledAt() *time.Time { return c.Scheduled }

func (c RecordSettlement) Validate() error {
	v := validation.New().
		RequiredUUID("settlement_id", c.SettlementID).
		NotEmptySlice("payment_ids", len(c.PaymentIDs))
	for _, id := range c.PaymentIDs {
		if id == "" {
			v.AddViolation("payment_ids", "must not contain empty entries")
			break
		}
	}
	return v.Err()
}
