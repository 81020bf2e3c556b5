package dispatch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/flowmint/txfabric/command"
	apperrors "github.com/flowmint/txfabric/errors"
	"github.com/flowmint/txfabric/logger"
	"github.com/flowmint/txfabric/store"
)

// Record tables. Reads and writes agree on these names; the query facade
// reads the same tables.
const (
	TableAccounts      = "accounts"
	TablePayments      = "payments"
	TableNotifications = "notifications"
	TableSettlements   = "settlements"
	TableTemplates     = "templates"
	TableUsers         = "users"
)

// commandAs narrows a dispatched command to its concrete type. The handler
// table is keyed by kind, so a mismatch means a misregistered command.
func commandAs[T command.Command](c command.Command) (T, error) {
	cmd, ok := c.(T)
	if !ok {
		var zero T
		return zero, apperrors.Internal(fmt.Errorf("command %s has unexpected type %T", c.Kind(), c))
	}
	return cmd, nil
}

func (p *Pipeline) planCreatePayment(ctx context.Context, c command.Command) (*plan, error) {
	cmd, err := commandAs[command.CreatePayment](c)
	if err != nil {
		return nil, err
	}

	for _, account := range []string{cmd.FromAccount, cmd.ToAccount} {
		_, found, err := p.reader.FindByID(ctx, TableAccounts, account)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, apperrors.Precondition("account", account)
		}
	}

	doc := map[string]any{
		"payment_id":   cmd.PaymentID,
		"from_account": cmd.FromAccount,
		"to_account":   cmd.ToAccount,
		"amount":       cmd.Amount,
		"currency":     cmd.Currency,
		"reference":    cmd.Reference,
		"status":       command.StatusPending,
		"created_at":   cmd.CreatedAt(),
	}
	return &plan{
		record:    store.Record{Table: TablePayments, ID: cmd.PaymentID, Data: doc},
		eventKind: "payment.created",
		eventData: doc,
		response:  doc,
	}, nil
}

func (p *Pipeline) planUpdatePaymentStatus(ctx context.Context, c command.Command) (*plan, error) {
	cmd, err := commandAs[command.UpdatePaymentStatus](c)
	if err != nil {
		return nil, err
	}

	rec, found, err := p.reader.FindByID(ctx, TablePayments, cmd.PaymentID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NotFound("payment", cmd.PaymentID)
	}

	current, _ := rec.Data["status"].(string)
	if !command.AllowedTransition(current, cmd.Status) {
		return nil, apperrors.New(
			apperrors.ErrCodePreconditionFailed,
			fmt.Sprintf("Payment cannot move from %q to %q.", current, cmd.Status),
			http.StatusUnprocessableEntity,
		).WithDetails(map[string]any{
			"payment_id": cmd.PaymentID,
			"from":       current,
			"to":         cmd.Status,
		})
	}

	doc := make(map[string]any, len(rec.Data)+2)
	for k, v := range rec.Data {
		doc[k] = v
	}
	doc["status"] = cmd.Status
	doc["status_reason"] = cmd.Reason
	doc["updated_at"] = nowUTC()

	return &plan{
		record:    store.Record{Table: TablePayments, ID: cmd.PaymentID, Data: doc},
		eventKind: "payment.status_updated",
		eventData: map[string]any{
			"payment_id": cmd.PaymentID,
			"from":       current,
			"to":         cmd.Status,
			"reason":     cmd.Reason,
		},
		response: doc,
	}, nil
}

func (p *Pipeline) planCreateAccount(ctx context.Context, c command.Command) (*plan, error) {
	cmd, err := commandAs[command.CreateAccount](c)
	if err != nil {
		return nil, err
	}

	doc := map[string]any{
		"account_id": cmd.AccountID,
		"owner":      cmd.Owner,
		"currency":   cmd.Currency,
		"created_at": cmd.CreatedAt(),
	}
	return &plan{
		record:    store.Record{Table: TableAccounts, ID: cmd.AccountID, Data: doc},
		eventKind: "account.created",
		eventData: doc,
		response:  doc,
	}, nil
}

func (p *Pipeline) planSendNotification(ctx context.Context, c command.Command) (*plan, error) {
	cmd, err := commandAs[command.SendNotification](c)
	if err != nil {
		return nil, err
	}

	_, found, err := p.reader.FindByID(ctx, TableUsers, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.Precondition("user", cmd.UserID)
	}
	_, found, err = p.reader.FindByID(ctx, TableTemplates, cmd.TemplateID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.Precondition("template", cmd.TemplateID)
	}

	doc := map[string]any{
		"notification_id": cmd.NotificationID,
		"user_id":         cmd.UserID,
		"channel":         cmd.Channel,
		"template_id":     cmd.TemplateID,
		"subject":         cmd.Subject,
		"status":          "queued",
		"created_at":      cmd.CreatedAt(),
	}
	return &plan{
		record:       store.Record{Table: TableNotifications, ID: cmd.NotificationID, Data: doc},
		eventKind:    "notification.queued",
		eventData:    doc,
		response:     doc,
		continuation: p.dispatchNotificationTask(cmd.NotificationID, doc),
	}, nil
}

// dispatchNotificationTask marks the notification record dispatched once the
// delivery continuation has run.
func (p *Pipeline) dispatchNotificationTask(notificationID string, doc map[string]any) *Task {
	return &Task{
		Name: "notification.dispatch",
		Run: func(ctx context.Context) error {
			updated := make(map[string]any, len(doc)+1)
			for k, v := range doc {
				updated[k] = v
			}
			updated["status"] = "dispatched"
			updated["dispatched_at"] = nowUTC()

			rec := store.Record{Table: TableNotifications, ID: notificationID, Data: updated}
			_, err := p.writer.WriteAll(ctx, rec, store.WriteOptions{})
			return err
		},
	}
}

func (p *Pipeline) planRecordSettlement(ctx context.Context, c command.Command) (*plan, error) {
	cmd, err := commandAs[command.RecordSettlement](c)
	if err != nil {
		return nil, err
	}

	for _, paymentID := range cmd.PaymentIDs {
		_, found, err := p.reader.FindByID(ctx, TablePayments, paymentID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, apperrors.Precondition("payment", paymentID)
		}
	}

	status := "recorded"
	if cmd.Scheduled != nil {
		status = "scheduled"
	}
	doc := map[string]any{
		"settlement_id": cmd.SettlementID,
		"payment_ids":   cmd.PaymentIDs,
		"status":        status,
		"created_at":    cmd.CreatedAt(),
	}
	if cmd.Scheduled != nil {
		doc["scheduled_at"] = *cmd.Scheduled
	}

	return &plan{
		record:       store.Record{Table: TableSettlements, ID: cmd.SettlementID, Data: doc},
		eventKind:    "settlement.recorded",
		eventData:    doc,
		response:     doc,
		continuation: p.stampSettlementTask(cmd.SettlementID, cmd.PaymentIDs),
	}, nil
}

// stampSettlementTask writes the settlement id back onto each settled
// payment record. Scheduled settlements skip this; the pipeline only submits
// continuations for immediate commands.
func (p *Pipeline) stampSettlementTask(settlementID string, paymentIDs []string) *Task {
	return &Task{
		Name: "settlement.stamp_payments",
		Run: func(ctx context.Context) error {
			var firstErr error
			for _, paymentID := range paymentIDs {
				rec, found, err := p.reader.FindByID(ctx, TablePayments, paymentID)
				if err != nil || !found {
					if err != nil && firstErr == nil {
						firstErr = err
					}
					p.log.Warn("Settlement stamp skipped payment", logger.Fields(
						"settlement_id", settlementID,
						"payment_id", paymentID,
					))
					continue
				}
				rec.Data["settlement_id"] = settlementID
				if _, err := p.writer.WriteAll(ctx, rec, store.WriteOptions{}); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		},
	}
}
