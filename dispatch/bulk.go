package dispatch

import (
	"context"
	"sync"

	"github.com/flowmint/txfabric/command"
	"github.com/flowmint/txfabric/logger"
)

// bulkConcurrency bounds how many expanded sub-commands run at once.
const bulkConcurrency = 4

// BulkResult reports a bulk dispatch. Notifications carries per-item detail
// for the successes only; failures are logged with their cause and counted
// by the difference between TotalRequested and Successful.
type BulkResult struct {
	TotalRequested int      `json:"total_requested"`
	Successful     int      `json:"successful"`
	Notifications  []Result `json:"notifications"`
}

// DispatchBulk validates the batch, expands it into one SendNotification per
// target, and dispatches each through the full pipeline. Item failures are
// isolated: one bad target never aborts the rest of the batch.
func (d *Dispatcher) DispatchBulk(ctx context.Context, cmd command.BulkNotification) (BulkResult, error) {
	if err := cmd.Validate(); err != nil {
		return BulkResult{}, err
	}

	subs := cmd.Expand()
	res := BulkResult{TotalRequested: len(subs)}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, bulkConcurrency)
	)
	for _, sub := range subs {
		wg.Add(1)
		sem <- struct{}{}
		go func(sub command.SendNotification) {
			defer wg.Done()
			defer func() { <-sem }()

			itemRes, err := d.Dispatch(ctx, sub)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.log.Warn("Bulk notification item failed", logger.Fields(
					logger.FieldCommandID, cmd.ID(),
					"notification_id", sub.NotificationID,
					"user_id", sub.UserID,
					logger.FieldError, err.Error(),
				))
				return
			}
			res.Successful++
			res.Notifications = append(res.Notifications, itemRes)
		}(sub)
	}
	wg.Wait()

	d.log.Info("Bulk notification handled", logger.Fields(
		logger.FieldCommandID, cmd.ID(),
		"total_requested", res.TotalRequested,
		"successful", res.Successful,
	))
	return res, nil
}
