package dispatch

import (
	"context"
	"time"

	"github.com/flowmint/txfabric/command"
	apperrors "github.com/flowmint/txfabric/errors"
	"github.com/flowmint/txfabric/logger"
	"github.com/flowmint/txfabric/resilience"
)

// handlerFunc inspects one concrete command, checks its preconditions, and
// returns the execution plan. Handlers read; only the pipeline writes.
type handlerFunc func(ctx context.Context, cmd command.Command) (*plan, error)

// Dispatcher routes commands to their handlers through an explicit lookup
// table. Bulk commands never appear in the table; they go through
// DispatchBulk, which expands them into per-item dispatches.
type Dispatcher struct {
	pipeline *Pipeline
	handlers map[command.Kind]handlerFunc
	limiter  resilience.Limiter
	log      *logger.Logger
}

// NewDispatcher creates a dispatcher over the pipeline. A nil limiter
// disables keyed admission control.
func NewDispatcher(pipeline *Pipeline, limiter resilience.Limiter, log *logger.Logger) *Dispatcher {
	d := &Dispatcher{
		pipeline: pipeline,
		limiter:  limiter,
		log:      log.WithComponent("dispatcher"),
	}
	d.handlers = map[command.Kind]handlerFunc{
		command.KindCreatePayment:       pipeline.planCreatePayment,
		command.KindUpdatePaymentStatus: pipeline.planUpdatePaymentStatus,
		command.KindCreateAccount:       pipeline.planCreateAccount,
		command.KindSendNotification:    pipeline.planSendNotification,
		command.KindRecordSettlement:    pipeline.planRecordSettlement,
	}
	return d
}

// Dispatch runs one command through the full pipeline and returns its
// result. The error, when non-nil, is an AppError the transport layer can
// map to a status code.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command) (Result, error) {
	start := time.Now()
	res, err := d.dispatch(ctx, cmd)
	d.pipeline.metrics.RecordCommand(ctx, string(cmd.Kind()), statusOf(err), time.Since(start))
	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd command.Command) (Result, error) {
	kind := cmd.Kind()

	if d.limiter != nil {
		decision := d.limiter.Allow(ctx, string(kind), 1)
		if !decision.Allowed {
			d.pipeline.metrics.RecordAdmissionRejected(ctx, "rate_limiter")
			d.log.Warn("Command rejected by rate limiter", logger.Fields(
				logger.FieldCommandKind, string(kind),
				logger.FieldLimiterKey, string(kind),
			))
			return Result{}, apperrors.RateLimited(string(kind))
		}
	}

	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}

	handler, ok := d.handlers[kind]
	if !ok {
		return Result{}, apperrors.UnknownCommand(string(kind))
	}

	pl, err := handler(ctx, cmd)
	if err != nil {
		d.log.Warn("Command rejected", logger.Fields(
			logger.FieldCommandID, cmd.ID(),
			logger.FieldCommandKind, string(kind),
			logger.FieldError, err.Error(),
		))
		return Result{}, err
	}

	res, err := d.pipeline.execute(ctx, cmd, pl)
	if err != nil {
		d.log.Error("Command failed", logger.Fields(
			logger.FieldCommandID, cmd.ID(),
			logger.FieldCommandKind, string(kind),
			logger.FieldAggregateID, cmd.AggregateID(),
			logger.FieldError, err.Error(),
		))
		return res, err
	}

	d.log.Info("Command handled", logger.Fields(
		logger.FieldCommandID, cmd.ID(),
		logger.FieldCommandKind, string(kind),
		logger.FieldAggregateID, cmd.AggregateID(),
		logger.FieldEventID, res.EventID,
		"published", res.Published,
	))
	return res, nil
}

// statusOf labels the command outcome for metrics.
func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return string(appErr.Code)
	}
	return "error"
}
