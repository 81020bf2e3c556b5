package dispatch

import (
	"context"
	"time"

	"github.com/flowmint/txfabric/broker"
	"github.com/flowmint/txfabric/command"
	apperrors "github.com/flowmint/txfabric/errors"
	"github.com/flowmint/txfabric/event"
	"github.com/flowmint/txfabric/logger"
	"github.com/flowmint/txfabric/observability"
	"github.com/flowmint/txfabric/store"
)

// Result is the outcome of one dispatched command. Partial success is
// explicit: Writes carries the per-store report and Published tells whether
// the event reached the broker.
type Result struct {
	Success   bool              `json:"success"`
	EntityID  string            `json:"entity_id"`
	Data      map[string]any    `json:"data,omitempty"`
	Writes    store.WriteReport `json:"writes"`
	EventID   string            `json:"event_id,omitempty"`
	Published bool              `json:"published"`
}

// plan is what a handler hands back to the pipeline: the record to persist,
// the event to append, the optional background continuation, and the data to
// return to the caller. Handlers never write; the pipeline does.
type plan struct {
	record       store.Record
	eventKind    string
	eventData    map[string]any
	continuation *Task
	response     map[string]any
}

// PipelineConfig wires the pipeline's collaborators.
type PipelineConfig struct {
	Writer    *store.DualWriter
	Reader    *store.FallbackReader
	Events    event.Store
	Stamper   *event.Stamper
	Publisher broker.Publisher
	Guards    *Guards
	Tasks     *TaskQueue
	Metrics   *observability.PipelineMetrics
	Log       *logger.Logger
	// Topic is the broker topic events are published to.
	Topic string
	// RequireAll makes a single-store write failure fail the call instead
	// of being tolerated.
	RequireAll bool
}

// Pipeline runs the write path shared by every command handler.
type Pipeline struct {
	writer     *store.DualWriter
	reader     *store.FallbackReader
	events     event.Store
	stamper    *event.Stamper
	publisher  broker.Publisher
	guards     *Guards
	tasks      *TaskQueue
	metrics    *observability.PipelineMetrics
	log        *logger.Logger
	topic      string
	requireAll bool
}

// NewPipeline creates the pipeline. Guards and Stamper default to
// passthrough and uuid stamping when nil; Publisher may be nil for the
// broker-less dev profile.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Stamper == nil {
		cfg.Stamper = event.NewStamper(nil, nil)
	}
	if cfg.Guards == nil {
		cfg.Guards = BuildGuards(GuardsConfig{})
	}
	if cfg.Tasks == nil {
		cfg.Tasks = NewTaskQueue(TaskQueueConfig{}, cfg.Log)
	}
	if cfg.Topic == "" {
		cfg.Topic = "txfabric.events"
	}
	return &Pipeline{
		writer:     cfg.Writer,
		reader:     cfg.Reader,
		events:     cfg.Events,
		stamper:    cfg.Stamper,
		publisher:  cfg.Publisher,
		guards:     cfg.Guards,
		tasks:      cfg.Tasks,
		metrics:    cfg.Metrics,
		log:        cfg.Log.WithComponent("pipeline"),
		topic:      cfg.Topic,
		requireAll: cfg.RequireAll,
	}
}

// Close stops the background task queue and the guards.
func (p *Pipeline) Close() {
	p.tasks.Close()
	p.guards.Stop()
}

// execute runs steps three through six for a planned command: dual write,
// event append, publish, continuation. Validation and preconditions have
// already passed.
func (p *Pipeline) execute(ctx context.Context, cmd command.Command, pl *plan) (Result, error) {
	res := Result{EntityID: cmd.AggregateID(), Data: pl.response}

	var report store.WriteReport
	err := p.guards.Stores.Do(ctx, func(ctx context.Context) error {
		var werr error
		report, werr = p.writer.WriteAll(ctx, pl.record, store.WriteOptions{RequireAll: p.requireAll})
		return werr
	})
	res.Writes = report
	for _, o := range report.Outcomes {
		if !o.OK {
			p.metrics.RecordStoreWriteFailure(ctx, o.Store)
		}
	}
	if err != nil {
		return res, err
	}

	e := p.stamper.Stamp(pl.eventKind, cmd.AggregateID(), pl.eventData, eventMetadata(cmd))
	if err := p.guards.Events.Do(ctx, func(ctx context.Context) error {
		return p.events.Append(ctx, e)
	}); err != nil {
		// The record may now lead the log; the caller must see a failure.
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code != apperrors.ErrCodeInternal {
			return res, appErr
		}
		return res, apperrors.EventAppend(cmd.AggregateID(), err)
	}
	res.EventID = e.ID
	p.metrics.RecordEventAppended(ctx, e.Kind)

	if p.publisher != nil {
		if err := p.guards.Broker.Do(ctx, func(ctx context.Context) error {
			return p.publisher.Publish(ctx, p.topic, e)
		}); err != nil {
			p.metrics.RecordPublishFailure(ctx, p.topic)
			p.log.Warn("Event publish failed, record and event are durable", logger.Fields(
				logger.FieldTopic, p.topic,
				logger.FieldEventID, e.ID,
				logger.FieldError, err.Error(),
			))
		} else {
			res.Published = true
		}
	}

	if pl.continuation != nil && cmd.ScheduledAt() == nil {
		p.submitContinuation(ctx, *pl.continuation)
	}

	res.Success = true
	return res, nil
}

// submitContinuation enqueues the background task. A full or closed queue is
// logged and dropped; the command has already been acknowledged.
func (p *Pipeline) submitContinuation(ctx context.Context, task Task) {
	run := task.Run
	task.Run = func(ctx context.Context) error {
		defer p.metrics.TaskQueued(ctx, -1)
		return run(ctx)
	}
	p.metrics.TaskQueued(ctx, 1)
	if err := p.tasks.Submit(task); err != nil {
		p.metrics.TaskQueued(ctx, -1)
		p.log.Warn("Continuation dropped", logger.Fields(
			"task", task.Name,
			logger.FieldError, err.Error(),
		))
	}
}

// eventMetadata builds the event's tracing metadata from the command.
func eventMetadata(cmd command.Command) map[string]string {
	meta := map[string]string{"command_id": cmd.ID()}
	for k, v := range cmd.Metadata() {
		meta[k] = v
	}
	return meta
}

// nowUTC is injectable for continuation timestamp tests.
var nowUTC = func() time.Time { return time.Now().UTC() }
