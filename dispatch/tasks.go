package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowmint/txfabric/logger"
)

// Task is one unit of background work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskQueue runs asynchronous continuations on a bounded queue with a fixed
// worker set, replacing fire-and-forget goroutines. Task failures are caught
// and logged, never surfaced to the submitting caller.
type TaskQueue struct {
	tasks   chan Task
	log     *logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// TaskQueueConfig configures the background task queue.
type TaskQueueConfig struct {
	// QueueSize bounds the number of pending tasks.
	QueueSize int
	// Workers is the number of worker goroutines.
	Workers int
	// TaskTimeout is the per-task deadline.
	TaskTimeout time.Duration
}

// NewTaskQueue creates and starts a task queue.
func NewTaskQueue(cfg TaskQueueConfig, log *logger.Logger) *TaskQueue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}

	q := &TaskQueue{
		tasks:   make(chan Task, cfg.QueueSize),
		log:     log.WithComponent("task_queue"),
		timeout: cfg.TaskTimeout,
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues a task. It returns an error when the queue is closed or
// full; the caller decides whether that matters.
func (q *TaskQueue) Submit(task Task) error {
	// The lock is held across the send so Close cannot close the channel
	// between the flag check and the send. The send never blocks.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("task queue is closed")
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Close stops accepting tasks and waits for queued work to drain.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.tasks)
	q.wg.Wait()
}

func (q *TaskQueue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.run(task)
	}
}

// run executes one task with a deadline and panic recovery. The original
// caller has already been acknowledged, so failures stop here.
func (q *TaskQueue) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.log.Error("Background task panicked", logger.Fields(
				"task", task.Name,
				"panic", fmt.Sprintf("%v", r),
			))
		}
	}()

	if err := task.Run(ctx); err != nil {
		q.log.Warn("Background task failed", logger.Fields(
			"task", task.Name,
			logger.FieldError, err.Error(),
		))
	}
}
