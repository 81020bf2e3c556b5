package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowmint/txfabric/logger"
)

func newTestQueue(t *testing.T, cfg TaskQueueConfig) *TaskQueue {
	t.Helper()
	q := NewTaskQueue(cfg, logger.NewDefault("test"))
	t.Cleanup(q.Close)
	return q
}

func TestTaskQueue_RunsSubmittedTasks(t *testing.T) {
	q := newTestQueue(t, TaskQueueConfig{QueueSize: 8, Workers: 2})

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		err := q.Submit(Task{Name: "count", Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}})
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	q.Close()

	if got := ran.Load(); got != 5 {
		t.Errorf("expected 5 tasks run, got %d", got)
	}
}

func TestTaskQueue_RejectsWhenFull(t *testing.T) {
	q := newTestQueue(t, TaskQueueConfig{QueueSize: 1, Workers: 1})

	block := make(chan struct{})
	started := make(chan struct{})
	_ = q.Submit(Task{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}})
	<-started

	// One task fits the queue, the next is rejected rather than blocking
	// the caller.
	_ = q.Submit(Task{Name: "queued", Run: func(ctx context.Context) error { return nil }})
	if err := q.Submit(Task{Name: "overflow", Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Error("expected rejection when the queue is full")
	}
	close(block)
}

func TestTaskQueue_RejectsAfterClose(t *testing.T) {
	q := NewTaskQueue(TaskQueueConfig{QueueSize: 4, Workers: 1}, logger.NewDefault("test"))
	q.Close()

	if err := q.Submit(Task{Name: "late", Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Error("expected rejection after close")
	}
}

func TestTaskQueue_ConcurrentSubmitAndClose(t *testing.T) {
	// Submitters racing Close must get a clean rejection, never a send on a
	// closed channel.
	for i := 0; i < 50; i++ {
		q := NewTaskQueue(TaskQueueConfig{QueueSize: 4, Workers: 2}, logger.NewDefault("test"))

		var wg sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 20; j++ {
					_ = q.Submit(Task{Name: "race", Run: func(ctx context.Context) error { return nil }})
				}
			}()
		}
		close(start)
		q.Close()
		wg.Wait()

		if err := q.Submit(Task{Name: "late", Run: func(ctx context.Context) error { return nil }}); err == nil {
			t.Fatal("expected rejection after close")
		}
	}
}

func TestTaskQueue_SurvivesFailuresAndPanics(t *testing.T) {
	q := newTestQueue(t, TaskQueueConfig{QueueSize: 8, Workers: 1})

	var after atomic.Bool
	_ = q.Submit(Task{Name: "fail", Run: func(ctx context.Context) error { return errors.New("boom") }})
	_ = q.Submit(Task{Name: "panic", Run: func(ctx context.Context) error { panic("boom") }})
	_ = q.Submit(Task{Name: "after", Run: func(ctx context.Context) error {
		after.Store(true)
		return nil
	}})
	q.Close()

	if !after.Load() {
		t.Error("a failing or panicking task must not kill the worker")
	}
}

func TestTaskQueue_AppliesTimeout(t *testing.T) {
	q := newTestQueue(t, TaskQueueConfig{QueueSize: 2, Workers: 1, TaskTimeout: 20 * time.Millisecond})

	expired := make(chan bool, 1)
	_ = q.Submit(Task{Name: "slow", Run: func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			expired <- true
		case <-time.After(time.Second):
			expired <- false
		}
		return ctx.Err()
	}})
	q.Close()

	if !<-expired {
		t.Error("task context must expire at the configured deadline")
	}
}
