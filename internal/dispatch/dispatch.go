// Package dispatch delivers completion callbacks for consumed sets. The
// workflow engine enqueues exactly one task per consumed set; the worker
// delivers it to the registered lifecycle at least once, requeueing on
// failure. Lifecycles must therefore tolerate replays.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tixgate/actionset/internal/observability"
	"github.com/tixgate/actionset/internal/registry"
	"github.com/tixgate/actionset/model"
)

// Task is one pending completion delivery.
type Task struct {
	Set      model.ActionSet `json:"set"`
	Attempts int             `json:"attempts"`
}

// Queue transports completion tasks between the engine and the worker.
type Queue interface {
	// EnqueueCompletion adds a task for the consumed set.
	EnqueueCompletion(ctx context.Context, set model.ActionSet) error

	// Dequeue blocks until a task is available or the context ends.
	Dequeue(ctx context.Context) (Task, error)

	// Requeue puts a failed task back, carrying its attempt count.
	Requeue(ctx context.Context, task Task) error
}

// Worker drains a Queue and invokes the matching lifecycle per task.
type Worker struct {
	queue       Queue
	registry    *registry.Registry
	logger      *zap.Logger
	metrics     *observability.Metrics
	maxAttempts int
	backoff     time.Duration
}

// NewWorker creates a worker. maxAttempts bounds redeliveries per task;
// backoff spaces them out.
func NewWorker(queue Queue, reg *registry.Registry, logger *zap.Logger, maxAttempts int, backoff time.Duration) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Worker{
		queue:       queue,
		registry:    reg,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// WithMetrics attaches delivery instrumentation and returns the worker.
func (w *Worker) WithMetrics(m *observability.Metrics) *Worker {
	w.metrics = m
	return w
}

// Run processes tasks until the context ends.
func (w *Worker) Run(ctx context.Context) error {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, task)
		w.reportDepth(ctx)
	}
}

// reportDepth publishes the pending task count when the queue can report it.
func (w *Worker) reportDepth(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	switch q := w.queue.(type) {
	case interface{ Len() int }:
		w.metrics.SetCompletionQueueDepth(float64(q.Len()))
	case interface {
		Len(context.Context) (int64, error)
	}:
		if n, err := q.Len(ctx); err == nil {
			w.metrics.SetCompletionQueueDepth(float64(n))
		}
	}
}

func (w *Worker) process(ctx context.Context, task Task) {
	lifecycle, ok := w.registry.Lifecycle(task.Set.Name)
	if !ok {
		// The workflow declares no side effects; the task is complete.
		return
	}

	err := lifecycle.OnComplete(ctx, task.Set)
	if err == nil {
		if w.metrics != nil {
			w.metrics.RecordCompletionDelivery(task.Set.Name, "ok")
		}
		w.logger.Info("completion delivered",
			zap.String("id", task.Set.ID),
			zap.String("name", task.Set.Name),
			zap.Int("attempt", task.Attempts+1),
		)
		return
	}

	task.Attempts++
	if task.Attempts >= w.maxAttempts {
		if w.metrics != nil {
			w.metrics.RecordCompletionDelivery(task.Set.Name, "dropped")
		}
		w.logger.Error("completion dropped after max attempts",
			zap.String("id", task.Set.ID),
			zap.String("name", task.Set.Name),
			zap.Int("attempts", task.Attempts),
			zap.Error(err),
		)
		return
	}

	if w.metrics != nil {
		w.metrics.RecordCompletionDelivery(task.Set.Name, "retry")
	}
	w.logger.Warn("completion failed, requeueing",
		zap.String("id", task.Set.ID),
		zap.String("name", task.Set.Name),
		zap.Int("attempt", task.Attempts),
		zap.Error(err),
	)
	if w.backoff > 0 {
		select {
		case <-time.After(w.backoff):
		case <-ctx.Done():
			return
		}
	}
	if err := w.queue.Requeue(ctx, task); err != nil {
		w.logger.Error("requeue failed",
			zap.String("id", task.Set.ID),
			zap.Error(err),
		)
	}
}
