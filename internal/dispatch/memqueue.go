package dispatch

import (
	"context"
	"fmt"

	"github.com/tixgate/actionset/model"
)

// MemoryQueue is a channel-backed Queue for tests and single-node
// deployments. A full queue rejects enqueues rather than blocking the
// workflow engine.
type MemoryQueue struct {
	tasks chan Task
}

// NewMemoryQueue creates a queue holding up to size pending tasks.
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 64
	}
	return &MemoryQueue{tasks: make(chan Task, size)}
}

// EnqueueCompletion adds a task for the consumed set.
func (q *MemoryQueue) EnqueueCompletion(_ context.Context, set model.ActionSet) error {
	select {
	case q.tasks <- Task{Set: set}:
		return nil
	default:
		return fmt.Errorf("completion queue full")
	}
}

// Dequeue blocks until a task is available or the context ends.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case task := <-q.tasks:
		return task, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Requeue puts a failed task back.
func (q *MemoryQueue) Requeue(_ context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	default:
		return fmt.Errorf("completion queue full")
	}
}

// Len reports the pending task count.
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}
