package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tixgate/actionset/model"
)

// defaultQueueKey is the Redis list holding pending completion tasks.
const defaultQueueKey = "actionset:completions"

// blockTimeout bounds each BRPOP so the worker can notice context
// cancellation between polls.
const blockTimeout = 2 * time.Second

// RedisQueue is a Redis-list-backed Queue for multi-node deployments. Tasks
// survive process restarts; a crashed worker loses at most the task it had
// already popped.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
}

// NewRedisQueue creates a queue over the given client. An empty key uses the
// default list name.
func NewRedisQueue(client redis.UniversalClient, key string) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

// HealthCheck reports Redis connectivity for the readiness endpoint.
func (q *RedisQueue) HealthCheck(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// EnqueueCompletion adds a task for the consumed set.
func (q *RedisQueue) EnqueueCompletion(ctx context.Context, set model.ActionSet) error {
	return q.push(ctx, Task{Set: set})
}

// Requeue puts a failed task back, keeping its attempt count.
func (q *RedisQueue) Requeue(ctx context.Context, task Task) error {
	return q.push(ctx, task)
}

func (q *RedisQueue) push(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal completion task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push completion task: %w", err)
	}
	return nil
}

// Dequeue blocks until a task is available or the context ends.
func (q *RedisQueue) Dequeue(ctx context.Context) (Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Task{}, err
		}

		res, err := q.client.BRPop(ctx, blockTimeout, q.key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return Task{}, fmt.Errorf("pop completion task: %w", err)
		}

		// BRPop returns [key, value].
		var task Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			return Task{}, fmt.Errorf("unmarshal completion task: %w", err)
		}
		return task, nil
	}
}

// Len reports the pending task count.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
