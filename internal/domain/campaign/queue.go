package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinic/clinic/internal/platform/db"
)

// ErrQueueEmpty is returned by Pop when nothing arrived before the timeout.
var ErrQueueEmpty = errors.New("campaign queue empty")

// Queue hands launched campaign ids to dispatch workers.
type Queue interface {
	Push(ctx context.Context, id uuid.UUID) error
	Pop(ctx context.Context, timeout time.Duration) (uuid.UUID, error)
}

// RedisQueue is a FIFO list per clinic: LPUSH on launch, BRPOP in the
// worker. The clinic comes from ctx, falling back to the one given to
// NewRedisQueue.
type RedisQueue struct {
	client *redis.Client
	clinic string
}

func NewRedisQueue(client *redis.Client, clinic string) *RedisQueue {
	return &RedisQueue{client: client, clinic: clinic}
}

func (q *RedisQueue) key(ctx context.Context) string {
	clinic := db.ClinicFromContext(ctx)
	if clinic == "" {
		clinic = q.clinic
	}
	return "clinic:" + clinic + ":campaigns"
}

func (q *RedisQueue) Push(ctx context.Context, id uuid.UUID) error {
	if err := q.client.LPush(ctx, q.key(ctx), id.String()).Err(); err != nil {
		return fmt.Errorf("campaign: push %s: %w", id, err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (uuid.UUID, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key(ctx)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrQueueEmpty
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("campaign: pop: %w", err)
	}
	// res is [key, value].
	id, err := uuid.Parse(res[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("campaign: bad queue entry %q: %w", res[1], err)
	}
	return id, nil
}

// Len reports how many campaigns are waiting.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key(ctx)).Result()
}
