package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/db"
)

func newRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client, "default"), mr
}

func TestRedisQueue_FIFO(t *testing.T) {
	q, mr := newRedisQueue(t)
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	require.NoError(t, q.Push(ctx, first))
	require.NoError(t, q.Push(ctx, second))
	assert.True(t, mr.Exists("clinic:default:campaigns"))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first, got)
	got, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestRedisQueue_PopEmpty(t *testing.T) {
	q, _ := newRedisQueue(t)

	_, err := q.Pop(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRedisQueue_BadEntry(t *testing.T) {
	q, mr := newRedisQueue(t)
	_, err := mr.Lpush("clinic:default:campaigns", "not-a-uuid")
	require.NoError(t, err)

	_, err = q.Pop(context.Background(), time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueueEmpty)
}

func TestRedisQueue_ClinicFromContext(t *testing.T) {
	q, mr := newRedisQueue(t)
	ctx := db.WithClinic(context.Background(), "north")
	id := uuid.New()

	require.NoError(t, q.Push(ctx, id))
	assert.True(t, mr.Exists("clinic:north:campaigns"))
	assert.False(t, mr.Exists("clinic:default:campaigns"))

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
