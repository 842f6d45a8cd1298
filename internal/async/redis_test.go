package async

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis needs a running Redis at REDIS_ADDR (default localhost:6379)
// and skips otherwise.
func newTestRedis(t *testing.T) *RedisTransport {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Skipping Redis integration test: redis not available")
	}
	name := "review-test:" + uuid.NewString()
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), name+":*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		_ = client.Close()
	})
	return NewRedisTransport(client, name, time.Minute, 10*time.Millisecond)
}

func TestRedisTransportRoundTrip(t *testing.T) {
	tr := newTestRedis(t)
	ctx := context.Background()

	first, second := msg(`{"n":1}`), msg(`{"n":2}`)
	require.NoError(t, tr.Send(ctx, first))
	require.NoError(t, tr.Send(ctx, second))
	require.ErrorIs(t, tr.Send(ctx, msg(`{"n":1}`)), ErrDuplicate)

	d, err := tr.Receive(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, d.Message.JobID)
	assert.Equal(t, 1, d.ReceiveCount)

	// lapsed visibility puts the first message back ahead of the second
	time.Sleep(80 * time.Millisecond)
	again, err := tr.Receive(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, again.Message.JobID)
	assert.Equal(t, 2, again.ReceiveCount)
	require.NoError(t, tr.Ack(ctx, again.Receipt))
	require.ErrorIs(t, tr.Ack(ctx, again.Receipt), ErrUnknownReceipt)

	next, err := tr.Receive(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, second.JobID, next.Message.JobID)
	require.NoError(t, tr.DeadLetter(ctx, next.Receipt))

	dead, err := tr.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, second.JobID, dead[0].JobID)

	rctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = tr.Receive(rctx, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
