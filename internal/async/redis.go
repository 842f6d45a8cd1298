package async

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// sendScript enqueues a message unless its dedup key is live.
// KEYS[1] = dedup key, KEYS[2] = ready list, KEYS[3] = message hash
// ARGV[1] = id, ARGV[2] = envelope, ARGV[3] = dedup window ms (0 disables)
var sendScript = redis.NewScript(`
if tonumber(ARGV[3]) > 0 then
  if not redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[3]) then
    return 0
  end
end
redis.call("HSET", KEYS[3], ARGV[1], ARGV[2])
redis.call("RPUSH", KEYS[2], ARGV[1])
return 1
`)

// receiveScript returns lapsed in-flight ids to the head of the ready list,
// then pops one id and hides it until ARGV[2].
// KEYS[1] = ready, KEYS[2] = inflight zset, KEYS[3] = messages, KEYS[4] = receive counts
// ARGV[1] = now ms, ARGV[2] = visible-at ms
var receiveScript = redis.NewScript(`
local lapsed = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", ARGV[1])
for i = #lapsed, 1, -1 do
  redis.call("ZREM", KEYS[2], lapsed[i])
  redis.call("LPUSH", KEYS[1], lapsed[i])
end
local id = redis.call("LPOP", KEYS[1])
if not id then
  return false
end
local n = redis.call("HINCRBY", KEYS[4], id, 1)
redis.call("ZADD", KEYS[2], ARGV[2], id)
return {id, redis.call("HGET", KEYS[3], id), n}
`)

// settleScript removes an in-flight message, optionally copying it to the
// dead-letter list first.
// KEYS[1] = inflight, KEYS[2] = messages, KEYS[3] = receive counts, KEYS[4] = dead list
// ARGV[1] = id, ARGV[2] = "1" to dead-letter
var settleScript = redis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
  return 0
end
if ARGV[2] == "1" then
  redis.call("RPUSH", KEYS[4], redis.call("HGET", KEYS[2], ARGV[1]))
end
redis.call("HDEL", KEYS[2], ARGV[1])
redis.call("HDEL", KEYS[3], ARGV[1])
return 1
`)

// visibilityScript moves an in-flight message's deadline.
// KEYS[1] = inflight, ARGV[1] = id, ARGV[2] = visible-at ms
var visibilityScript = redis.NewScript(`
if not redis.call("ZSCORE", KEYS[1], ARGV[1]) then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
return 1
`)

// RedisTransport is a Transport over Redis lists and a sorted set of
// in-flight deadlines. The receipt is the message id, so a receipt from an
// earlier receive still addresses the message after redelivery.
type RedisTransport struct {
	client       redis.UniversalClient
	name         string
	dedupWindow  time.Duration
	pollInterval time.Duration
}

func NewRedisTransport(client redis.UniversalClient, name string, dedupWindow, pollInterval time.Duration) *RedisTransport {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &RedisTransport{client: client, name: name, dedupWindow: dedupWindow, pollInterval: pollInterval}
}

func (t *RedisTransport) key(part string) string { return t.name + ":" + part }

func (t *RedisTransport) Send(ctx context.Context, msg QueueMessage) error {
	if msg.SubmittedAt.IsZero() {
		msg.SubmittedAt = time.Now()
	}
	env, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	id := uuid.NewString()
	dedup := msg.DedupKey
	if dedup == "" {
		dedup = id
	}
	ok, err := sendScript.Run(ctx, t.client,
		[]string{t.key("dedup:" + dedup), t.key("ready"), t.key("messages")},
		id, env, t.dedupWindow.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis send: %w", err)
	}
	if ok == 0 {
		return ErrDuplicate
	}
	return nil
}

func (t *RedisTransport) Receive(ctx context.Context, visibility time.Duration) (Delivery, error) {
	for {
		now := time.Now()
		res, err := receiveScript.Run(ctx, t.client,
			[]string{t.key("ready"), t.key("inflight"), t.key("messages"), t.key("receives")},
			now.UnixMilli(), now.Add(visibility).UnixMilli(),
		).Slice()
		switch {
		case err == nil:
			return decodeDelivery(res)
		case !errors.Is(err, redis.Nil):
			if ctx.Err() != nil {
				return Delivery{}, ctx.Err()
			}
			return Delivery{}, fmt.Errorf("redis receive: %w", err)
		}

		timer := time.NewTimer(t.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Delivery{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func decodeDelivery(res []any) (Delivery, error) {
	if len(res) != 3 {
		return Delivery{}, fmt.Errorf("redis receive: unexpected reply %v", res)
	}
	id, _ := res[0].(string)
	env, _ := res[1].(string)
	n, _ := res[2].(int64)
	d := Delivery{Receipt: id, ReceiveCount: int(n)}
	if err := json.Unmarshal([]byte(env), &d.Message); err != nil {
		// keep the delivery so the caller can settle it
		d.Message.Body = json.RawMessage(env)
	}
	return d, nil
}

func (t *RedisTransport) settle(ctx context.Context, receipt string, dead bool) error {
	flag := "0"
	if dead {
		flag = "1"
	}
	ok, err := settleScript.Run(ctx, t.client,
		[]string{t.key("inflight"), t.key("messages"), t.key("receives"), t.key("dead")},
		receipt, flag,
	).Int()
	if err != nil {
		return fmt.Errorf("redis settle: %w", err)
	}
	if ok == 0 {
		return ErrUnknownReceipt
	}
	return nil
}

func (t *RedisTransport) Ack(ctx context.Context, receipt string) error {
	return t.settle(ctx, receipt, false)
}

func (t *RedisTransport) DeadLetter(ctx context.Context, receipt string) error {
	return t.settle(ctx, receipt, true)
}

func (t *RedisTransport) ChangeVisibility(ctx context.Context, receipt string, d time.Duration) error {
	ok, err := visibilityScript.Run(ctx, t.client,
		[]string{t.key("inflight")},
		receipt, time.Now().Add(d).UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis change visibility: %w", err)
	}
	if ok == 0 {
		return ErrUnknownReceipt
	}
	return nil
}

func (t *RedisTransport) DeadLetters(ctx context.Context) ([]QueueMessage, error) {
	raw, err := t.client.LRange(ctx, t.key("dead"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis dead letters: %w", err)
	}
	out := make([]QueueMessage, 0, len(raw))
	for _, r := range raw {
		var m QueueMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			m.Body = json.RawMessage(r)
		}
		out = append(out, m)
	}
	return out, nil
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}
