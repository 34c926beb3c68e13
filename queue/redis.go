package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisPollInterval = 200 * time.Millisecond
	// entries examined per receive; the head of each group blocks the rest of it
	redisScanLimit = 256
)

// KEYS: order, bodies, groups, visible, attempts, seq, dedup
// ARGV: body, group, visibleAt(ms), dedup window(ms) or ""
var sendScript = redis.NewScript(`
if ARGV[4] ~= '' then
  if not redis.call('SET', KEYS[7], '1', 'NX', 'PX', ARGV[4]) then
    return 0
  end
end
local id = redis.call('INCR', KEYS[6])
redis.call('HSET', KEYS[2], id, ARGV[1])
redis.call('HSET', KEYS[3], id, ARGV[2])
redis.call('HSET', KEYS[4], id, ARGV[3])
redis.call('ZADD', KEYS[1], id, id)
return id
`)

// KEYS: order, bodies, groups, visible, attempts
// ARGV: now(ms), invisible until(ms), scan limit
var receiveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local ids = redis.call('ZRANGE', KEYS[1], 0, tonumber(ARGV[3]) - 1)
local seen = {}
for _, id in ipairs(ids) do
  local group = redis.call('HGET', KEYS[3], id) or ''
  local blocked = false
  if group ~= '' then
    blocked = seen[group] ~= nil
    seen[group] = true
  end
  if not blocked then
    local visibleAt = tonumber(redis.call('HGET', KEYS[4], id) or '0')
    if visibleAt <= now then
      redis.call('HSET', KEYS[4], id, ARGV[2])
      local attempts = redis.call('HINCRBY', KEYS[5], id, 1)
      return {id, redis.call('HGET', KEYS[2], id), group, attempts}
    end
  end
end
return false
`)

// KEYS: order, bodies, groups, visible, attempts
// ARGV: id, attempts of the delivery
var ackScript = redis.NewScript(`
if redis.call('HGET', KEYS[5], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
redis.call('HDEL', KEYS[5], ARGV[1])
return 1
`)

// KEYS: visible, attempts
// ARGV: id, attempts of the delivery, visibleAt(ms)
var nackScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
return 1
`)

// RedisQueue keeps a queue in a handful of redis keys sharing one hash tag.
type RedisQueue struct {
	client      redis.UniversalClient
	name        string
	visibility  time.Duration
	dedupWindow time.Duration
	now         func() time.Time
}

func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisQueue(client redis.UniversalClient, name string, visibility, dedupWindow time.Duration) *RedisQueue {
	return &RedisQueue{
		client:      client,
		name:        name,
		visibility:  visibility,
		dedupWindow: dedupWindow,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (q *RedisQueue) WithClock(now func() time.Time) *RedisQueue {
	q.now = now
	return q
}

func (q *RedisQueue) Name() string {
	return q.name
}

func (q *RedisQueue) key(suffix string) string {
	return "{" + q.name + "}:" + suffix
}

func (q *RedisQueue) entryKeys() []string {
	return []string{q.key("order"), q.key("bodies"), q.key("groups"), q.key("visible"), q.key("attempts")}
}

func (q *RedisQueue) Send(ctx context.Context, msg Message) error {
	if len(msg.Body) == 0 {
		return ErrEmptyBody
	}

	dedupWindow := ""
	if msg.DedupID != "" {
		dedupWindow = strconv.FormatInt(q.dedupWindow.Milliseconds(), 10)
	}
	keys := append(q.entryKeys(), q.key("seq"), q.key("dedup:"+msg.DedupID))
	visibleAt := q.now().Add(msg.Delay).UnixMilli()

	err := sendScript.Run(ctx, q.client, keys, msg.Body, msg.GroupID, visibleAt, dedupWindow).Err()
	if err != nil {
		return fmt.Errorf("redis send to %s: %w", q.name, err)
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context, wait time.Duration) (*Delivery, error) {
	deadline := q.now().Add(wait)
	for {
		d, err := q.tryReceive(ctx)
		if err != nil || d != nil {
			return d, err
		}
		if !q.now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisPollInterval):
		}
	}
}

func (q *RedisQueue) tryReceive(ctx context.Context) (*Delivery, error) {
	now := q.now()
	res, err := receiveScript.Run(ctx, q.client, q.entryKeys(),
		now.UnixMilli(), now.Add(q.visibility).UnixMilli(), redisScanLimit).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis receive from %s: %w", q.name, err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("redis receive from %s: unexpected reply %v", q.name, res)
	}

	id, _ := res[0].(string)
	body, _ := res[1].(string)
	group, _ := res[2].(string)
	attempts, _ := res[3].(int64)
	return &Delivery{
		ID:       id,
		Body:     []byte(body),
		GroupID:  group,
		Attempts: int(attempts),
		receipt:  strconv.FormatInt(attempts, 10),
	}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	n, err := ackScript.Run(ctx, q.client, q.entryKeys(), d.ID, d.receipt).Int()
	if err != nil {
		return fmt.Errorf("redis ack on %s: %w", q.name, err)
	}
	if n == 0 {
		return ErrStaleDelivery
	}
	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, d *Delivery, delay time.Duration) error {
	keys := []string{q.key("visible"), q.key("attempts")}
	n, err := nackScript.Run(ctx, q.client, keys, d.ID, d.receipt, q.now().Add(delay).UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("redis nack on %s: %w", q.name, err)
	}
	if n == 0 {
		return ErrStaleDelivery
	}
	return nil
}

// Len returns the number of entries not yet acked.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key("order")).Result()
}
