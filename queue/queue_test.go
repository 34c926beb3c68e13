package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testVisibility  = 30 * time.Second
	testDedupWindow = 5 * time.Minute
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func receiveNow(t *testing.T, q Queue) *Delivery {
	t.Helper()
	d, err := q.Receive(context.Background(), 0)
	require.NoError(t, err)
	return d
}

// runQueueTests checks the behaviour shared by every backend. advance moves the
// backend's notion of time forward.
func runQueueTests(t *testing.T, newQueue func(t *testing.T) (Queue, func(time.Duration))) {
	ctx := context.Background()

	t.Run("fifo per group", func(t *testing.T) {
		q, _ := newQueue(t)
		require.NoError(t, q.Send(ctx, Message{Body: []byte("a1"), GroupID: "a"}))
		require.NoError(t, q.Send(ctx, Message{Body: []byte("a2"), GroupID: "a"}))
		require.NoError(t, q.Send(ctx, Message{Body: []byte("b1"), GroupID: "b"}))

		first := receiveNow(t, q)
		require.Equal(t, "a1", string(first.Body))
		require.Equal(t, 1, first.Attempts)

		// a2 is blocked behind the in-flight a1
		second := receiveNow(t, q)
		require.Equal(t, "b1", string(second.Body))
		require.Nil(t, receiveNow(t, q))

		require.NoError(t, q.Ack(ctx, first))
		third := receiveNow(t, q)
		require.Equal(t, "a2", string(third.Body))
	})

	t.Run("dedup window", func(t *testing.T) {
		q, advance := newQueue(t)
		require.NoError(t, q.Send(ctx, Message{Body: []byte("x"), GroupID: "g", DedupID: "k1"}))
		require.NoError(t, q.Send(ctx, Message{Body: []byte("x"), GroupID: "g", DedupID: "k1"}))

		d := receiveNow(t, q)
		require.NotNil(t, d)
		require.NoError(t, q.Ack(ctx, d))
		require.Nil(t, receiveNow(t, q))

		advance(testDedupWindow + time.Second)
		require.NoError(t, q.Send(ctx, Message{Body: []byte("x"), GroupID: "g", DedupID: "k1"}))
		require.NotNil(t, receiveNow(t, q))
	})

	t.Run("delay", func(t *testing.T) {
		q, advance := newQueue(t)
		require.NoError(t, q.Send(ctx, Message{Body: []byte("later"), Delay: time.Minute}))
		require.Nil(t, receiveNow(t, q))

		advance(time.Minute)
		d := receiveNow(t, q)
		require.NotNil(t, d)
		require.Equal(t, "later", string(d.Body))
	})

	t.Run("nack and visibility timeout", func(t *testing.T) {
		q, advance := newQueue(t)
		require.NoError(t, q.Send(ctx, Message{Body: []byte("m"), GroupID: "g"}))

		d := receiveNow(t, q)
		require.NoError(t, q.Nack(ctx, d, 10*time.Second))
		require.Nil(t, receiveNow(t, q))

		advance(10 * time.Second)
		d = receiveNow(t, q)
		require.NotNil(t, d)
		require.Equal(t, 2, d.Attempts)

		// not acked before the visibility timeout: redelivered
		advance(testVisibility)
		redelivered := receiveNow(t, q)
		require.NotNil(t, redelivered)
		require.Equal(t, 3, redelivered.Attempts)

		require.ErrorIs(t, q.Ack(ctx, d), ErrStaleDelivery)
		require.NoError(t, q.Ack(ctx, redelivered))
		require.Nil(t, receiveNow(t, q))
	})

	t.Run("empty body", func(t *testing.T) {
		q, _ := newQueue(t)
		require.ErrorIs(t, q.Send(ctx, Message{}), ErrEmptyBody)
	})
}

func TestMemoryQueue(t *testing.T) {
	runQueueTests(t, func(t *testing.T) (Queue, func(time.Duration)) {
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		q := NewMemoryQueue("test", testVisibility, testDedupWindow).WithClock(clock.Now)
		return q, func(d time.Duration) { clock.now = clock.now.Add(d) }
	})
}

func TestMemoryQueue_ExpiredDedupIdsAreDropped(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	q := NewMemoryQueue("test", testVisibility, testDedupWindow).WithClock(clock.Now)

	for _, id := range []string{"k1", "k2", "k3"} {
		require.NoError(t, q.Send(ctx, Message{Body: []byte(id), DedupID: id}))
	}
	require.Len(t, q.dedup, 3)

	clock.now = clock.now.Add(testDedupWindow)
	require.NoError(t, q.Send(ctx, Message{Body: []byte("k4"), DedupID: "k4"}))
	require.Len(t, q.dedup, 1)
	require.Contains(t, q.dedup, "k4")

	// an expired id is accepted again
	require.NoError(t, q.Send(ctx, Message{Body: []byte("k1"), DedupID: "k1"}))
	require.Equal(t, 5, q.Len())
}

func TestMemoryQueue_ReceiveWaits(t *testing.T) {
	q := NewMemoryQueue("test", testVisibility, testDedupWindow)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = q.Send(context.Background(), Message{Body: []byte("late")})
	}()

	d, err := q.Receive(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, "late", string(d.Body))
	require.Equal(t, 1, q.Len())
}
