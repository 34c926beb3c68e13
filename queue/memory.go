package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

const memoryPollInterval = 20 * time.Millisecond

type memoryEntry struct {
	id        string
	body      []byte
	group     string
	visibleAt time.Time
	attempts  int
}

// MemoryQueue is an in-process Queue for local runs and tests.
type MemoryQueue struct {
	name        string
	visibility  time.Duration
	dedupWindow time.Duration
	now         func() time.Time

	mu      sync.Mutex
	seq     uint64
	entries []*memoryEntry
	dedup   map[string]time.Time
}

func NewMemoryQueue(name string, visibility time.Duration, dedupWindow time.Duration) *MemoryQueue {
	return &MemoryQueue{
		name:        name,
		visibility:  visibility,
		dedupWindow: dedupWindow,
		now:         time.Now,
		dedup:       make(map[string]time.Time),
	}
}

// WithClock replaces the time source.
func (q *MemoryQueue) WithClock(now func() time.Time) *MemoryQueue {
	q.now = now
	return q
}

func (q *MemoryQueue) Name() string {
	return q.name
}

func (q *MemoryQueue) Send(_ context.Context, msg Message) error {
	if len(msg.Body) == 0 {
		return ErrEmptyBody
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for id, expiry := range q.dedup {
		if !now.Before(expiry) {
			delete(q.dedup, id)
		}
	}
	if msg.DedupID != "" {
		if expiry, ok := q.dedup[msg.DedupID]; ok && now.Before(expiry) {
			return nil
		}
		q.dedup[msg.DedupID] = now.Add(q.dedupWindow)
	}

	q.seq++
	q.entries = append(q.entries, &memoryEntry{
		id:        strconv.FormatUint(q.seq, 10),
		body:      append([]byte(nil), msg.Body...),
		group:     msg.GroupID,
		visibleAt: now.Add(msg.Delay),
	})
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context, wait time.Duration) (*Delivery, error) {
	deadline := q.now().Add(wait)
	for {
		if d := q.tryReceive(); d != nil {
			return d, nil
		}
		if !q.now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(memoryPollInterval):
		}
	}
}

func (q *MemoryQueue) tryReceive() *Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	seen := make(map[string]bool)
	for _, e := range q.entries {
		if e.group != "" {
			// the oldest entry of a group blocks the rest of it
			if seen[e.group] {
				continue
			}
			seen[e.group] = true
		}
		if now.Before(e.visibleAt) {
			continue
		}

		e.attempts++
		e.visibleAt = now.Add(q.visibility)
		return &Delivery{
			ID:       e.id,
			Body:     append([]byte(nil), e.body...),
			GroupID:  e.group,
			Attempts: e.attempts,
			receipt:  strconv.Itoa(e.attempts),
		}
	}
	return nil
}

func (q *MemoryQueue) find(d *Delivery) (int, error) {
	for i, e := range q.entries {
		if e.id != d.ID {
			continue
		}
		if strconv.Itoa(e.attempts) != d.receipt {
			return -1, ErrStaleDelivery
		}
		return i, nil
	}
	return -1, ErrUnknownDelivery
}

func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, err := q.find(d)
	if err != nil {
		return err
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return nil
}

func (q *MemoryQueue) Nack(_ context.Context, d *Delivery, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, err := q.find(d)
	if err != nil {
		return err
	}
	q.entries[i].visibleAt = q.now().Add(delay)
	return nil
}

// Len returns the number of entries not yet acked.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
