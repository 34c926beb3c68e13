package queue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyBody       = errors.New("message body is empty")
	ErrStaleDelivery   = errors.New("delivery is no longer held by this receiver")
	ErrUnknownDelivery = errors.New("unknown delivery")
)

// Message is an entry to append to a queue.
type Message struct {
	Body []byte
	// GroupID orders messages: entries of one group are delivered one at a time, in order.
	GroupID string
	// DedupID drops a send when an entry with the same id was sent within the dedup window.
	DedupID string
	Delay   time.Duration
}

// Delivery is a received entry. It stays invisible until acked, nacked or its visibility expires.
type Delivery struct {
	ID       string
	Body     []byte
	GroupID  string
	Attempts int

	receipt string
}

// Queue is an at-least-once queue with per-group FIFO ordering.
type Queue interface {
	Name() string
	Send(ctx context.Context, msg Message) error
	// Receive blocks up to wait for an entry. It returns nil, nil when none became available.
	Receive(ctx context.Context, wait time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Nack makes the entry visible again after delay.
	Nack(ctx context.Context, d *Delivery, delay time.Duration) error
}
