package db

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// IDB is a point-read/point-write key-value table. Get returns ErrNotFound for absent keys.
type IDB interface {
	Put(ctx context.Context, key []byte, value []byte) error
	Delete(ctx context.Context, key []byte) error

	Has(ctx context.Context, key []byte) (bool, error)
	Get(ctx context.Context, key []byte) ([]byte, error)

	// CompareAndSwap stores value only if the current value equals old.
	// A nil old means the key must be absent.
	CompareAndSwap(ctx context.Context, key []byte, old []byte, value []byte) (bool, error)

	Close() error
}
