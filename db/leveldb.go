package db

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

type LevelDB struct {
	db *leveldb.DB
	// serializes CompareAndSwap; leveldb holds a process-exclusive file lock
	casMu sync.Mutex
}

func (l *LevelDB) Put(_ context.Context, key []byte, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(_ context.Context, key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) Has(_ context.Context, key []byte) (bool, error) {
	return l.db.Has(key, nil)
}

func (l *LevelDB) Get(_ context.Context, key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (l *LevelDB) CompareAndSwap(ctx context.Context, key []byte, old []byte, value []byte) (bool, error) {
	l.casMu.Lock()
	defer l.casMu.Unlock()

	current, err := l.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		if old != nil {
			return false, nil
		}
	case err != nil:
		return false, err
	default:
		if old == nil || !bytes.Equal(current, old) {
			return false, nil
		}
	}

	if err := l.db.Put(key, value, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

func NewLevelDB(dbDir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dbDir, nil)
	if err != nil {
		return nil, err
	}

	return &LevelDB{db: db}, nil
}

// NewMemLevelDB opens a LevelDB backed by memory storage.
func NewMemLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}

	return &LevelDB{db: db}, nil
}
