package db

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	pkgerrors "github.com/pkg/errors"
)

const (
	processingKeyPrefix = "msg_"
	messageTxKeyPrefix  = "msgKey_"
	lastNonceKey        = "lastNonce"

	DefaultClaimCacheSize = 4096
)

var ErrNonceConflict = errors.New("last nonce was changed by another writer")

func processingKey(msgKey string) string { return processingKeyPrefix + msgKey }
func messageTxKey(msgKey string) string  { return messageTxKeyPrefix + msgKey }

type processingMarker struct {
	CreatedAt int64 `json:"createdAt"`
}

type transactionRecord struct {
	Messages  []string `json:"messages"`
	CreatedAt int64    `json:"createdAt"`
}

// Store keeps the relay's durable bookkeeping: processing markers, transaction records
// and the nonce counter of the destination account.
type Store struct {
	db IDB
	// claims are never deleted, so positive answers can be cached
	claimed *lru.Cache[string, struct{}]
}

func NewStore(db IDB, claimCacheSize int) (*Store, error) {
	if claimCacheSize <= 0 {
		claimCacheSize = DefaultClaimCacheSize
	}
	claimed, err := lru.New[string, struct{}](claimCacheSize)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, claimed: claimed}, nil
}

func (s *Store) IsClaimed(ctx context.Context, msgKey string) (bool, error) {
	if s.claimed.Contains(msgKey) {
		return true, nil
	}

	ok, err := s.db.Has(ctx, []byte(processingKey(msgKey)))
	if err != nil {
		return false, pkgerrors.Wrapf(err, "check processing marker of %s", msgKey)
	}
	if ok {
		s.claimed.Add(msgKey, struct{}{})
	}
	return ok, nil
}

// Claim marks a message as being processed. Claiming twice leaves the first marker untouched.
func (s *Store) Claim(ctx context.Context, msgKey string) error {
	if s.claimed.Contains(msgKey) {
		return nil
	}

	marker, err := json.Marshal(processingMarker{CreatedAt: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	if _, err := s.db.CompareAndSwap(ctx, []byte(processingKey(msgKey)), nil, marker); err != nil {
		return pkgerrors.Wrapf(err, "claim %s", msgKey)
	}

	s.claimed.Add(msgKey, struct{}{})
	return nil
}

// ClaimedAt returns when a message was claimed.
func (s *Store) ClaimedAt(ctx context.Context, msgKey string) (time.Time, bool, error) {
	var marker processingMarker
	found, err := GetJSON(ctx, s.db, processingKey(msgKey), &marker)
	if err != nil || !found {
		return time.Time{}, found, err
	}
	return time.UnixMilli(marker.CreatedAt), true, nil
}

// RecordTransaction stores txHash -> keys and the reverse key -> txHash relation.
func (s *Store) RecordTransaction(ctx context.Context, txHash string, msgKeys []string) error {
	record := transactionRecord{Messages: msgKeys, CreatedAt: time.Now().UnixMilli()}
	if err := PutJSON(ctx, s.db, txHash, record); err != nil {
		return pkgerrors.Wrapf(err, "store transaction %s", txHash)
	}

	for _, msgKey := range msgKeys {
		if err := s.db.Put(ctx, []byte(messageTxKey(msgKey)), []byte(txHash)); err != nil {
			return pkgerrors.Wrapf(err, "store transaction of message %s", msgKey)
		}
	}
	return nil
}

// GetMessagesForTransaction returns an empty list for unknown transactions.
func (s *Store) GetMessagesForTransaction(ctx context.Context, txHash string) ([]string, error) {
	var record transactionRecord
	found, err := GetJSON(ctx, s.db, txHash, &record)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "load transaction %s", txHash)
	}
	if !found || record.Messages == nil {
		return []string{}, nil
	}
	return record.Messages, nil
}

func (s *Store) GetTransactionForMessage(ctx context.Context, msgKey string) (string, bool, error) {
	val, err := s.db.Get(ctx, []byte(messageTxKey(msgKey)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, pkgerrors.Wrapf(err, "load transaction of message %s", msgKey)
	}
	return string(val), true, nil
}

func (s *Store) GetLastNonce(ctx context.Context) (uint64, bool, error) {
	n, found, err := GetUint64(ctx, s.db, lastNonceKey)
	return n, found, pkgerrors.Wrap(err, "load last nonce")
}

func (s *Store) SetLastNonce(ctx context.Context, nonce uint64) error {
	return pkgerrors.Wrap(SetUint64(ctx, s.db, lastNonceKey, nonce), "store last nonce")
}

// CompareAndSetLastNonce writes next only if the stored nonce still equals expected
// (nil expected means no nonce stored yet), otherwise it returns ErrNonceConflict.
func (s *Store) CompareAndSetLastNonce(ctx context.Context, expected *uint64, next uint64) error {
	var old []byte
	if expected != nil {
		old = []byte(strconv.FormatUint(*expected, 10))
	}

	ok, err := s.db.CompareAndSwap(ctx, []byte(lastNonceKey), old, []byte(strconv.FormatUint(next, 10)))
	if err != nil {
		return pkgerrors.Wrap(err, "store last nonce")
	}
	if !ok {
		return ErrNonceConflict
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
