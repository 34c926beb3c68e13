package txrelayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/Psychedelic/terabethia-relayer/alert"
	"github.com/Psychedelic/terabethia-relayer/codec"
	"github.com/Psychedelic/terabethia-relayer/config"
	"github.com/Psychedelic/terabethia-relayer/db"
)

// Sender submits outbound envelopes to the destination. It must be the only writer of
// the nonce counter, so it runs with a concurrency of exactly one.
type Sender struct {
	Deps
	checkDelay time.Duration
	attempts   uint
	retryDelay time.Duration
}

func NewSender(deps Deps, cfg config.SenderConfig) *Sender {
	deps.Logger = deps.Logger.Named("sender")
	// zero attempts would make retry-go retry forever
	attempts := cfg.BookkeepingAttempts
	if attempts == 0 {
		attempts = 1
	}

	return &Sender{
		Deps:       deps,
		checkDelay: cfg.CheckDelay,
		attempts:   attempts,
		retryDelay: defaultBookkeepingRetryDelay,
	}
}

func (s *Sender) Handle(ctx context.Context, e Envelope) error {
	if e.Kind != KindSubmit && e.Kind != KindResubmit {
		return NewTerminal(fmt.Errorf("sender cannot handle %s envelope", e.Kind))
	}

	a, b, err := codec.SplitUint256(e.Hash)
	if err != nil {
		return NewTerminal(fmt.Errorf("message %s: %w", e.Key, err))
	}

	var (
		nonce  uint64
		stored *uint64
	)
	if e.Kind == KindResubmit {
		nonce = uint64(*e.Nonce)
	} else {
		last, found, err := s.Store.GetLastNonce(ctx)
		if err != nil {
			return err
		}
		if found {
			nonce, stored = last, &last
		}
	}

	res, err := s.Dest.Submit(ctx, a, b, nonce)
	if err != nil {
		s.Metrics.SubmissionsTotal.WithLabelValues(string(e.Kind), "error").Inc()
		if isNonceError(err) {
			s.Alerts.Notify(ctx, alert.Alert{
				Kind:    alert.KindNonceConflict,
				Message: "destination rejected the nonce, run `nonce sync` if this persists",
				Fields:  map[string]any{"key": e.Key, "nonce": nonce, "error": err.Error()},
			})
		}
		return fmt.Errorf("submit %s with nonce %d: %w", e.Key, nonce, err)
	}
	if res == nil || res.TxHash == "" {
		s.Metrics.SubmissionsTotal.WithLabelValues(string(e.Kind), "no_tx_hash").Inc()
		return NewTerminal(fmt.Errorf("submit %s with nonce %d: %w", e.Key, nonce, ErrMissingTxHash))
	}

	s.Metrics.SubmissionsTotal.WithLabelValues(string(e.Kind), "ok").Inc()
	s.Logger.Infow("submitted message", "key", e.Key, "kind", e.Kind, "nonce", nonce, "txHash", res.TxHash)

	// The transaction is out. Nothing below may fail the delivery or it would be sent twice.
	return s.bookkeep(ctx, e, res.TxHash, nonce, stored)
}

func (s *Sender) bookkeep(ctx context.Context, e Envelope, txHash string, nonce uint64, stored *uint64) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error

	if e.Kind == KindSubmit {
		err := s.retry(ctx, func() error {
			return s.Store.CompareAndSetLastNonce(ctx, stored, nonce+1)
		})
		switch {
		case errors.Is(err, db.ErrNonceConflict):
			errs = append(errs, s.absorb(ctx, alert.KindNonceConflict, "set_last_nonce", e, txHash, err))
		case err != nil:
			errs = append(errs, s.absorb(ctx, alert.KindBookkeepingFailed, "set_last_nonce", e, txHash, err))
		default:
			s.Metrics.LastNonce.Set(float64(nonce + 1))
		}
	}

	if err := s.retry(ctx, func() error {
		return s.Store.RecordTransaction(ctx, txHash, []string{e.Key})
	}); err != nil {
		errs = append(errs, s.absorb(ctx, alert.KindBookkeepingFailed, "record_transaction", e, txHash, err))
	}

	if err := s.retry(ctx, func() error {
		return s.EnqueueCheck(ctx, txHash, e.Key, e.Hash, nonce, s.checkDelay)
	}); err != nil {
		s.Metrics.EnqueueFailuresTotal.WithLabelValues(string(KindCheck)).Inc()
		errs = append(errs, s.absorb(ctx, alert.KindBookkeepingFailed, "enqueue_check", e, txHash, err))
	}

	return NewAbsorbed(errors.Join(errs...))
}

func (s *Sender) retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, db.ErrNonceConflict)
		}),
	)
}

func (s *Sender) absorb(ctx context.Context, kind, step string, e Envelope, txHash string, err error) error {
	s.Metrics.AbsorbedErrorsTotal.WithLabelValues(step).Inc()
	s.Alerts.Notify(ctx, alert.Alert{
		Kind:    kind,
		Message: fmt.Sprintf("%s failed after submission", step),
		Fields: map[string]any{
			"key":    e.Key,
			"hash":   e.Hash,
			"txHash": txHash,
			"error":  err.Error(),
		},
	})
	return fmt.Errorf("%s: %w", step, err)
}
