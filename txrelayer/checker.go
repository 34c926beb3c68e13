package txrelayer

import (
	"context"
	"fmt"

	"github.com/Psychedelic/terabethia-relayer/ledger"
)

// Checker follows a submitted transaction until it is accepted or rejected.
type Checker struct {
	Deps
}

func NewChecker(deps Deps) *Checker {
	deps.Logger = deps.Logger.Named("checker")
	return &Checker{Deps: deps}
}

func (c *Checker) Handle(ctx context.Context, e Envelope) error {
	if e.Kind != KindCheck {
		return NewTerminal(fmt.Errorf("checker cannot handle %s envelope", e.Kind))
	}

	status, err := c.Dest.GetStatus(ctx, e.TxHash)
	if err != nil {
		return fmt.Errorf("get status of %s: %w", e.TxHash, err)
	}
	c.Metrics.CheckOutcomesTotal.WithLabelValues(string(status)).Inc()

	switch {
	case status.Accepted():
		keys, err := c.Store.GetMessagesForTransaction(ctx, e.TxHash)
		if err != nil {
			c.Logger.Warnw("load messages of accepted transaction", "txHash", e.TxHash, "error", err)
			keys = []string{e.Key}
		}
		c.Logger.Infow("transaction accepted", "txHash", e.TxHash, "status", status, "keys", keys)
		return nil

	case status == ledger.StatusRejected:
		if err := c.EnqueueResubmit(ctx, e.Key, e.Hash, uint64(*e.Nonce), e.TxHash); err != nil {
			return fmt.Errorf("enqueue resubmit of %s: %w", e.Key, err)
		}
		c.Logger.Infow("transaction rejected, resubmitting", "txHash", e.TxHash, "key", e.Key, "nonce", uint64(*e.Nonce))
		return nil

	case status == ledger.StatusReverted:
		// the nonce is consumed, resubmitting with it can never succeed
		return NewTerminal(fmt.Errorf("transaction %s of %s reverted", e.TxHash, e.Key))

	default:
		return fmt.Errorf("%w: %s is %s", ErrNotYetAccepted, e.TxHash, status)
	}
}
