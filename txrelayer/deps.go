package txrelayer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Psychedelic/terabethia-relayer/alert"
	"github.com/Psychedelic/terabethia-relayer/db"
	"github.com/Psychedelic/terabethia-relayer/ledger"
	"github.com/Psychedelic/terabethia-relayer/metrics"
	"github.com/Psychedelic/terabethia-relayer/queue"
)

// Deps are the clients shared by all pipeline stages. They are built once at startup.
type Deps struct {
	Logger   *zap.SugaredLogger
	Store    *db.Store
	Outbound queue.Queue
	Check    queue.Queue
	Source   ledger.Source
	Dest     ledger.Destination
	Alerts   alert.Notifier
	Metrics  *metrics.Metrics
	// GroupID orders the outbound queue; one group per source account.
	GroupID string
}

func (d Deps) enqueue(ctx context.Context, q queue.Queue, e Envelope, groupID, dedupID string, delay time.Duration) error {
	msg, err := e.Message(groupID, dedupID, delay)
	if err != nil {
		return err
	}
	if err := q.Send(ctx, msg); err != nil {
		return err
	}

	d.Metrics.EnqueuedTotal.WithLabelValues(string(e.Kind)).Inc()
	return nil
}

// EnqueueSubmit puts a new message on the outbound queue.
func (d Deps) EnqueueSubmit(ctx context.Context, key, hash string) error {
	e := NewSubmit(key, hash)
	return d.enqueue(ctx, d.Outbound, e, d.GroupID, e.DedupID(""), 0)
}

// EnqueueResubmit puts a message back on the outbound queue with a fixed nonce.
// rejectedTxHash may be empty for a manual replay.
func (d Deps) EnqueueResubmit(ctx context.Context, key, hash string, nonce uint64, rejectedTxHash string) error {
	e := NewResubmit(key, hash, nonce)
	return d.enqueue(ctx, d.Outbound, e, d.GroupID, e.DedupID(rejectedTxHash), 0)
}

// EnqueueCheck schedules a status check. Checks are independent, each is its own group.
func (d Deps) EnqueueCheck(ctx context.Context, txHash, key, hash string, nonce uint64, delay time.Duration) error {
	e := NewCheck(txHash, key, hash, nonce)
	return d.enqueue(ctx, d.Check, e, txHash, e.DedupID(""), delay)
}
