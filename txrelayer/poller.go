package txrelayer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Psychedelic/terabethia-relayer/alert"
	"github.com/Psychedelic/terabethia-relayer/ledger"
)

// Poller moves new outgoing messages from the source ledger onto the outbound queue.
type Poller struct {
	Deps
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller(deps Deps, interval time.Duration) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	deps.Logger = deps.Logger.Named("poller")

	return &Poller{
		Deps:     deps,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (p *Poller) Name() string {
	return "poller"
}

func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop()
	}()
}

func (p *Poller) Stop() {
	p.cancel()
}

func (p *Poller) WaitForShutdown() {
	p.wg.Wait()
}

func (p *Poller) pollLoop() {
	p.Logger.Infof("poll source every %s", p.interval)
	for {
		if err := p.RunOnce(p.ctx); err != nil {
			p.Logger.Errorf("Failed to poll source, error: %v", err)
		}

		select {
		case <-p.ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

// RunOnce performs one poll. A store read failure aborts before anything is written;
// enqueue failures of single messages are alerted and do not stop the run.
func (p *Poller) RunOnce(ctx context.Context) error {
	msgs, err := p.Source.ListOutgoing(ctx)
	if err != nil {
		return fmt.Errorf("list outgoing messages: %w", err)
	}
	p.Metrics.PolledTotal.Add(float64(len(msgs)))
	if len(msgs) == 0 {
		p.Logger.Debugf("No outgoing messages")
		return nil
	}

	unclaimed := make([]ledger.OutgoingMessage, 0, len(msgs))
	for _, msg := range msgs {
		claimed, err := p.Store.IsClaimed(ctx, msg.Key)
		if err != nil {
			return err
		}
		if !claimed {
			unclaimed = append(unclaimed, msg)
		}
	}

	for _, msg := range unclaimed {
		if err := p.EnqueueSubmit(ctx, msg.Key, msg.Hash); err != nil {
			p.Metrics.EnqueueFailuresTotal.WithLabelValues(string(KindSubmit)).Inc()
			p.Alerts.Notify(ctx, alert.Alert{
				Kind:    alert.KindEnqueueFailed,
				Message: "failed to enqueue outgoing message, replay it manually",
				Fields:  map[string]any{"key": msg.Key, "hash": msg.Hash, "error": err.Error()},
			})
			continue
		}
		p.Logger.Infow("enqueued message", "key", msg.Key, "hash", msg.Hash)
	}

	// claims are the at-most-once fence, so a failed enqueue is claimed as well
	for _, msg := range unclaimed {
		if err := p.Store.Claim(ctx, msg.Key); err != nil {
			return err
		}
		p.Metrics.ClaimedTotal.Inc()
	}

	if err := p.Source.Remove(ctx, msgs); err != nil {
		p.Logger.Warnf("Failed to remove %d messages from source, error: %v", len(msgs), err)
		return nil
	}

	p.Logger.Infof("Handled %d messages, %d new", len(msgs), len(unclaimed))
	return nil
}
