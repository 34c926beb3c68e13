package txrelayer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Psychedelic/terabethia-relayer/alert"
	"github.com/Psychedelic/terabethia-relayer/queue"
)

const (
	baseBackoff         = 5 * time.Second
	maxBackoffDoublings = 20
)

// Handler processes one decoded envelope. The returned error is classified by Classify.
type Handler func(ctx context.Context, e Envelope) error

type ConsumerConfig struct {
	Concurrency int
	WaitTime    time.Duration
	MaxBackoff  time.Duration
}

// Consumer runs receive, handle and ack or nack on a queue with a fixed number of workers.
type Consumer struct {
	Deps
	name    string
	queue   queue.Queue
	handler Handler
	cfg     ConsumerConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(name string, q queue.Queue, handler Handler, cfg ConsumerConfig, deps Deps) *Consumer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	deps.Logger = deps.Logger.Named(name)

	return &Consumer{
		Deps:    deps,
		name:    name,
		queue:   q,
		handler: handler,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Consumer) Name() string {
	return c.name
}

func (c *Consumer) Start() {
	c.Logger.Infof("consume %s with %d workers", c.queue.Name(), c.cfg.Concurrency)
	for i := 0; i < c.cfg.Concurrency; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.consumeLoop()
		}()
	}
}

func (c *Consumer) Stop() {
	c.cancel()
}

func (c *Consumer) WaitForShutdown() {
	c.wg.Wait()
}

func (c *Consumer) consumeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if _, err := c.RunOnce(c.ctx); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.Logger.Errorf("Failed to receive from %s, error: %v", c.queue.Name(), err)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(connectErrWaitInterval):
			}
		}
	}
}

// RunOnce receives and handles at most one delivery. It reports whether one was received;
// the error is only about the queue itself.
func (c *Consumer) RunOnce(ctx context.Context) (bool, error) {
	d, err := c.queue.Receive(ctx, c.cfg.WaitTime)
	if err != nil {
		return false, err
	}
	if d == nil {
		return false, nil
	}

	return true, c.process(ctx, d)
}

func (c *Consumer) process(ctx context.Context, d *queue.Delivery) error {
	e, err := DecodeEnvelope(d.Body)
	if err != nil {
		err = NewTerminal(err)
	} else {
		err = c.handler(ctx, e)
	}

	// settle the delivery even while shutting down
	settleCtx := context.WithoutCancel(ctx)
	if err == nil {
		c.Metrics.DeliveriesTotal.WithLabelValues(c.name, "ok").Inc()
		return c.queue.Ack(settleCtx, d)
	}

	class := Classify(err)
	c.Metrics.DeliveriesTotal.WithLabelValues(c.name, class.String()).Inc()

	switch class {
	case Terminal:
		c.Logger.Errorw("drop message", "id", d.ID, "body", string(d.Body), "attempts", d.Attempts, "error", err)
		c.Alerts.Notify(settleCtx, alert.Alert{
			Kind:    alert.KindTerminal,
			Message: "message dropped",
			Fields:  map[string]any{"queue": c.queue.Name(), "body": string(d.Body), "error": err.Error()},
		})
		return c.queue.Ack(settleCtx, d)

	case Absorbed:
		c.Logger.Warnw("message handled with absorbed errors", "id", d.ID, "body", string(d.Body), "error", err)
		return c.queue.Ack(settleCtx, d)

	default:
		delay := backoff(d.Attempts, c.cfg.MaxBackoff)
		if errors.Is(err, ErrNotYetAccepted) {
			c.Logger.Infow("retry message", "id", d.ID, "attempts", d.Attempts, "delay", delay, "error", err)
		} else {
			c.Logger.Warnw("retry message", "id", d.ID, "attempts", d.Attempts, "delay", delay, "error", err)
		}
		return c.queue.Nack(settleCtx, d, delay)
	}
}

// backoff doubles from baseBackoff per attempt, capped at max when max is set.
func backoff(attempts int, max time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > maxBackoffDoublings {
		attempts = maxBackoffDoublings
	}

	delay := baseBackoff << (attempts - 1)
	if max > 0 && delay > max {
		return max
	}
	return delay
}
