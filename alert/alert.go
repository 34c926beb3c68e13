package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Psychedelic/terabethia-relayer/config"
)

const DefaultTimeout = 5 * time.Second

// Alert kinds that need manual reconciliation.
const (
	KindEnqueueFailed     = "enqueue_failed"
	KindBookkeepingFailed = "bookkeeping_failed"
	KindNonceConflict     = "nonce_conflict"
	KindTerminal          = "terminal"
)

type Alert struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
	Time    time.Time      `json:"time"`
}

// Notifier delivers alerts. Notify is best-effort and never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, a Alert)
}

func New(cfg config.AlertConfig, logger *zap.Logger) Notifier {
	if cfg.WebhookUrl == "" {
		return NewLogNotifier(logger)
	}
	return NewWebhookNotifier(cfg.WebhookUrl, cfg.Timeout, logger)
}

// LogNotifier only logs alerts.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Sugar().Named("alert")}
}

func (n *LogNotifier) Notify(_ context.Context, a Alert) {
	n.logger.Errorw(a.Message, "kind", a.Kind, "fields", a.Fields)
}

// WebhookNotifier posts alerts as JSON to a configured endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.SugaredLogger
}

func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.Sugar().Named("alert"),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, a Alert) {
	if a.Time.IsZero() {
		a.Time = time.Now().UTC()
	}
	n.logger.Errorw(a.Message, "kind", a.Kind, "fields", a.Fields)

	if err := n.post(ctx, a); err != nil {
		n.logger.Warnw("deliver alert failed", "kind", a.Kind, "error", err)
	}
}

func (n *WebhookNotifier) post(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	// the caller may be shutting down; alerts still go out
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}
