// Package alert delivers operational notifications for conditions that need
// a human: ledger corruption, or money collected without a matching credit.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/consultapj/consultapj/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// NoOpNotifier is used when no webhook is configured.
type NoOpNotifier struct{}

func (NoOpNotifier) Notify(ctx context.Context, message string) error { return nil }

// WebhookNotifier posts Slack-compatible payloads to an incoming webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func (n *WebhookNotifier) Notify(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func New(cfg config.Config, log *zap.Logger) Notifier {
	if cfg.AlertWebhookURL == "" {
		return NoOpNotifier{}
	}
	return &WebhookNotifier{
		url:    cfg.AlertWebhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.Named("alert"),
	}
}

var Module = fx.Module("alert",
	fx.Provide(New),
)
