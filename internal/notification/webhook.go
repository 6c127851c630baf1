package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"market-analyzer/internal/logger"

	"github.com/go-resty/resty/v2"
)

// WebhookNotifier sends alerts to a generic HTTP webhook endpoint.
type WebhookNotifier struct {
	url    string
	client *resty.Client
	log    *slog.Logger
}

// NewWebhookNotifier creates a webhook notifier posting JSON to url.
func NewWebhookNotifier(url string, log *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: resty.New().SetTimeout(10 * time.Second),
		log:    logger.For(log, "notify"),
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"level":   string(alert.Level),
		"title":   alert.Title,
		"message": alert.Message,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode())
	}

	w.log.Debug("alert sent", "channel", "webhook", "title", alert.Title)
	return nil
}
