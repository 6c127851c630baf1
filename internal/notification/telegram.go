package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"market-analyzer/internal/logger"

	"github.com/go-resty/resty/v2"
)

// TelegramAPI is the Bot API base URL.
const TelegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts via Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *resty.Client
	log      *slog.Logger
}

// NewTelegramNotifier creates a Telegram notifier. baseURL defaults to
// TelegramAPI when empty.
func NewTelegramNotifier(baseURL, botToken, chatID string, log *slog.Logger) *TelegramNotifier {
	if baseURL == "" {
		baseURL = TelegramAPI
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client:   resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second),
		log:      logger.For(log, "notify"),
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	prefix := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		prefix = "⚠️"
	case AlertCritical:
		prefix = "🚨"
	}

	text := fmt.Sprintf("%s *%s*\n\n%s", prefix, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))

	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("token", t.botToken).
		SetBody(map[string]any{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "MarkdownV2",
		}).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode())
	}

	t.log.Debug("alert sent", "channel", "telegram", "title", alert.Title)
	return nil
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!"
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
