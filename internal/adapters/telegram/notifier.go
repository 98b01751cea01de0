package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/config"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
)

// Notifier pushes alert events to the configured Telegram chat
type Notifier struct {
	api *tgbotapi.BotAPI
	cfg *config.TelegramConfig
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{api: bot, cfg: cfg}, nil
}

// SendAlerts sends one message per alert event. Delivery failures are logged
// and do not abort the batch; the event history is already persisted.
func (n *Notifier) SendAlerts(ctx context.Context, events []AlertView) error {
	var firstErr error
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg := tgbotapi.NewMessage(n.cfg.ChatID, formatAlert(ev))
		msg.ParseMode = tgbotapi.ModeMarkdown

		if _, err := n.api.Send(msg); err != nil {
			logger.Error("failed to send alert",
				zap.String("rule", ev.Rule),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// AlertView is the notifier-facing shape of one alert event
type AlertView struct {
	Rule     string
	Severity string
	Period   string
	Value    float64
	Message  string
}

func formatAlert(ev AlertView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n", severityEmoji(ev.Severity), strings.ReplaceAll(ev.Rule, "_", " "))
	fmt.Fprintf(&b, "Severity: %s\n", ev.Severity)
	fmt.Fprintf(&b, "Period: %s\n", ev.Period)
	fmt.Fprintf(&b, "Score: %.1f\n\n", ev.Value)
	b.WriteString(ev.Message)
	return b.String()
}

func severityEmoji(severity string) string {
	switch severity {
	case "CRITICAL":
		return "🚨"
	case "HIGH":
		return "⚠️"
	default:
		return "ℹ️"
	}
}
