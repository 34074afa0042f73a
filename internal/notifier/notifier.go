// Package notifier delivers reminder alerts to users. It is the dispatcher's
// only outbound dependency, so tests can swap in a recording fake.
package notifier

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// Notifier pushes one alert to one chat. An error means delivery did not
// happen and the occurrence must stay pending.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Telegram sends alerts through the chat transport, throttled to stay under
// the Bot API's global send limit.
type Telegram struct {
	adapter transport.Adapter
	limiter *rate.Limiter
	log     logx.Logger
}

// NewTelegram wraps the adapter. perSec bounds outbound sends; values <= 0
// fall back to the Bot API's documented 30 messages per second.
func NewTelegram(adapter transport.Adapter, perSec float64, log logx.Logger) *Telegram {
	if perSec <= 0 {
		perSec = 30
	}
	return &Telegram{
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		log:     log,
	}
}

func (t *Telegram) Notify(ctx context.Context, chatID int64, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	_, err := t.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, &transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	if err != nil {
		return fmt.Errorf("send alert to %d: %w", chatID, err)
	}
	t.log.Debug("alert delivered", logx.Int64("chat_id", chatID))
	return nil
}
