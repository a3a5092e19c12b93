package notify

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Notifier delivers user-facing notices. Delivery failures are for the caller
// to log; nothing here retries.
type Notifier interface {
	Send(ctx context.Context, telegramID int64, text string) error
}

type Telegram struct {
	Bot *telego.Bot
}

func NewTelegram(bot *telego.Bot) *Telegram {
	return &Telegram{Bot: bot}
}

func (t *Telegram) Send(ctx context.Context, telegramID int64, text string) error {
	_, err := t.Bot.SendMessage(ctx, tu.Message(tu.ID(telegramID), text))
	if err != nil {
		return fmt.Errorf("failed to send message to %d: %w", telegramID, err)
	}
	return nil
}
