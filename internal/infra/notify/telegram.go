package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"payment-flows/internal/domain/ports/adapter"
)

var _ adapter.OpsNotifier = (*TelegramNotifier)(nil)

// TelegramNotifier pushes operational alerts to a fixed ops chat. It is
// deliberately dumb: one message per call, no formatting, no retries beyond
// what the bot API client does itself.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	_, err := n.bot.Send(msg)
	return err
}
