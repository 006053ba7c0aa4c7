package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramRelay posts operator messages to a single chat.
type TelegramRelay struct {
	bot    botSender
	chatID int64
}

// NewTelegramRelay connects the bot with token.
func NewTelegramRelay(token string, chatID int64, debug bool) (*TelegramRelay, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	api.Debug = debug
	return &TelegramRelay{bot: api, chatID: chatID}, nil
}

func (t *TelegramRelay) SendOps(_ context.Context, text string) error {
	if t.chatID == 0 {
		return ErrNotConfigured
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", t.chatID, err)
	}
	return nil
}
