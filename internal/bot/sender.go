package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender delivers composed HTML messages through the Bot API.
type Sender struct {
	api telegramAPI
}

// NewSender creates a Sender on top of an API connection.
func NewSender(api *tgbotapi.BotAPI) *Sender {
	return &Sender{api: api}
}

// Send posts text to chatID in HTML parse mode without link previews.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}
