package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data prefixes.
const (
	callbackSource = "src"
	callbackAction = "act"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	ack := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(ack); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	data, err := ParseCallback(cb.Data)
	if err != nil {
		b.log.Debug("ignore callback", "data", cb.Data, "error", err)
		return
	}

	var userID int64
	if cb.From != nil {
		userID = cb.From.ID
		b.log.Info("callback",
			"kind", data.Kind,
			"action", data.Action,
			"source", data.SourceID,
			"chat_id", chatID,
			"user_id", userID,
			"username", cb.From.UserName,
		)
	}

	switch data.Kind {
	case callbackSource:
		src, ok := b.pipe.Source(data.SourceID)
		if !ok {
			b.reply(chatID, fmt.Sprintf("Source %q not found.", data.SourceID))
			return
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s\n%s\n\nWhat do you want to see?", src.Name, src.URL))
		msg.DisableWebPagePreview = true
		msg.ReplyMarkup = actionKeyboard(src.ID)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send action keyboard", "error", err)
		}
	case callbackAction:
		b.runAction(ctx, chatID, userID, data.Action, data.SourceID)
	}
}
