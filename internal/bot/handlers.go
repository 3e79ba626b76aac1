package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "info":
		b.handleInfo(ctx, chatID)
	case "subscribe":
		b.handleSubscribe(ctx, chatID)
	case "unsubscribe":
		b.handleUnsubscribe(ctx, chatID)
	case "sources":
		b.handleSources(chatID)
	case actionLast, actionShort, actionFull, actionCheck:
		b.handleSourceAction(ctx, chatID, userID, cmd, args)
	case "checkall":
		b.handleCheckAll(ctx, chatID, userID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to ConcursoBot!

I watch job, exam and event announcement pages and message you when something new is published.

Quick start:
1. /subscribe — receive updates
2. /sources — browse the monitored sources

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Subscription:
/subscribe — receive update broadcasts
/unsubscribe — stop receiving broadcasts

Sources:
/sources — list sources with buttons
/short <id> — latest entries of a source
/full <id> — everything stored for a source
/last <id> — the most recent update of a source
/info — bot and source status

Operators:
/check <id> — check a source now and broadcast updates
/checkall — check every source now`)
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64) {
	subs, err := b.store.ListSubscribers(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStatus(b.pipe.Status(), len(subs)))
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64) {
	added, err := b.store.AddSubscriber(ctx, chatID)
	if err != nil {
		b.log.Error("add subscriber", "chat_id", chatID, "error", err)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if !added {
		b.reply(chatID, "You are already subscribed.")
		return
	}
	b.log.Info("subscribed", "chat_id", chatID)
	b.reply(chatID, "Subscribed! You will receive updates from every monitored source.")
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64) {
	removed, err := b.store.RemoveSubscriber(ctx, chatID)
	if err != nil {
		b.log.Error("remove subscriber", "chat_id", chatID, "error", err)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if !removed {
		b.reply(chatID, "You are not subscribed.")
		return
	}
	b.log.Info("unsubscribed", "chat_id", chatID)
	b.reply(chatID, "Unsubscribed. Use /subscribe to receive updates again.")
}

func (b *Bot) handleSources(chatID int64) {
	sources := b.pipe.Sources()
	msg := tgbotapi.NewMessage(chatID, FormatSourceList(sources))
	msg.DisableWebPagePreview = true
	if len(sources) > 0 {
		msg.ReplyMarkup = sourceKeyboard(sources)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send sources", "error", err)
	}
}

func (b *Bot) handleSourceAction(ctx context.Context, chatID, userID int64, action, args string) {
	id, err := ParseSourceArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <id>", action))
		return
	}
	b.runAction(ctx, chatID, userID, action, id)
}

func (b *Bot) handleCheckAll(ctx context.Context, chatID, userID int64) {
	if !b.allowed(userID) {
		b.reply(chatID, "Access denied.")
		return
	}
	b.reply(chatID, "Checking every source...")
	b.background(ctx, func(ctx context.Context) {
		b.reply(chatID, FormatResults(b.pipe.ForceAll(ctx, true)))
	})
}
