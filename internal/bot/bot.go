// Package bot implements the Telegram front end: subscriber commands, source
// browsing buttons and the message transport used for broadcasts.
package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"concursobot/internal/compose"
	"concursobot/internal/config"
	"concursobot/internal/scheduler"
	"concursobot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Pipeline is the part of the scheduler the bot drives.
type Pipeline interface {
	Sources() []scheduler.Source
	Source(id string) (scheduler.Source, bool)
	View(ctx context.Context, id string, mode compose.Mode, count int) ([]string, error)
	RunNow(ctx context.Context, id string) scheduler.Result
	ForceAll(ctx context.Context, deliver bool) []scheduler.Result
	Status() []scheduler.Status
}

// Long-polling timeout in seconds, and the HTTP timeout of every Bot API
// request, which has to outlast a long poll.
const (
	pollTimeout = 60
	apiTimeout  = 90 * time.Second
)

// Action renders the answer to a source button or command as message batches.
type Action func(ctx context.Context, sourceID string) ([]string, error)

// Action names used in commands and callback data.
const (
	actionShort = "short"
	actionFull  = "full"
	actionLast  = "last"
	actionCheck = "check"
)

// operatorActions require the user to be on the allow list.
var operatorActions = map[string]bool{
	actionCheck: true,
}

// Bot is the Telegram bot that handles user commands.
type Bot struct {
	api     telegramAPI
	sender  *Sender
	store   storage.Storage
	pipe    Pipeline
	cfg     *config.Config
	log     *slog.Logger
	actions map[string]Action
	// jobs tracks operator checks running in the background.
	jobs sync.WaitGroup
}

// NewAPI connects to the Telegram Bot API with token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: apiTimeout})
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

// New creates a Bot on top of an API connection.
func New(api *tgbotapi.BotAPI, store storage.Storage, pipe Pipeline, cfg *config.Config, log *slog.Logger) *Bot {
	return newBot(api, store, pipe, cfg, log)
}

func newBot(api telegramAPI, store storage.Storage, pipe Pipeline, cfg *config.Config, log *slog.Logger) *Bot {
	b := &Bot{
		api:    api,
		sender: &Sender{api: api},
		store:  store,
		pipe:   pipe,
		cfg:    cfg,
		log:    log,
	}
	b.actions = map[string]Action{
		actionShort: b.viewAction(compose.ModeShort),
		actionFull:  b.viewAction(compose.ModeComplete),
		actionLast:  b.viewAction(compose.ModeLastUpdate),
		actionCheck: b.checkAction,
	}
	return b
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled and
// the background checks have returned.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.jobs.Wait()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// replyBatches sends composed HTML batches to a single chat.
func (b *Bot) replyBatches(ctx context.Context, chatID int64, batches []string) {
	for _, text := range batches {
		if err := b.sender.Send(ctx, chatID, text); err != nil {
			b.log.Error("send batch", "chat_id", chatID, "error", err)
			return
		}
	}
}

// background runs fn outside the update loop.
func (b *Bot) background(ctx context.Context, fn func(ctx context.Context)) {
	b.jobs.Add(1)
	go func() {
		defer b.jobs.Done()
		fn(ctx)
	}()
}

func (b *Bot) allowed(userID int64) bool {
	return b.cfg == nil || b.cfg.IsUserAllowed(userID)
}

// runAction executes a table action for a chat, enforcing the allow list.
func (b *Bot) runAction(ctx context.Context, chatID, userID int64, action, sourceID string) {
	fn, ok := b.actions[action]
	if !ok {
		b.reply(chatID, fmt.Sprintf("Unknown action %q.", action))
		return
	}
	if operatorActions[action] && !b.allowed(userID) {
		b.reply(chatID, "Access denied.")
		return
	}
	if _, ok := b.pipe.Source(sourceID); !ok {
		b.reply(chatID, fmt.Sprintf("Source %q not found. Use /sources to list them.", sourceID))
		return
	}

	run := func(ctx context.Context) {
		batches, err := fn(ctx, sourceID)
		if err != nil {
			b.log.Error("run action", "action", action, "source", sourceID, "error", err)
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.replyBatches(ctx, chatID, batches)
	}
	if !operatorActions[action] {
		run(ctx)
		return
	}
	b.reply(chatID, fmt.Sprintf("Checking %s...", sourceID))
	b.background(ctx, run)
}

func (b *Bot) viewAction(mode compose.Mode) Action {
	return func(ctx context.Context, sourceID string) ([]string, error) {
		return b.pipe.View(ctx, sourceID, mode, 0)
	}
}

func (b *Bot) checkAction(ctx context.Context, sourceID string) ([]string, error) {
	res := b.pipe.RunNow(ctx, sourceID)
	return []string{html.EscapeString(FormatResult(res))}, nil
}

func sourceKeyboard(sources []scheduler.Source) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(sources))
	for _, src := range sources {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(src.Name, callbackSource+":"+src.ID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func actionKeyboard(sourceID string) tgbotapi.InlineKeyboardMarkup {
	data := func(action string) string {
		return strings.Join([]string{callbackAction, action, sourceID}, ":")
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Short", data(actionShort)),
			tgbotapi.NewInlineKeyboardButtonData("Complete", data(actionFull)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Last update", data(actionLast)),
			tgbotapi.NewInlineKeyboardButtonData("Check now", data(actionCheck)),
		),
	)
}
