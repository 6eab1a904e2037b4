// Package bot runs the Telegram update loop and implements transport.Sender.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/tubegate/internal/transport"
)

// Handler processes one kind of update.
type Handler interface {
	CanHandle(update tgbotapi.Update) bool
	Handle(ctx context.Context, update tgbotapi.Update)
}

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// Options tunes the update loop.
type Options struct {
	PollTimeout    int
	ReconnectDelay time.Duration
}

type Bot struct {
	api      API
	handlers []Handler
	opts     Options
	log      *slog.Logger
	wg       sync.WaitGroup
}

// New authorizes against the Bot API and routes the library's logs through log.
func New(token string, opts Options, log *slog.Logger) (*Bot, error) {
	log = log.With(slog.String("component", "bot"))
	if err := tgbotapi.SetLogger(&slogBotLogger{log: log}); err != nil {
		return nil, err
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Info("authorized", slog.String("account", api.Self.UserName))
	return NewWithAPI(api, opts, log), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, opts Options, log *slog.Logger) *Bot {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 15 * time.Second
	}
	return &Bot{
		api:      api,
		handlers: make([]Handler, 0),
		opts:     opts,
		log:      log,
	}
}

func (b *Bot) RegisterHandler(h Handler) {
	b.handlers = append(b.handlers, h)
	b.log.Debug("registered handler", slog.String("handler", fmt.Sprintf("%T", h)))
}

// Run long-polls for updates until ctx is cancelled. A failed poll is
// retried after the reconnect delay, indefinitely.
func (b *Bot) Run(ctx context.Context) {
	b.log.Info("starting bot", slog.Int("handlers", len(b.handlers)))

	offset := 0
	for {
		updates, err := b.poll(ctx, offset)
		if ctx.Err() != nil {
			b.log.Info("bot stopped")
			return
		}
		if err != nil {
			b.log.Error("failed to get updates, reconnecting",
				slog.Any("error", err),
				slog.Duration("delay", b.opts.ReconnectDelay))
			select {
			case <-ctx.Done():
				b.log.Info("bot stopped")
				return
			case <-time.After(b.opts.ReconnectDelay):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.Dispatch(ctx, update)
		}
	}
}

type pollResult struct {
	updates []tgbotapi.Update
	err     error
}

// poll issues one long-poll request and gives up waiting for it when ctx ends.
func (b *Bot) poll(ctx context.Context, offset int) ([]tgbotapi.Update, error) {
	u := tgbotapi.NewUpdate(offset)
	u.Timeout = b.opts.PollTimeout

	res := make(chan pollResult, 1)
	go func() {
		updates, err := b.api.GetUpdates(u)
		res <- pollResult{updates: updates, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-res:
		return r.updates, r.err
	}
}

// Dispatch hands the update to the first matching handler on its own goroutine.
// Handlers run detached from ctx so shutdown does not abort in-flight jobs.
func (b *Bot) Dispatch(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil && update.Message.From != nil {
		b.log.Info("message",
			slog.Int64("user_id", update.Message.From.ID),
			slog.String("username", update.Message.From.UserName),
			slog.String("text", update.Message.Text))
	}
	if update.CallbackQuery != nil && update.CallbackQuery.From != nil {
		b.log.Info("callback",
			slog.Int64("user_id", update.CallbackQuery.From.ID),
			slog.String("data", update.CallbackQuery.Data))
	}

	if update.Message == nil && update.CallbackQuery == nil {
		b.log.Debug("skipping update without message or callback")
		return
	}

	for _, h := range b.handlers {
		if !h.CanHandle(update) {
			continue
		}
		b.wg.Add(1)
		go b.handle(context.WithoutCancel(ctx), h, update)
		return
	}
	b.log.Debug("no handler for update", slog.Int("update_id", update.UpdateID))
}

func (b *Bot) handle(ctx context.Context, h Handler, update tgbotapi.Update) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panicked",
				slog.String("handler", fmt.Sprintf("%T", h)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	h.Handle(ctx, update)
}

// Wait blocks until in-flight handlers finish or timeout elapses.
func (b *Bot) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// SendText implements transport.Sender. Each inner slice is one keyboard row.
func (b *Bot) SendText(_ context.Context, chatID int64, text string, buttons ...[]transport.Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup, ok := keyboard(buttons); ok {
		msg.ReplyMarkup = markup
	}
	_, err := b.api.Send(msg)
	return err
}

// SendFile implements transport.Sender.
func (b *Bot) SendFile(_ context.Context, chatID int64, path string, kind transport.FileKind) error {
	file := tgbotapi.FilePath(path)
	var c tgbotapi.Chattable
	switch kind {
	case transport.FileAudio:
		c = tgbotapi.NewAudio(chatID, file)
	case transport.FileVideo:
		c = tgbotapi.NewVideo(chatID, file)
	default:
		c = tgbotapi.NewDocument(chatID, file)
	}
	_, err := b.api.Send(c)
	return err
}

// AnswerCallback acknowledges a button press.
func (b *Bot) AnswerCallback(callbackID, text string) error {
	_, err := b.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// NotifyStartup tells every admin the bot is up.
func (b *Bot) NotifyStartup(ctx context.Context, adminIDs []int64) {
	text := fmt.Sprintf("Bot started at %s", time.Now().Format(time.RFC1123))
	for _, id := range adminIDs {
		if err := b.SendText(ctx, id, text); err != nil {
			b.log.Warn("startup notification failed", slog.Int64("chat_id", id), slog.Any("error", err))
		}
	}
}

func keyboard(rows [][]transport.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	var kb [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var r []tgbotapi.InlineKeyboardButton
		for _, btn := range row {
			if btn.URL != "" {
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(btn.Text, btn.URL))
			} else {
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
			}
		}
		if len(r) > 0 {
			kb = append(kb, tgbotapi.NewInlineKeyboardRow(r...))
		}
	}
	if len(kb) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...), true
}
