package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/tubegate/internal/database/repository"
	"github.com/artur/tubegate/internal/transport"
)

const (
	MsgResetOK     = "Database has been reset successfully."
	MsgResetFailed = "Failed to reset the database. Please try again later."
	MsgStatsFailed = "Failed to load statistics."

	popularLimit = 5
)

// Resetter clears the download ledger.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Stats reads the delivery log.
type Stats interface {
	TotalDeliveries(ctx context.Context) (int64, error)
	PopularMedia(ctx context.Context, limit int) ([]repository.PopularMedia, error)
}

type ResetHandler struct {
	ledger  Resetter
	isAdmin AdminCheck
	sender  transport.Sender
	log     *slog.Logger
}

func NewResetHandler(ledger Resetter, isAdmin AdminCheck, sender transport.Sender, log *slog.Logger) *ResetHandler {
	return &ResetHandler{
		ledger:  ledger,
		isAdmin: isAdmin,
		sender:  sender,
		log:     log.With(slog.String("handler", "reset")),
	}
}

func (h *ResetHandler) CanHandle(update tgbotapi.Update) bool {
	return isCommand(update, "reset")
}

func (h *ResetHandler) Handle(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID
	userID := senderID(update.Message)

	if !h.isAdmin(userID) {
		h.log.Warn("reset denied", slog.Int64("user_id", userID))
		h.reply(ctx, chatID, fmt.Sprintf(MsgNotPermitted, "reset the database"))
		return
	}

	if err := h.ledger.Reset(ctx); err != nil {
		h.log.Error("reset failed", slog.Any("error", err))
		h.reply(ctx, chatID, MsgResetFailed)
		return
	}
	h.log.Info("ledger reset", slog.Int64("user_id", userID))
	h.reply(ctx, chatID, MsgResetOK)
}

func (h *ResetHandler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.sender.SendText(ctx, chatID, text); err != nil {
		h.log.Error("failed to send message", slog.Any("error", err))
	}
}

type StatsHandler struct {
	stats   Stats
	isAdmin AdminCheck
	sender  transport.Sender
	log     *slog.Logger
}

func NewStatsHandler(stats Stats, isAdmin AdminCheck, sender transport.Sender, log *slog.Logger) *StatsHandler {
	return &StatsHandler{
		stats:   stats,
		isAdmin: isAdmin,
		sender:  sender,
		log:     log.With(slog.String("handler", "stats")),
	}
}

func (h *StatsHandler) CanHandle(update tgbotapi.Update) bool {
	return isCommand(update, "stats")
}

func (h *StatsHandler) Handle(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID
	if !h.isAdmin(senderID(update.Message)) {
		h.reply(ctx, chatID, fmt.Sprintf(MsgNotPermitted, "view statistics"))
		return
	}

	total, err := h.stats.TotalDeliveries(ctx)
	if err != nil {
		h.log.Error("failed to count deliveries", slog.Any("error", err))
		h.reply(ctx, chatID, MsgStatsFailed)
		return
	}
	popular, err := h.stats.PopularMedia(ctx, popularLimit)
	if err != nil {
		h.log.Error("failed to load popular media", slog.Any("error", err))
		h.reply(ctx, chatID, MsgStatsFailed)
		return
	}

	h.reply(ctx, chatID, formatStats(total, popular))
}

func (h *StatsHandler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.sender.SendText(ctx, chatID, text); err != nil {
		h.log.Error("failed to send message", slog.Any("error", err))
	}
}

func formatStats(total int64, popular []repository.PopularMedia) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total deliveries: %d", total)
	if len(popular) == 0 {
		return b.String()
	}
	b.WriteString("\n\nMost popular:")
	for i, p := range popular {
		title := p.Title
		if title == "" {
			title = p.MediaID
		}
		fmt.Fprintf(&b, "\n%d. %s (%d)", i+1, title, p.DeliveryCount)
	}
	return b.String()
}
