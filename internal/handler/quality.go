package handler

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/tubegate/internal/media"
	"github.com/artur/tubegate/internal/pipeline"
	"github.com/artur/tubegate/internal/transport"
)

// QualityHandler runs a job for a pressed quality button.
type QualityHandler struct {
	jobs     Jobs
	answerer CallbackAnswerer
	sender   transport.Sender
	log      *slog.Logger
}

func NewQualityHandler(jobs Jobs, answerer CallbackAnswerer, sender transport.Sender, log *slog.Logger) *QualityHandler {
	return &QualityHandler{
		jobs:     jobs,
		answerer: answerer,
		sender:   sender,
		log:      log.With(slog.String("handler", "quality")),
	}
}

func (h *QualityHandler) CanHandle(update tgbotapi.Update) bool {
	return update.CallbackQuery != nil && media.IsToken(update.CallbackQuery.Data)
}

func (h *QualityHandler) Handle(ctx context.Context, update tgbotapi.Update) {
	cb := update.CallbackQuery

	if err := h.answerer.AnswerCallback(cb.ID, ""); err != nil {
		h.log.Warn("failed to answer callback", slog.Any("error", err))
	}

	var userID, chatID int64
	if cb.From != nil {
		userID = cb.From.ID
		chatID = cb.From.ID
	}
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}

	tok, err := media.ParseToken(cb.Data)
	if err != nil {
		h.reject(ctx, chatID, cb.Data, err)
		return
	}
	req, err := pipeline.FromToken(tok, userID, chatID)
	if err != nil {
		h.reject(ctx, chatID, cb.Data, err)
		return
	}

	h.log.Info("quality selected",
		slog.Int64("user_id", userID),
		slog.String("kind", string(tok.Kind)),
		slog.String("media_id", tok.MediaID),
		slog.String("quality", tok.Quality))

	h.jobs.Run(ctx, req)
}

func (h *QualityHandler) reject(ctx context.Context, chatID int64, data string, err error) {
	h.log.Warn("rejected selection", slog.String("data", data), slog.Any("error", err))
	if err := h.sender.SendText(ctx, chatID, MsgBadSelection); err != nil {
		h.log.Error("failed to send message", slog.Any("error", err))
	}
}
