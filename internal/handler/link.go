package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/tubegate/internal/media"
	"github.com/artur/tubegate/internal/pipeline"
	"github.com/artur/tubegate/internal/transport"
)

const (
	MsgFetchingQualities = "Fetching available video qualities, please wait..."
	MsgChooseQuality     = "Choose the video quality:"
	MsgNoQualities       = "No video qualities available for this link."
	MsgResolveFailed     = "Failed to fetch video qualities. Please try again later."
	audioButtonLabel     = "MP3"
)

// LinkHandler answers a pasted link with a quality keyboard, or starts a job
// straight away for short-form sources.
type LinkHandler struct {
	jobs   Jobs
	sender transport.Sender
	log    *slog.Logger
}

func NewLinkHandler(jobs Jobs, sender transport.Sender, log *slog.Logger) *LinkHandler {
	return &LinkHandler{
		jobs:   jobs,
		sender: sender,
		log:    log.With(slog.String("handler", "link")),
	}
}

// CanHandle accepts any plain text message; register it after the command handlers.
func (h *LinkHandler) CanHandle(update tgbotapi.Update) bool {
	return update.Message != nil && !update.Message.IsCommand() && strings.TrimSpace(update.Message.Text) != ""
}

func (h *LinkHandler) Handle(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	chatID := msg.Chat.ID
	link := strings.TrimSpace(msg.Text)

	kind, err := h.jobs.Classify(link)
	if err != nil {
		h.reply(ctx, chatID, MsgInvalidLink)
		return
	}

	if kind.ShortForm() {
		h.jobs.Run(ctx, pipeline.ShortForm(link, kind, senderID(msg), chatID))
		return
	}

	h.reply(ctx, chatID, MsgFetchingQualities)

	res, err := h.jobs.Resolve(ctx, link)
	if err != nil {
		var resErr *media.ResolutionError
		if errors.As(err, &resErr) {
			h.reply(ctx, chatID, resErr.Error())
		} else {
			h.reply(ctx, chatID, MsgResolveFailed)
		}
		return
	}

	if !res.HasVideo() {
		h.reply(ctx, chatID, MsgNoQualities)
		return
	}

	rows := h.keyboard(res)
	if err := h.sender.SendText(ctx, chatID, MsgChooseQuality, rows...); err != nil {
		h.log.Error("failed to send quality keyboard", slog.Any("error", err))
	}
}

func (h *LinkHandler) keyboard(res *media.Resolution) [][]transport.Button {
	rows := make([][]transport.Button, 0, len(res.Options))
	for _, opt := range res.Options {
		data, err := media.NewToken(res, opt).Encode()
		if err != nil {
			h.log.Warn("skipping option", slog.String("format_id", opt.FormatID), slog.Any("error", err))
			continue
		}
		label := opt.QualityLabel
		if opt.FormatID == media.AudioFormatID {
			label = audioButtonLabel
		}
		rows = append(rows, []transport.Button{{Text: label, Data: data}})
	}
	return rows
}

func (h *LinkHandler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.sender.SendText(ctx, chatID, text); err != nil {
		h.log.Error("failed to send message", slog.Any("error", err))
	}
}

// DownloadCommandHandler serves /download <url> at the capped 1080p selector.
type DownloadCommandHandler struct {
	jobs   Jobs
	sender transport.Sender
	log    *slog.Logger
}

func NewDownloadCommandHandler(jobs Jobs, sender transport.Sender, log *slog.Logger) *DownloadCommandHandler {
	return &DownloadCommandHandler{
		jobs:   jobs,
		sender: sender,
		log:    log.With(slog.String("handler", "download")),
	}
}

func (h *DownloadCommandHandler) CanHandle(update tgbotapi.Update) bool {
	return isCommand(update, "download")
}

func (h *DownloadCommandHandler) Handle(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	chatID := msg.Chat.ID
	link := strings.TrimSpace(msg.CommandArguments())

	if link == "" {
		h.reply(ctx, chatID, MsgDownloadUsage)
		return
	}

	kind, err := h.jobs.Classify(link)
	if err != nil {
		h.reply(ctx, chatID, MsgInvalidLink)
		return
	}

	h.jobs.Run(ctx, pipeline.Capped(link, kind, senderID(msg), chatID))
}

func (h *DownloadCommandHandler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.sender.SendText(ctx, chatID, text); err != nil {
		h.log.Error("failed to send message", slog.Any("error", err))
	}
}
