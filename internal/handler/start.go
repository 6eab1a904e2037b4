package handler

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/tubegate/internal/transport"
)

type StartHandler struct {
	sender transport.Sender
	log    *slog.Logger
}

func NewStartHandler(sender transport.Sender, log *slog.Logger) *StartHandler {
	return &StartHandler{
		sender: sender,
		log:    log.With(slog.String("handler", "start")),
	}
}

func (h *StartHandler) CanHandle(update tgbotapi.Update) bool {
	return isCommand(update, "start")
}

func (h *StartHandler) Handle(ctx context.Context, update tgbotapi.Update) {
	var firstName, userName string
	if from := update.Message.From; from != nil {
		firstName, userName = from.FirstName, from.UserName
	}
	name := getUserName(firstName, userName)

	h.log.Info("greeting user", slog.String("name", name))

	if err := h.sender.SendText(ctx, update.Message.Chat.ID, formatGreeting(name)); err != nil {
		h.log.Error("failed to send greeting", slog.Any("error", err))
	}
}

func formatGreeting(userName string) string {
	return "Welcome, " + userName + "! Send me a YouTube, Dailymotion, or TikTok link and I'll fetch the video for you. 👋"
}
