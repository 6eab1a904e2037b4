// Package handler implements the chat commands and callbacks the bot dispatches to.
package handler

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/tubegate/internal/media"
	"github.com/artur/tubegate/internal/pipeline"
)

// Replies shared by several handlers.
const (
	MsgInvalidLink   = "Please send a valid YouTube, Dailymotion, or TikTok link."
	MsgNotPermitted  = "You don't have the required permissions to %s."
	MsgBadSelection  = "This selection is no longer valid. Please send the link again."
	MsgDownloadUsage = "Usage: /download <url>"
)

// Jobs is the part of the pipeline the handlers drive.
type Jobs interface {
	Classify(link string) (media.Kind, error)
	Resolve(ctx context.Context, link string) (*media.Resolution, error)
	Run(ctx context.Context, req pipeline.Request) *pipeline.Job
}

// CallbackAnswerer acknowledges inline button presses.
type CallbackAnswerer interface {
	AnswerCallback(callbackID, text string) error
}

// AdminCheck reports whether a user may run admin commands.
type AdminCheck func(userID int64) bool

func isCommand(update tgbotapi.Update, name string) bool {
	return update.Message != nil && update.Message.IsCommand() && update.Message.Command() == name
}

func senderID(msg *tgbotapi.Message) int64 {
	if msg.From != nil {
		return msg.From.ID
	}
	return msg.Chat.ID
}

func getUserName(firstName, userName string) string {
	if firstName != "" {
		return firstName
	}
	return userName
}
