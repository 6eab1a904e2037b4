// Package transport defines how the core talks back to a requester.
package transport

import "context"

// FileKind selects how a file is presented in the chat.
type FileKind int

const (
	FileDocument FileKind = iota
	FileVideo
	FileAudio
)

// Button is an inline button: a link when URL is set, a callback otherwise.
type Button struct {
	Text string
	URL  string
	Data string
}

// Sender delivers messages and files to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, buttons ...[]Button) error
	SendFile(ctx context.Context, chatID int64, path string, kind FileKind) error
}

// KindForExt maps an artifact's extension to the way it should be sent.
func KindForExt(ext string) FileKind {
	switch ext {
	case ".mp3", ".m4a", ".ogg", ".opus":
		return FileAudio
	case ".mp4", ".mkv", ".webm", ".mov":
		return FileVideo
	}
	return FileDocument
}
