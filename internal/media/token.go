package media

import (
	"errors"
	"fmt"
	"strings"
)

// MaxTokenLen is Telegram's limit on callback data.
const MaxTokenLen = 64

// ErrMalformedToken is returned for callback data that is not a valid token.
var ErrMalformedToken = errors.New("malformed selection token")

// Token carries a quality selection through a button press:
// format_id|media_id|quality_label|source_kind.
type Token struct {
	FormatID string
	MediaID  string
	Quality  string
	Kind     Kind
}

// NewToken builds the token for an option of a resolved item.
func NewToken(res *Resolution, opt FormatOption) Token {
	return Token{FormatID: opt.FormatID, MediaID: res.MediaID, Quality: opt.QualityLabel, Kind: res.Kind}
}

// Audio reports whether the token selects audio-only extraction.
func (t Token) Audio() bool { return t.FormatID == AudioFormatID }

// Encode serializes the token.
func (t Token) Encode() (string, error) {
	for _, f := range []string{t.FormatID, t.MediaID, t.Quality, string(t.Kind)} {
		if f == "" || strings.Contains(f, "|") {
			return "", fmt.Errorf("%w: field %q", ErrMalformedToken, f)
		}
	}
	s := strings.Join([]string{t.FormatID, t.MediaID, t.Quality, string(t.Kind)}, "|")
	if len(s) > MaxTokenLen {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformedToken, len(s), MaxTokenLen)
	}
	return s, nil
}

// ParseToken decodes callback data. Exactly four non-empty fields are required.
func ParseToken(s string) (Token, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 4 {
		return Token{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedToken, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return Token{}, fmt.Errorf("%w: empty field", ErrMalformedToken)
		}
	}
	kind, err := ParseKind(parts[3])
	if err != nil {
		return Token{}, fmt.Errorf("%w: unknown source %q", ErrMalformedToken, parts[3])
	}
	return Token{FormatID: parts[0], MediaID: parts[1], Quality: parts[2], Kind: kind}, nil
}

// IsToken reports whether s looks like a selection token.
func IsToken(s string) bool {
	_, err := ParseToken(s)
	return err == nil
}
