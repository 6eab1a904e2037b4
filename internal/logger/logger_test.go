package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "json")
	l.Debug("hidden")
	l.Info("shown", slog.String("k", "v"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"k":"v"`)
}

func TestContextRoundTrip(t *testing.T) {
	l := Discard()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.Same(t, L, FromContext(context.Background()))
}
