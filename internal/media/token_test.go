package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_EncodeParse(t *testing.T) {
	tok := Token{FormatID: "137", MediaID: "dQw4w9WgXcQ", Quality: "1080p", Kind: KindYouTube}
	s, err := tok.Encode()
	require.NoError(t, err)
	assert.Equal(t, "137|dQw4w9WgXcQ|1080p|youtube", s)

	back, err := ParseToken(s)
	require.NoError(t, err)
	assert.Equal(t, tok, back)
	assert.False(t, back.Audio())
}

func TestToken_Audio(t *testing.T) {
	res := &Resolution{Kind: KindDailymotion, MediaID: "x8abcd1"}
	tok := NewToken(res, AudioOption)
	assert.True(t, tok.Audio())

	s, err := tok.Encode()
	require.NoError(t, err)
	assert.Equal(t, "mp3|x8abcd1|mp3|dailymotion", s)
}

func TestParseToken_Malformed(t *testing.T) {
	for _, s := range []string{
		"",
		"137|abc|1080p",
		"137|abc|1080p|youtube|extra",
		"137||1080p|youtube",
		"137|abc|1080p|vimeo",
		"yt:abc:720p",
	} {
		t.Run(s, func(t *testing.T) {
			_, err := ParseToken(s)
			assert.ErrorIs(t, err, ErrMalformedToken)
			assert.False(t, IsToken(s))
		})
	}
}

func TestToken_EncodeRejects(t *testing.T) {
	_, err := Token{FormatID: "a|b", MediaID: "x", Quality: "q", Kind: KindYouTube}.Encode()
	assert.ErrorIs(t, err, ErrMalformedToken)

	_, err = Token{FormatID: strings.Repeat("f", 60), MediaID: "x", Quality: "q", Kind: KindYouTube}.Encode()
	assert.ErrorIs(t, err, ErrMalformedToken)
}
