package media

import (
	"context"
	"errors"
	"testing"

	"github.com/artur/tubegate/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	listing *Listing
	err     error
	calls   int
}

func (s *stubLister) ListFormats(context.Context, string) (*Listing, error) {
	s.calls++
	return s.listing, s.err
}

func TestOptions(t *testing.T) {
	streams := []Stream{
		{FormatID: "18", Label: "360p", HasVideo: true},
		{FormatID: "22", Label: "720p", HasVideo: true},
		{FormatID: "136", Label: "720p", HasVideo: true},
		{FormatID: "140", Label: "", HasVideo: false},
		{FormatID: "251", Label: "medium", HasVideo: false},
		{FormatID: "sb0", Label: "none", HasVideo: true},
		{FormatID: "x", Label: "   ", HasVideo: true},
		{FormatID: "137", Label: " 1080P ", HasVideo: true},
		{FormatID: "399", Label: "1080p", HasVideo: true},
	}

	got := Options(streams)
	want := []FormatOption{
		{FormatID: "18", QualityLabel: "360p", HasVideo: true},
		{FormatID: "22", QualityLabel: "720p", HasVideo: true},
		{FormatID: "137", QualityLabel: "1080P", HasVideo: true},
		AudioOption,
	}
	assert.Equal(t, want, got)
}

func TestOptions_Empty(t *testing.T) {
	assert.Equal(t, []FormatOption{AudioOption}, Options(nil))
}

func TestResolver_Resolve(t *testing.T) {
	yt := &stubLister{listing: &Listing{
		MediaID: "ignored",
		Title:   "Never Gonna",
		Streams: []Stream{
			{FormatID: "22", Label: "720p", HasVideo: true},
			{FormatID: "18", Label: "360p", HasVideo: true},
		},
	}}
	r := NewResolver(DefaultClassifier(), map[Kind]Lister{KindYouTube: yt}, logger.Discard())

	res, err := r.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, KindYouTube, res.Kind)
	assert.Equal(t, "dQw4w9WgXcQ", res.MediaID)
	assert.Equal(t, "Never Gonna", res.Title)
	require.Len(t, res.Options, 3)
	assert.Equal(t, "720p", res.Options[0].QualityLabel)
	assert.Equal(t, AudioOption, res.Options[2])
	assert.True(t, res.HasVideo())
}

func TestResolver_UsesEngineIDWhenLinkHasNone(t *testing.T) {
	dm := &stubLister{listing: &Listing{MediaID: "x9zz", Streams: []Stream{{FormatID: "hls-380", Label: "380p", HasVideo: true}}}}
	r := NewResolver(DefaultClassifier(), map[Kind]Lister{KindDailymotion: dm}, logger.Discard())

	res, err := r.Resolve(context.Background(), "https://www.dailymotion.com/embed/playlist")
	require.NoError(t, err)
	assert.Equal(t, "x9zz", res.MediaID)
}

func TestResolver_Errors(t *testing.T) {
	cause := errors.New("HTTP Error 403")
	yt := &stubLister{err: cause}
	r := NewResolver(DefaultClassifier(), map[Kind]Lister{KindYouTube: yt}, logger.Discard())

	_, err := r.Resolve(context.Background(), "https://example.com/video")
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, ErrUnsupportedSource)
	assert.Equal(t, 0, yt.calls)

	_, err = r.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Failed to fetch video qualities. Error: HTTP Error 403", err.Error())

	_, err = r.Resolve(context.Background(), "https://www.tiktok.com/@a/video/1")
	require.ErrorAs(t, err, &rerr)
}

func TestResolution_AudioOnly(t *testing.T) {
	res := &Resolution{Options: Options([]Stream{{FormatID: "140", Label: "tiny", HasVideo: false}})}
	assert.False(t, res.HasVideo())
}
