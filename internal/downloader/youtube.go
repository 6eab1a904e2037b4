package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/artur/tubegate/internal/media"
	"github.com/kkdai/youtube/v2"
)

// YouTubeLister lists YouTube formats natively, without spawning yt-dlp.
// Its itags are the same identifiers yt-dlp uses as format ids.
type YouTubeLister struct {
	client youtube.Client
}

// NewYouTubeLister creates a lister with a default client.
func NewYouTubeLister() *YouTubeLister {
	return &YouTubeLister{client: youtube.Client{}}
}

// ListFormats implements media.Lister.
func (l *YouTubeLister) ListFormats(ctx context.Context, link string) (*media.Listing, error) {
	id := media.ExtractID(media.KindYouTube, link)
	if id == "" {
		return nil, fmt.Errorf("no video id in %q", link)
	}

	video, err := l.client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}
	if len(video.Formats) == 0 {
		return nil, errors.New("no formats found")
	}

	listing := &media.Listing{MediaID: video.ID, Title: video.Title}
	for _, f := range video.Formats {
		listing.Streams = append(listing.Streams, media.Stream{
			FormatID: strconv.Itoa(f.ItagNo),
			Label:    f.QualityLabel,
			HasVideo: f.Width > 0 || f.QualityLabel != "",
		})
	}
	return listing, nil
}

// Fallback tries each lister in order until one succeeds.
type Fallback struct {
	listers []media.Lister
	log     *slog.Logger
}

// NewFallback chains listers.
func NewFallback(log *slog.Logger, listers ...media.Lister) *Fallback {
	return &Fallback{listers: listers, log: log}
}

// ListFormats implements media.Lister.
func (f *Fallback) ListFormats(ctx context.Context, link string) (*media.Listing, error) {
	var errs []error
	for _, l := range f.listers {
		listing, err := l.ListFormats(ctx, link)
		if err == nil {
			return listing, nil
		}
		f.log.Warn("format lister failed, trying next", slog.String("lister", fmt.Sprintf("%T", l)), slog.Any("error", err))
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
