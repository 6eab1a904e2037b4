package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// AudioFormatID is the synthetic option that selects audio-only extraction.
const AudioFormatID = "mp3"

// FormatOption is one selectable quality.
type FormatOption struct {
	FormatID     string
	QualityLabel string
	HasVideo     bool
}

// AudioOption is appended to every resolved set.
var AudioOption = FormatOption{FormatID: AudioFormatID, QualityLabel: AudioFormatID, HasVideo: false}

// Stream is one raw format reported by an engine.
type Stream struct {
	FormatID string
	Label    string
	HasVideo bool
}

// Listing is an engine's view of a media item.
type Listing struct {
	MediaID string
	Title   string
	Streams []Stream
}

// Lister enumerates the streams available for a link.
type Lister interface {
	ListFormats(ctx context.Context, link string) (*Listing, error)
}

// ResolutionError wraps any failure to produce the option list.
type ResolutionError struct {
	URL string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("Failed to fetch video qualities. Error: %v", e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolution is the result of resolving a link.
type Resolution struct {
	Kind    Kind
	MediaID string
	Title   string
	Options []FormatOption
}

// HasVideo reports whether any option besides audio is available.
func (r *Resolution) HasVideo() bool {
	for _, o := range r.Options {
		if o.HasVideo {
			return true
		}
	}
	return false
}

// Resolver produces deduplicated quality options for a link.
type Resolver struct {
	classifier *Classifier
	listers    map[Kind]Lister
	log        *slog.Logger
}

// NewResolver creates a resolver. listers maps each kind to the engine that lists it.
func NewResolver(classifier *Classifier, listers map[Kind]Lister, log *slog.Logger) *Resolver {
	return &Resolver{
		classifier: classifier,
		listers:    listers,
		log:        log.With(slog.String("component", "resolver")),
	}
}

// Classify exposes the resolver's classifier.
func (r *Resolver) Classify(link string) (Kind, error) {
	return r.classifier.Classify(link)
}

// Resolve lists the formats for link and reduces them to selectable options.
func (r *Resolver) Resolve(ctx context.Context, link string) (*Resolution, error) {
	kind, err := r.classifier.Classify(link)
	if err != nil {
		return nil, &ResolutionError{URL: link, Err: err}
	}

	lister, ok := r.listers[kind]
	if !ok {
		return nil, &ResolutionError{URL: link, Err: fmt.Errorf("no lister for %s", kind)}
	}

	listing, err := lister.ListFormats(ctx, link)
	if err != nil {
		r.log.Error("format listing failed", slog.String("url", link), slog.Any("error", err))
		return nil, &ResolutionError{URL: link, Err: err}
	}

	mediaID := ExtractID(kind, link)
	if mediaID == "" {
		mediaID = listing.MediaID
	}

	res := &Resolution{
		Kind:    kind,
		MediaID: mediaID,
		Title:   listing.Title,
		Options: Options(listing.Streams),
	}
	r.log.Info("formats resolved",
		slog.String("kind", string(kind)),
		slog.String("media_id", mediaID),
		slog.Int("options", len(res.Options)))
	return res, nil
}

// Options keeps video streams with a usable label, first occurrence per label
// (case-insensitive), and appends the audio option.
func Options(streams []Stream) []FormatOption {
	seen := make(map[string]bool)
	opts := make([]FormatOption, 0, len(streams)+1)
	for _, s := range streams {
		if !s.HasVideo {
			continue
		}
		label := strings.TrimSpace(s.Label)
		key := strings.ToLower(label)
		if key == "" || key == "none" || seen[key] {
			continue
		}
		seen[key] = true
		opts = append(opts, FormatOption{FormatID: s.FormatID, QualityLabel: label, HasVideo: true})
	}
	return append(opts, AudioOption)
}
