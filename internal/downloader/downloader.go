// Package downloader drives the external extraction engines.
package downloader

import (
	"context"
	"fmt"
)

// Format selectors understood by yt-dlp.
const (
	SelectorBest    = "best"
	SelectorAudio   = "bestaudio/best"
	Selector1080    = "bestvideo[height<=1080]+bestaudio/best"
	audioCodec      = "mp3"
	audioBitrate    = "192"
	mergeContainer  = "mp4"
	outputTemplate  = "%(title)s.%(ext)s"
)

// VideoSelector picks the given stream plus the best audio track.
func VideoSelector(formatID string) string {
	return formatID + "+bestaudio/best"
}

// FetchRequest describes one download.
type FetchRequest struct {
	URL       string
	Selector  string
	Audio     bool
	OutputDir string
	// Browser-like headers, needed by the short-form site.
	Headers map[string]string
}

// Result is the raw engine output before it is moved into storage.
type Result struct {
	Path  string
	Title string
}

// Fetcher downloads media to disk.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*Result, error)
}

// AcquisitionError reports an engine failure.
type AcquisitionError struct {
	URL string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
