package downloader

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/artur/tubegate/internal/media"
	"github.com/lrstanley/go-ytdlp"
)

// YTDLP lists formats and downloads through the yt-dlp binary.
type YTDLP struct {
	cookiesPath string
	log         *slog.Logger
}

// NewYTDLP creates the engine. cookiesPath is used only if the file exists.
func NewYTDLP(cookiesPath string, log *slog.Logger) *YTDLP {
	return &YTDLP{
		cookiesPath: cookiesPath,
		log:         log.With(slog.String("component", "ytdlp")),
	}
}

// Install downloads a yt-dlp binary into the user cache when none is on PATH.
func Install(ctx context.Context) error {
	_, err := ytdlp.Install(ctx, nil)
	return err
}

func (y *YTDLP) command() *ytdlp.Command {
	cmd := ytdlp.New().NoPlaylist().NoProgress()
	if y.cookiesPath != "" {
		if _, err := os.Stat(y.cookiesPath); err == nil {
			cmd = cmd.Cookies(y.cookiesPath)
		}
	}
	return cmd
}

// ListFormats implements media.Lister.
func (y *YTDLP) ListFormats(ctx context.Context, link string) (*media.Listing, error) {
	res, err := y.command().DumpSingleJSON().Run(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}
	return parseListing([]byte(res.Stdout))
}

// Fetch implements Fetcher.
func (y *YTDLP) Fetch(ctx context.Context, req FetchRequest) (*Result, error) {
	cmd := y.command().
		NoMtime().
		Format(req.Selector).
		Output(filepath.Join(req.OutputDir, outputTemplate)).
		PrintJSON()

	if req.Audio {
		cmd = cmd.ExtractAudio().AudioFormat(audioCodec).AudioQuality(audioBitrate)
	} else {
		cmd = cmd.MergeOutputFormat(mergeContainer)
	}
	for k, v := range req.Headers {
		cmd = cmd.AddHeaders(k + ":" + v)
	}

	y.log.Info("download started",
		slog.String("url", req.URL),
		slog.String("selector", req.Selector),
		slog.Bool("audio", req.Audio))

	res, err := cmd.Run(ctx, req.URL)
	if err != nil {
		return nil, &AcquisitionError{URL: req.URL, Err: err}
	}

	hint := ""
	if infos, err := res.GetExtractedInfo(); err == nil && len(infos) > 0 && infos[0].Filename != nil {
		hint = *infos[0].Filename
	}

	path, err := outputPath(req.OutputDir, hint, req.Audio)
	if err != nil {
		return nil, &AcquisitionError{URL: req.URL, Err: err}
	}

	y.log.Info("download finished", slog.String("url", req.URL), slog.String("path", path))
	return &Result{
		Path:  path,
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}, nil
}

type ytdlpInfo struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Formats []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID   string `json:"format_id"`
	FormatNote string `json:"format_note"`
	Resolution string `json:"resolution"`
	VCodec     string `json:"vcodec"`
}

// parseListing reads the single JSON document yt-dlp prints for a media item.
func parseListing(data []byte) (*media.Listing, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(data, &info); err != nil {
		// Some extractors print warnings first; the document is the last line.
		last, lerr := lastLine(data)
		if lerr != nil || json.Unmarshal(last, &info) != nil {
			return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
		}
	}

	listing := &media.Listing{MediaID: info.ID, Title: info.Title}
	for _, f := range info.Formats {
		label := f.FormatNote
		if strings.TrimSpace(label) == "" {
			label = f.Resolution
		}
		listing.Streams = append(listing.Streams, media.Stream{
			FormatID: f.FormatID,
			Label:    label,
			HasVideo: f.VCodec != "none",
		})
	}
	return listing, nil
}

func lastLine(data []byte) ([]byte, error) {
	var last []byte
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = []byte(line)
		}
	}
	if last == nil {
		return nil, errors.New("empty output")
	}
	return last, sc.Err()
}

// errNoOutput means the engine exited cleanly but left no usable file.
var errNoOutput = errors.New("no output file")

// outputPath is the file a successful run is expected to have produced. When
// nothing usable is on disk it still returns the expected name, so finalizing
// reports the file as missing rather than the download as failed.
func outputPath(dir, hint string, audio bool) (string, error) {
	path, err := pickOutput(dir, hint, audio)
	if !errors.Is(err, errNoOutput) {
		return path, err
	}
	if hint == "" {
		hint = filepath.Join(dir, "output."+mergeContainer)
	}
	if audio {
		hint = strings.TrimSuffix(hint, filepath.Ext(hint)) + "." + audioCodec
	}
	return hint, nil
}

// pickOutput finds the finished file in a job's staging directory. The engine's
// reported name is preferred when it survived post-processing; otherwise the
// largest completed file wins.
func pickOutput(dir, hint string, audio bool) (string, error) {
	if hint != "" {
		candidates := []string{hint}
		base := strings.TrimSuffix(hint, filepath.Ext(hint))
		if audio {
			candidates = []string{base + "." + audioCodec, hint}
		} else {
			candidates = append(candidates, base+"."+mergeContainer)
		}
		for _, c := range candidates {
			if filepath.Dir(c) == filepath.Clean(dir) {
				if info, err := os.Stat(c); err == nil && !info.IsDir() {
					return c, nil
				}
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var (
		best     string
		bestSize int64 = -1
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") || strings.Contains(name, ".part-Frag") {
			continue
		}
		if audio && filepath.Ext(name) != "."+audioCodec {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = filepath.Join(dir, name), info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w in %s", errNoOutput, dir)
	}
	return best, nil
}
