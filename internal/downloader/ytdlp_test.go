package downloader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artur/tubegate/internal/storage"
)

const sampleDump = `{
  "id": "x8abcd1",
  "title": "Sample Clip",
  "formats": [
    {"format_id": "hls-audio", "format_note": null, "resolution": "audio only", "vcodec": "none"},
    {"format_id": "hls-380", "format_note": "", "resolution": "640x360", "vcodec": "avc1.4d401e"},
    {"format_id": "hls-720", "format_note": "720p", "resolution": "1280x720", "vcodec": "avc1.64001f"},
    {"format_id": "http-720", "format_note": "720p", "resolution": "1280x720"}
  ]
}`

func TestParseListing(t *testing.T) {
	listing, err := parseListing([]byte(sampleDump))
	if err != nil {
		t.Fatalf("parseListing returned error: %v", err)
	}

	if listing.MediaID != "x8abcd1" {
		t.Errorf("MediaID = %q, want x8abcd1", listing.MediaID)
	}
	if listing.Title != "Sample Clip" {
		t.Errorf("Title = %q, want Sample Clip", listing.Title)
	}
	if len(listing.Streams) != 4 {
		t.Fatalf("got %d streams, want 4", len(listing.Streams))
	}

	tests := []struct {
		idx      int
		label    string
		hasVideo bool
	}{
		{0, "audio only", false},
		{1, "640x360", true},
		{2, "720p", true},
		{3, "720p", true},
	}
	for _, tt := range tests {
		s := listing.Streams[tt.idx]
		if s.Label != tt.label || s.HasVideo != tt.hasVideo {
			t.Errorf("stream %d = %+v, want label %q hasVideo %v", tt.idx, s, tt.label, tt.hasVideo)
		}
	}
}

func TestParseListing_WarningsBeforeJSON(t *testing.T) {
	compact := strings.Join(strings.Fields(sampleDump), " ")
	out := "WARNING: something odd\n" + compact + "\n"

	listing, err := parseListing([]byte(out))
	if err != nil {
		t.Fatalf("parseListing returned error: %v", err)
	}
	if listing.MediaID != "x8abcd1" {
		t.Errorf("MediaID = %q, want x8abcd1", listing.MediaID)
	}
}

func TestParseListing_Garbage(t *testing.T) {
	if _, err := parseListing([]byte("not json")); err == nil {
		t.Error("expected error for garbage output")
	}
	if _, err := parseListing(nil); err == nil {
		t.Error("expected error for empty output")
	}
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPickOutput_PrefersHint(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clip.mp4"), 10)
	writeFile(t, filepath.Join(dir, "bigger.mkv"), 100)

	got, err := pickOutput(dir, filepath.Join(dir, "clip.mp4"), false)
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "clip.mp4") {
		t.Errorf("got %s, want clip.mp4", got)
	}
}

func TestPickOutput_MergedContainer(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clip.mp4"), 10)

	// yt-dlp reports the pre-merge name
	got, err := pickOutput(dir, filepath.Join(dir, "clip.webm"), false)
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "clip.mp4") {
		t.Errorf("got %s, want clip.mp4", got)
	}
}

func TestPickOutput_AudioExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "song.webm"), 500)
	writeFile(t, filepath.Join(dir, "song.mp3"), 50)

	got, err := pickOutput(dir, "", true)
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "song.mp3") {
		t.Errorf("got %s, want song.mp3", got)
	}

	got, err = pickOutput(dir, filepath.Join(dir, "song.webm"), true)
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "song.mp3") {
		t.Errorf("got %s, want song.mp3", got)
	}
}

func TestPickOutput_SkipsPartials(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clip.mp4.part"), 1000)
	writeFile(t, filepath.Join(dir, "clip.mp4"), 10)

	got, err := pickOutput(dir, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "clip.mp4") {
		t.Errorf("got %s, want clip.mp4", got)
	}
}

func TestPickOutput_Empty(t *testing.T) {
	if _, err := pickOutput(t.TempDir(), "", false); err == nil {
		t.Error("expected error for empty dir")
	}
}

func TestOutputPath_EmptyStagingIsMissingFile(t *testing.T) {
	root := t.TempDir()
	files, err := storage.NewFiles(root)
	if err != nil {
		t.Fatal(err)
	}
	dir, err := files.StagingDir("job")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		hint  string
		audio bool
		want  string
	}{
		{name: "reported name", hint: filepath.Join(dir, "clip.webm"), want: filepath.Join(dir, "clip.webm")},
		{name: "reported name audio", hint: filepath.Join(dir, "song.webm"), audio: true, want: filepath.Join(dir, "song.mp3")},
		{name: "no name", want: filepath.Join(dir, "output.mp4")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := outputPath(dir, tt.hint, tt.audio)
			if err != nil {
				t.Fatalf("outputPath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("outputPath() = %s, want %s", got, tt.want)
			}

			_, _, err = files.Finalize(got)
			if !errors.Is(err, storage.ErrFileMissing) {
				t.Errorf("Finalize() error = %v, want ErrFileMissing", err)
			}
		})
	}
}

func TestOutputPath_FindsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clip.mp4"), 4)

	got, err := outputPath(dir, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "clip.mp4") {
		t.Errorf("got %s, want clip.mp4", got)
	}
}

func TestPickOutput_EmptyIsNoOutput(t *testing.T) {
	_, err := pickOutput(t.TempDir(), "", false)
	if !errors.Is(err, errNoOutput) {
		t.Errorf("expected errNoOutput, got %v", err)
	}
}

func TestVideoSelector(t *testing.T) {
	if got := VideoSelector("137"); got != "137+bestaudio/best" {
		t.Errorf("VideoSelector = %q", got)
	}
}
