package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artur/tubegate/internal/logger"
	"github.com/artur/tubegate/internal/media"
	"github.com/artur/tubegate/internal/storage"
)

type fetchCall struct {
	link, quality string
	kind          media.Kind
}

type fakeFetcher struct {
	path  string
	err   error
	calls []fetchCall
	// hook, when set, runs inside Fetch with the context the server passed.
	hook func(ctx context.Context)
}

func (f *fakeFetcher) Fetch(ctx context.Context, link, quality string, kind media.Kind) (string, error) {
	f.calls = append(f.calls, fetchCall{link, quality, kind})
	if f.hook != nil {
		f.hook(ctx)
	}
	return f.path, f.err
}

type fakeLedger struct {
	calls int
	err   error
}

func (f *fakeLedger) Reset(context.Context) error {
	f.calls++
	return f.err
}

type fixture struct {
	srv     *Server
	files   *storage.Files
	fetcher *fakeFetcher
	ledger  *fakeLedger
}

func newFixture(t *testing.T, adminToken string) *fixture {
	t.Helper()
	files, err := storage.NewFiles(t.TempDir())
	require.NoError(t, err)

	fx := &fixture{files: files, fetcher: &fakeFetcher{}, ledger: &fakeLedger{}}
	fx.srv = New(Options{
		Files:      files,
		Fetcher:    fx.fetcher,
		Ledger:     fx.ledger,
		AdminToken: adminToken,
	}, logger.Discard())
	return fx
}

func (fx *fixture) do(t *testing.T, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	fx.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	fx := newFixture(t, "")
	rec := fx.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestIndex(t *testing.T) {
	fx := newFixture(t, "")
	rec := fx.do(t, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestServeFile(t *testing.T) {
	fx := newFixture(t, "")
	require.NoError(t, os.WriteFile(fx.files.Path("My Clip.mp4"), []byte("video-bytes"), 0o644))

	rec := fx.do(t, http.MethodGet, "/downloads/My%20Clip.mp4", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "My Clip.mp4")
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "video-bytes", string(body))
}

func TestServeFile_NotFound(t *testing.T) {
	fx := newFixture(t, "")
	rec := fx.do(t, http.MethodGet, "/downloads/missing.mp4", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]string{"error": "File not found"}, decode(t, rec))
}

func TestServeFile_DirectoryIsNotServed(t *testing.T) {
	fx := newFixture(t, "")
	_, err := fx.files.StagingDir("job")
	require.NoError(t, err)

	rec := fx.do(t, http.MethodGet, "/downloads/.staging", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownload(t *testing.T) {
	fx := newFixture(t, "")
	fx.fetcher.path = filepath.Join(fx.files.Root(), "Song.mp3")

	rec := fx.do(t, http.MethodGet, "/download?url=https://youtu.be/dQw4w9WgXcQ&quality=mp3", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, fx.fetcher.path, body["file_path"])
	assert.Equal(t, "Song.mp3", body["file_name"])

	require.Len(t, fx.fetcher.calls, 1)
	assert.Equal(t, fetchCall{"https://youtu.be/dQw4w9WgXcQ", "mp3", media.KindYouTube}, fx.fetcher.calls[0])
}

func TestDownload_Defaults(t *testing.T) {
	fx := newFixture(t, "")
	fx.fetcher.path = filepath.Join(fx.files.Root(), "x.mp4")

	rec := fx.do(t, http.MethodGet, "/download?url=https://dai.ly/x8abc&source=dailymotion", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "best", fx.fetcher.calls[0].quality)
	assert.Equal(t, media.KindDailymotion, fx.fetcher.calls[0].kind)
}

func TestDownload_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		fetchErr   error
		wantStatus int
		wantMsg    string
	}{
		{"missing url", "/download", nil, http.StatusBadRequest, "URL parameter is missing"},
		{"bad source", "/download?url=x&source=vimeo", nil, http.StatusBadRequest, media.ErrUnsupportedSource.Error()},
		{"fetch failure", "/download?url=x", errors.New("boom"), http.StatusInternalServerError, "boom"},
		{"file missing", "/download?url=x", &storage.FileMissingError{Path: "/tmp/x"}, http.StatusInternalServerError, "File not found after download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, "")
			fx.fetcher.err = tt.fetchErr

			rec := fx.do(t, http.MethodGet, tt.target, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.wantMsg, body["message"])
		})
	}
}

func TestReset(t *testing.T) {
	t.Run("no token configured", func(t *testing.T) {
		fx := newFixture(t, "")
		rec := fx.do(t, http.MethodPost, "/reset", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "success", decode(t, rec)["status"])
		assert.Equal(t, 1, fx.ledger.calls)
	})

	t.Run("wrong token", func(t *testing.T) {
		fx := newFixture(t, "secret")
		rec := fx.do(t, http.MethodPost, "/reset", map[string]string{adminHeader: "nope"})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 0, fx.ledger.calls)
	})

	t.Run("right token", func(t *testing.T) {
		fx := newFixture(t, "secret")
		rec := fx.do(t, http.MethodPost, "/reset", map[string]string{adminHeader: "secret"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, fx.ledger.calls)
	})

	t.Run("ledger failure", func(t *testing.T) {
		fx := newFixture(t, "")
		fx.ledger.err = errors.New("locked")
		rec := fx.do(t, http.MethodPost, "/reset", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "error", decode(t, rec)["status"])
	})

	t.Run("get not allowed", func(t *testing.T) {
		fx := newFixture(t, "")
		rec := fx.do(t, http.MethodGet, "/reset", nil)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestDownload_ClientDisconnectDoesNotCancelFetch(t *testing.T) {
	fx := newFixture(t, "")
	fx.fetcher.path = filepath.Join(fx.files.Root(), "clip.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	var fetchErr error
	fx.fetcher.hook = func(fctx context.Context) {
		cancel()
		select {
		case <-fctx.Done():
			fetchErr = fctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/download?url=https://youtu.be/dQw4w9WgXcQ", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	fx.srv.Handler().ServeHTTP(rec, req)

	assert.NoError(t, fetchErr, "fetch must keep running after the client goes away")
	assert.Equal(t, context.Canceled, ctx.Err())
	assert.Equal(t, http.StatusOK, rec.Code)
}
