// Package server exposes downloaded files and a small admin/download API over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/artur/tubegate/internal/media"
	"github.com/artur/tubegate/internal/storage"
)

const (
	defaultQuality = "best"
	defaultSource  = media.KindYouTube
	adminHeader    = "X-Admin-Token"
)

// Fetcher downloads a link into the download directory for the HTTP API.
type Fetcher interface {
	Fetch(ctx context.Context, link, quality string, kind media.Kind) (string, error)
}

// Resetter clears the download ledger.
type Resetter interface {
	Reset(ctx context.Context) error
}

type Options struct {
	Files      *storage.Files
	Fetcher    Fetcher
	Ledger     Resetter
	AdminToken string
}

type Server struct {
	opts   Options
	log    *slog.Logger
	router *mux.Router
}

// New builds the router. Every route except /health is traced.
func New(opts Options, log *slog.Logger) *Server {
	s := &Server{
		opts:   opts,
		log:    log.With(slog.String("component", "http")),
		router: mux.NewRouter(),
	}

	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	s.route("/", http.MethodGet, s.index)
	s.route("/downloads/{filename}", http.MethodGet, s.serveFile)
	s.route("/download", http.MethodGet, s.download)
	s.route("/reset", http.MethodPost, s.reset)

	return s
}

func (s *Server) route(path, method string, h http.HandlerFunc) {
	s.router.Handle(path, otelhttp.NewHandler(h, method+" "+path)).Methods(method)
}

func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer wraps the router with the timeouts used in production.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Bot is running"))
}

// serveFile handles GET /downloads/{filename}
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	path := s.opts.Files.Path(name)

	f, err := os.Open(path)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// download handles GET /download?url=&quality=&source=
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	link := q.Get("url")
	if link == "" {
		s.writeError(w, http.StatusBadRequest, "URL parameter is missing")
		return
	}

	quality := q.Get("quality")
	if quality == "" {
		quality = defaultQuality
	}

	kind := defaultSource
	if src := q.Get("source"); src != "" {
		k, err := media.ParseKind(src)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = k
	}

	// The acquisition outlives a client that hangs up; only request values carry over.
	path, err := s.opts.Fetcher.Fetch(context.WithoutCancel(r.Context()), link, quality, kind)
	if err != nil {
		s.log.Error("download failed", slog.String("url", link), slog.Any("error", err))
		if errors.Is(err, storage.ErrFileMissing) {
			s.writeError(w, http.StatusInternalServerError, "File not found after download")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"file_path": path,
		"file_name": filepath.Base(path),
	})
}

// reset handles POST /reset
func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if s.opts.AdminToken != "" {
		got := r.Header.Get(adminHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.AdminToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	if err := s.opts.Ledger.Reset(r.Context()); err != nil {
		s.log.Error("reset failed", slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Database has been reset successfully.",
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("failed to write response", slog.Any("error", err))
	}
}
