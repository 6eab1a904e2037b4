package storage

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DeleteResult is passed to the callback when a scheduled deletion fires.
type DeleteResult struct {
	Path    string
	Removed bool
	Err     error
}

type stopper interface {
	Stop() bool
}

type entry struct {
	timer stopper
	fire  time.Time
}

// Reaper owns the pending deletion timers. It is safe for concurrent use.
type Reaper struct {
	mu      sync.Mutex
	pending map[string]*entry
	closed  bool

	log       *slog.Logger
	now       func() time.Time
	afterFunc func(time.Duration, func()) stopper
}

// NewReaper creates an empty registry.
func NewReaper(log *slog.Logger) *Reaper {
	return &Reaper{
		pending: make(map[string]*entry),
		log:     log.With(slog.String("component", "reaper")),
		now:     time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Schedule removes path after ttl and then calls onDelete (which may be nil).
// Scheduling a path that is already pending replaces the earlier timer.
func (r *Reaper) Schedule(path string, ttl time.Duration, onDelete func(DeleteResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.log.Warn("reaper closed, deletion not scheduled", slog.String("path", path))
		return
	}
	if old, ok := r.pending[path]; ok {
		old.timer.Stop()
	}

	e := &entry{fire: r.now().Add(ttl)}
	e.timer = r.afterFunc(ttl, func() { r.fire(path, e, onDelete) })
	r.pending[path] = e

	r.log.Debug("deletion scheduled", slog.String("path", path), slog.Time("at", e.fire))
}

func (r *Reaper) fire(path string, e *entry, onDelete func(DeleteResult)) {
	r.mu.Lock()
	if cur, ok := r.pending[path]; !ok || cur != e {
		r.mu.Unlock()
		return
	}
	delete(r.pending, path)
	r.mu.Unlock()

	res := DeleteResult{Path: path}
	err := os.Remove(path)
	switch {
	case err == nil:
		res.Removed = true
		r.log.Info("file deleted", slog.String("path", path))
	case errors.Is(err, os.ErrNotExist):
		r.log.Info("file already gone", slog.String("path", path))
	default:
		res.Err = err
		r.log.Error("failed to delete file", slog.String("path", path), slog.Any("error", err))
	}

	if onDelete != nil {
		onDelete(res)
	}
}

// Cancel stops the pending deletion of path, reporting whether one existed.
func (r *Reaper) Cancel(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pending[path]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.pending, path)
	return true
}

// Pending reports whether path has a deletion scheduled.
func (r *Reaper) Pending(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[path]
	return ok
}

// Len returns the number of scheduled deletions.
func (r *Reaper) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Shutdown cancels every timer. Files stay on disk for the janitor to collect.
func (r *Reaper) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for path, e := range r.pending {
		e.timer.Stop()
		delete(r.pending, path)
	}
	r.closed = true
	r.log.Info("reaper stopped")
}
