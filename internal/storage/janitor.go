package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically removes files that outlived their lifetime without a
// pending timer, e.g. after a restart, and abandoned staging directories.
type Janitor struct {
	files  *Files
	reaper *Reaper
	maxAge time.Duration
	log    *slog.Logger
	cron   *cron.Cron
}

// NewJanitor creates a janitor; files older than maxAge are eligible.
func NewJanitor(files *Files, reaper *Reaper, maxAge time.Duration, log *slog.Logger) *Janitor {
	log = log.With(slog.String("component", "janitor"))
	cl := cronLogger{log: log}
	return &Janitor{
		files:  files,
		reaper: reaper,
		maxAge: maxAge,
		log:    log,
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
	}
}

// Start runs Sweep on the given cron schedule (e.g. "@every 10m").
func (j *Janitor) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, func() { j.Sweep(time.Now()) }); err != nil {
		return err
	}
	j.cron.Start()
	j.log.Info("janitor started", slog.String("schedule", schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.log.Info("janitor stopped")
}

// Sweep removes expired files and staging directories, returning how many it removed.
func (j *Janitor) Sweep(now time.Time) int {
	entries, err := os.ReadDir(j.files.Root())
	if err != nil {
		j.log.Error("failed to list storage root", slog.Any("error", err))
		return 0
	}

	removed := 0
	for _, e := range entries {
		path := filepath.Join(j.files.Root(), e.Name())
		// Only staging is swept among directories; FailedDir is left to operators.
		if e.IsDir() {
			if e.Name() == stagingDirName {
				removed += j.sweepStaging(path, now)
			}
			continue
		}
		if !j.expired(e, now) || j.reaper.Pending(path) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			j.log.Error("failed to remove expired file", slog.String("path", path), slog.Any("error", err))
			continue
		}
		j.log.Info("expired file removed", slog.String("path", path))
		removed++
	}
	return removed
}

func (j *Janitor) sweepStaging(dir string, now time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if !j.expired(e, now) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			j.log.Error("failed to remove staging dir", slog.String("path", path), slog.Any("error", err))
			continue
		}
		j.log.Info("stale staging dir removed", slog.String("path", path))
		removed++
	}
	return removed
}

func (j *Janitor) expired(e os.DirEntry, now time.Time) bool {
	info, err := e.Info()
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime()) > j.maxAge
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	log *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(keysAndValues, "error", err)...)
}
