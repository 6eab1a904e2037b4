// Package storage names downloaded artifacts and reclaims them after their lifetime.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	stagingDirName = ".staging"
	failedDirName  = ".failed"
)

// ErrFileMissing is matched by FileMissingError.
var ErrFileMissing = errors.New("file missing")

// FileMissingError is returned when the engine reports success but its output is absent.
type FileMissingError struct {
	Path string
}

func (e *FileMissingError) Error() string {
	return fmt.Sprintf("file not found after download: %s", e.Path)
}

func (e *FileMissingError) Is(target error) bool { return target == ErrFileMissing }

var unsafeChars = strings.NewReplacer(
	`\`, "_", "/", "_", "*", "_", "?", "_", ":", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// Sanitize replaces characters that are unsafe in file names with underscores.
func Sanitize(name string) string {
	return unsafeChars.Replace(name)
}

// Files manages the download root.
type Files struct {
	root string
}

// NewFiles creates the root directory if needed.
func NewFiles(root string) (*Files, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Files{root: root}, nil
}

// Root returns the storage directory.
func (f *Files) Root() string { return f.root }

// Path joins name onto the root after stripping any directory parts.
func (f *Files) Path(name string) string {
	return filepath.Join(f.root, filepath.Base(name))
}

// StagingDir creates a private scratch directory for one job.
func (f *Files) StagingDir(jobID string) (string, error) {
	dir := filepath.Join(f.root, stagingDirName, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging dir: %w", err)
	}
	return dir, nil
}

// UniquePath returns base+ext inside the root, or base_1+ext, base_2+ext, ...
// whichever is the first not present. It does not reserve the name.
func (f *Files) UniquePath(base, ext string) string {
	return f.uniquePath(base, ext, "")
}

func (f *Files) uniquePath(base, ext, self string) string {
	return uniqueIn(f.root, base, ext, self)
}

func uniqueIn(dir, base, ext, self string) string {
	candidate := filepath.Join(dir, base+ext)
	for i := 1; ; i++ {
		if candidate == self {
			return candidate
		}
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, base+"_"+strconv.Itoa(i)+ext)
	}
}

// FailedDir is where files from failed deliveries are kept for inspection.
func (f *Files) FailedDir() string {
	return filepath.Join(f.root, failedDirName)
}

// Retain moves a file out of the served root into FailedDir, where neither
// the file server nor the janitor touches it, and returns its new path.
func (f *Files) Retain(path string) (string, error) {
	dir := f.FailedDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create retention dir: %w", err)
	}
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	target := uniqueIn(dir, strings.TrimSuffix(name, ext), ext, "")
	if err := os.Rename(path, target); err != nil {
		if os.IsNotExist(err) {
			return "", &FileMissingError{Path: path}
		}
		return "", fmt.Errorf("failed to retain %s: %w", path, err)
	}
	return target, nil
}

// Finalize moves raw into the root under a sanitized, unique name and returns
// the final path and its size. A raw file that already sits at that name stays put.
func (f *Files) Finalize(raw string) (string, int64, error) {
	if _, err := os.Stat(raw); err != nil {
		if os.IsNotExist(err) {
			return "", 0, &FileMissingError{Path: raw}
		}
		return "", 0, fmt.Errorf("failed to stat %s: %w", raw, err)
	}

	name := filepath.Base(raw)
	ext := filepath.Ext(name)
	base := Sanitize(strings.TrimSuffix(name, ext))

	target := f.uniquePath(base, ext, filepath.Clean(raw))
	if target != filepath.Clean(raw) {
		if err := os.Rename(raw, target); err != nil {
			return "", 0, fmt.Errorf("failed to move %s: %w", raw, err)
		}
	}

	// Age is counted from now, not from whatever mtime the engine left behind.
	now := time.Now()
	if err := os.Chtimes(target, now, now); err != nil {
		if os.IsNotExist(err) {
			return "", 0, &FileMissingError{Path: target}
		}
		return "", 0, fmt.Errorf("failed to stamp %s: %w", target, err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return "", 0, &FileMissingError{Path: target}
	}
	return target, info.Size(), nil
}
