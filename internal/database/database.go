// Package database owns the SQLite connection and schema.
package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle.
type DB struct {
	*sql.DB
	log *slog.Logger
}

// New opens (creating if needed) the SQLite database at path.
// Use ":memory:" for an ephemeral database.
func New(path string, log *slog.Logger) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	log.Info("database opened", slog.String("path", path))
	return &DB{DB: db, log: log}, nil
}
