package database

import (
	"fmt"
)

// CreateUserDownloadsTable is the ledger schema; ResetAll drops and reruns it.
const CreateUserDownloadsTable = `CREATE TABLE IF NOT EXISTS user_downloads (
	user_id INTEGER PRIMARY KEY,
	download_count INTEGER NOT NULL DEFAULT 0,
	last_download_date DATE NOT NULL
)`

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	db.log.Info("running migrations")

	migrations := []string{
		CreateUserDownloadsTable,

		// Completed deliveries, used for admin stats only
		`CREATE TABLE IF NOT EXISTS delivery_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			source_kind TEXT NOT NULL,
			media_id TEXT NOT NULL,
			media_url TEXT NOT NULL,
			title TEXT,
			quality TEXT NOT NULL,
			method TEXT NOT NULL,
			file_size_bytes INTEGER,
			delivered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_log_user_id ON delivery_log(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_log_media_id ON delivery_log(media_id)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_log_delivered_at ON delivery_log(delivered_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	db.log.Info("migrations completed")
	return nil
}
