package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artur/tubegate/internal/database"
	"github.com/artur/tubegate/internal/database/models"
)

const dateLayout = "2006-01-02"

// DownloadRepository is the SQLite quota ledger store
type DownloadRepository struct {
	db *sql.DB
}

// NewDownloadRepository creates a new DownloadRepository
func NewDownloadRepository(db *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// Ensure inserts a zero record for the user; an existing record is left untouched.
func (r *DownloadRepository) Ensure(ctx context.Context, userID int64, day time.Time) error {
	query := `
		INSERT INTO user_downloads (user_id, download_count, last_download_date)
		VALUES (?, 0, ?)
		ON CONFLICT(user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, day.Format(dateLayout)); err != nil {
		return fmt.Errorf("failed to ensure download record: %w", err)
	}
	return nil
}

// Count returns the user's lifetime download count, 0 if there is no record.
func (r *DownloadRepository) Count(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT download_count FROM user_downloads WHERE user_id = ?`, userID,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read download count: %w", err)
	}
	return count, nil
}

// Increment bumps the counter and stamps the date in one statement.
func (r *DownloadRepository) Increment(ctx context.Context, userID int64, day time.Time) error {
	query := `
		INSERT INTO user_downloads (user_id, download_count, last_download_date)
		VALUES (?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			download_count = user_downloads.download_count + 1,
			last_download_date = excluded.last_download_date
	`
	if _, err := r.db.ExecContext(ctx, query, userID, day.Format(dateLayout)); err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	return nil
}

// Get returns the full record, or nil when the user has none.
func (r *DownloadRepository) Get(ctx context.Context, userID int64) (*models.DownloadRecord, error) {
	var (
		rec  models.DownloadRecord
		date string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, download_count, last_download_date FROM user_downloads WHERE user_id = ?`, userID,
	).Scan(&rec.UserID, &rec.DownloadCount, &date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download record: %w", err)
	}
	rec.LastDownloadDate, err = parseDate(date)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Reset drops every record and recreates the empty ledger.
func (r *DownloadRepository) Reset(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS user_downloads`); err != nil {
		return fmt.Errorf("failed to drop ledger: %w", err)
	}
	if _, err := tx.ExecContext(ctx, database.CreateUserDownloadsTable); err != nil {
		return fmt.Errorf("failed to recreate ledger: %w", err)
	}
	return tx.Commit()
}

// parseDate accepts the plain date we write and the timestamp forms the driver may hand back.
func parseDate(s string) (time.Time, error) {
	if len(s) >= len(dateLayout) {
		if t, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid download date %q", s)
}
