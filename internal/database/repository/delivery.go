package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/artur/tubegate/internal/database/models"
)

// DeliveryRepository handles the completed delivery log
type DeliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository creates a new DeliveryRepository
func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// RecordDelivery appends a completed delivery
func (r *DeliveryRepository) RecordDelivery(ctx context.Context, d *models.Delivery) error {
	query := `
		INSERT INTO delivery_log
		(user_id, source_kind, media_id, media_url, title, quality, method, file_size_bytes, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		d.UserID,
		d.SourceKind,
		d.MediaID,
		d.MediaURL,
		d.Title,
		d.Quality,
		d.Method,
		d.FileSizeBytes,
		d.DeliveredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	return nil
}

// UserDeliveryCount returns total deliveries for a user
func (r *DeliveryRepository) UserDeliveryCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_log WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// TotalDeliveries returns deliveries by all users
func (r *DeliveryRepository) TotalDeliveries(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_log`).Scan(&count)
	return count, err
}

// PopularMedia is a media item with its delivery count
type PopularMedia struct {
	MediaID       string
	Title         string
	DeliveryCount int64
}

// PopularMedia returns the most delivered media (top N)
func (r *DeliveryRepository) PopularMedia(ctx context.Context, limit int) ([]PopularMedia, error) {
	query := `
		SELECT media_id, MAX(title), COUNT(*) AS delivery_count
		FROM delivery_log
		GROUP BY media_id
		ORDER BY delivery_count DESC, media_id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get popular media: %w", err)
	}
	defer rows.Close()

	var items []PopularMedia
	for rows.Next() {
		var item PopularMedia
		var title sql.NullString
		if err := rows.Scan(&item.MediaID, &title, &item.DeliveryCount); err != nil {
			return nil, fmt.Errorf("failed to scan media: %w", err)
		}
		item.Title = title.String
		items = append(items, item)
	}

	return items, rows.Err()
}
