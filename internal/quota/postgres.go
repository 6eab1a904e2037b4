package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgCreateTable = `CREATE TABLE IF NOT EXISTS user_downloads (
	user_id BIGINT PRIMARY KEY,
	download_count INTEGER NOT NULL DEFAULT 0,
	last_download_date DATE NOT NULL
)`

// PostgresStore keeps the ledger in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the ledger table if missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgCreateTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create ledger table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ensure(ctx context.Context, userID int64, day time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_downloads (user_id, download_count, last_download_date)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, day)
	return err
}

func (s *PostgresStore) Count(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT download_count FROM user_downloads WHERE user_id = $1`, userID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (s *PostgresStore) Increment(ctx context.Context, userID int64, day time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_downloads (user_id, download_count, last_download_date)
		VALUES ($1, 1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			download_count = user_downloads.download_count + 1,
			last_download_date = EXCLUDED.last_download_date`, userID, day)
	return err
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS user_downloads`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, pgCreateTable)
		return err
	})
}
