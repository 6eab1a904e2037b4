package repository_test

import (
	"database/sql"
	"testing"

	"github.com/artur/tubegate/internal/database"
	"github.com/artur/tubegate/internal/logger"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(":memory:", logger.Discard())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db.DB
}
