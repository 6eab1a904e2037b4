package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/artur/tubegate/internal/database/repository"
)

var (
	day1 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
)

func TestDownloadRepository_EnsureIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	repo := repository.NewDownloadRepository(db)

	if err := repo.Ensure(ctx, 42, day1); err != nil {
		t.Fatalf("Failed to ensure: %v", err)
	}
	if err := repo.Increment(ctx, 42, day1); err != nil {
		t.Fatalf("Failed to increment: %v", err)
	}
	// A second ensure must not reset the counter
	if err := repo.Ensure(ctx, 42, day2); err != nil {
		t.Fatalf("Failed to ensure: %v", err)
	}

	count, err := repo.Count(ctx, 42)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count 1, got %d", count)
	}
}

func TestDownloadRepository_CountWithoutRecord(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := repository.NewDownloadRepository(db)

	count, err := repo.Count(context.Background(), 999)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected count 0, got %d", count)
	}
}

func TestDownloadRepository_IncrementStampsDate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	repo := repository.NewDownloadRepository(db)
	repo.Ensure(ctx, 7, day1)
	repo.Increment(ctx, 7, day1)
	repo.Increment(ctx, 7, day2)

	rec, err := repo.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if rec == nil {
		t.Fatal("Expected a record")
	}
	if rec.DownloadCount != 2 {
		t.Errorf("Expected count 2, got %d", rec.DownloadCount)
	}
	if !rec.LastDownloadDate.Equal(day2) {
		t.Errorf("Expected date %v, got %v", day2, rec.LastDownloadDate)
	}
}

func TestDownloadRepository_IncrementWithoutEnsure(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	repo := repository.NewDownloadRepository(db)
	if err := repo.Increment(ctx, 5, day1); err != nil {
		t.Fatalf("Failed to increment: %v", err)
	}

	count, _ := repo.Count(ctx, 5)
	if count != 1 {
		t.Errorf("Expected count 1, got %d", count)
	}
}

func TestDownloadRepository_ConcurrentIncrements(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	repo := repository.NewDownloadRepository(db)
	repo.Ensure(ctx, 1, day1)
	repo.Increment(ctx, 1, day1)

	const workers = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Increment(ctx, 1, day1); err != nil {
				t.Errorf("Failed to increment: %v", err)
			}
		}()
	}
	wg.Wait()

	count, _ := repo.Count(ctx, 1)
	if count != workers+1 {
		t.Errorf("Expected count %d, got %d", workers+1, count)
	}
}

func TestDownloadRepository_Reset(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	repo := repository.NewDownloadRepository(db)
	for _, id := range []int64{1, 2, 3} {
		repo.Ensure(ctx, id, day1)
		repo.Increment(ctx, id, day1)
	}

	if err := repo.Reset(ctx); err != nil {
		t.Fatalf("Failed to reset: %v", err)
	}

	for _, id := range []int64{1, 2, 3} {
		rec, err := repo.Get(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get record: %v", err)
		}
		if rec != nil {
			t.Errorf("Expected no record for %d after reset", id)
		}
	}

	// The ledger must be usable again
	if err := repo.Ensure(ctx, 1, day2); err != nil {
		t.Fatalf("Failed to ensure after reset: %v", err)
	}
	count, _ := repo.Count(ctx, 1)
	if count != 0 {
		t.Errorf("Expected count 0 after reset, got %d", count)
	}
}
