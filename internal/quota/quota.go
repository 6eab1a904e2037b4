// Package quota tracks how many link deliveries each user has received.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Store is a persistence backend for the ledger. Increment must be a single
// atomic operation: count+1 and date stamp, no read-then-write.
type Store interface {
	Ensure(ctx context.Context, userID int64, day time.Time) error
	Count(ctx context.Context, userID int64) (int, error)
	Increment(ctx context.Context, userID int64, day time.Time) error
	Reset(ctx context.Context) error
}

// PersistenceError reports a failed ledger read or write.
type PersistenceError struct {
	Op     string
	UserID int64
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.UserID == 0 {
		return fmt.Sprintf("quota %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("quota %s for user %d: %v", e.Op, e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Ledger wraps a Store with the failure semantics callers rely on:
// reads degrade to zero, writes are logged and returned.
type Ledger struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewLedger creates a ledger over store.
func NewLedger(store Store, log *slog.Logger) *Ledger {
	return &Ledger{
		store: store,
		log:   log.With(slog.String("component", "quota")),
		now:   time.Now,
	}
}

func (l *Ledger) today() time.Time {
	y, m, d := l.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Ensure creates the user's record with count 0 if it does not exist.
func (l *Ledger) Ensure(ctx context.Context, userID int64) error {
	if err := l.store.Ensure(ctx, userID, l.today()); err != nil {
		perr := &PersistenceError{Op: "ensure", UserID: userID, Err: err}
		l.log.Error("ledger write failed", slog.Any("error", perr))
		return perr
	}
	return nil
}

// Count returns the user's download count. Read failures are logged and yield 0.
func (l *Ledger) Count(ctx context.Context, userID int64) int {
	n, err := l.store.Count(ctx, userID)
	if err != nil {
		l.log.Error("ledger read failed, assuming zero",
			slog.Any("error", &PersistenceError{Op: "count", UserID: userID, Err: err}))
		return 0
	}
	return n
}

// Increment records one more download for the user.
func (l *Ledger) Increment(ctx context.Context, userID int64) error {
	if err := l.store.Increment(ctx, userID, l.today()); err != nil {
		perr := &PersistenceError{Op: "increment", UserID: userID, Err: err}
		l.log.Error("ledger write failed", slog.Any("error", perr))
		return perr
	}
	return nil
}

// Reset drops all records. Callers must restrict this to administrators.
func (l *Ledger) Reset(ctx context.Context) error {
	if err := l.store.Reset(ctx); err != nil {
		return &PersistenceError{Op: "reset", Err: err}
	}
	l.log.Info("ledger reset")
	return nil
}
