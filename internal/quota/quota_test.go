package quota_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artur/tubegate/internal/database"
	"github.com/artur/tubegate/internal/database/repository"
	"github.com/artur/tubegate/internal/logger"
	"github.com/artur/tubegate/internal/quota"
)

var (
	_ quota.Store = (*repository.DownloadRepository)(nil)
	_ quota.Store = (*quota.PostgresStore)(nil)
	_ quota.Store = (*quota.RedisStore)(nil)
)

func sqliteStore(t *testing.T) quota.Store {
	t.Helper()
	db, err := database.New(":memory:", logger.Discard())
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return repository.NewDownloadRepository(db.DB)
}

func redisStore(t *testing.T) quota.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return quota.NewRedisStore(client)
}

func postgresStore(t *testing.T) quota.Store {
	t.Helper()
	dsn := os.Getenv("TUBEGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TUBEGATE_TEST_POSTGRES_DSN not set")
	}
	store, err := quota.NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, store.Reset(context.Background()))
	t.Cleanup(store.Close)
	return store
}

func backends() map[string]func(*testing.T) quota.Store {
	return map[string]func(*testing.T) quota.Store{
		"sqlite":   sqliteStore,
		"redis":    redisStore,
		"postgres": postgresStore,
	}
}

func TestLedger_Lifecycle(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := quota.NewLedger(open(t), logger.Discard())

			assert.Equal(t, 0, l.Count(ctx, 100), "unknown user counts as zero")

			require.NoError(t, l.Ensure(ctx, 100))
			assert.Equal(t, 0, l.Count(ctx, 100))

			require.NoError(t, l.Increment(ctx, 100))
			require.NoError(t, l.Increment(ctx, 100))
			require.NoError(t, l.Ensure(ctx, 100))
			assert.Equal(t, 2, l.Count(ctx, 100), "ensure never overwrites")

			require.NoError(t, l.Reset(ctx))
			assert.Equal(t, 0, l.Count(ctx, 100))

			require.NoError(t, l.Increment(ctx, 100))
			assert.Equal(t, 1, l.Count(ctx, 100))
		})
	}
}

func TestLedger_ConcurrentIncrements(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := quota.NewLedger(open(t), logger.Discard())

			require.NoError(t, l.Ensure(ctx, 9))
			require.NoError(t, l.Increment(ctx, 9))
			initial := l.Count(ctx, 9)

			const k = 20
			var wg sync.WaitGroup
			for i := 0; i < k; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, l.Increment(ctx, 9))
				}()
			}
			wg.Wait()

			assert.Equal(t, initial+k, l.Count(ctx, 9))
		})
	}
}

type brokenStore struct{ err error }

func (s brokenStore) Ensure(context.Context, int64, time.Time) error    { return s.err }
func (s brokenStore) Count(context.Context, int64) (int, error)         { return 7, s.err }
func (s brokenStore) Increment(context.Context, int64, time.Time) error { return s.err }
func (s brokenStore) Reset(context.Context) error                       { return s.err }

func TestLedger_PersistenceFailures(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("disk full")
	l := quota.NewLedger(brokenStore{err: cause}, logger.Discard())

	assert.Equal(t, 0, l.Count(ctx, 1), "read failures degrade to zero")

	err := l.Increment(ctx, 1)
	var perr *quota.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "increment", perr.Op)
	assert.Equal(t, int64(1), perr.UserID)
	assert.ErrorIs(t, err, cause)

	require.ErrorAs(t, l.Ensure(ctx, 1), &perr)
	assert.Equal(t, "ensure", perr.Op)

	require.ErrorAs(t, l.Reset(ctx), &perr)
	assert.Equal(t, "reset", perr.Op)
}
