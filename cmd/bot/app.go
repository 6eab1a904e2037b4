package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/artur/tubegate/internal/config"
	"github.com/artur/tubegate/internal/database"
	"github.com/artur/tubegate/internal/database/repository"
	"github.com/artur/tubegate/internal/downloader"
	"github.com/artur/tubegate/internal/logger"
	"github.com/artur/tubegate/internal/media"
	"github.com/artur/tubegate/internal/quota"
)

func loadConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, logger.L, nil
}

// stores holds the SQLite database (always used for the delivery log) and
// the ledger on whichever backend is configured.
type stores struct {
	db         *database.DB
	ledger     *quota.Ledger
	deliveries *repository.DeliveryRepository
	closers    []func()
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, error) {
	db, err := database.New(cfg.Ledger.SQLitePath, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &stores{
		db:         db,
		deliveries: repository.NewDeliveryRepository(db.DB),
		closers:    []func(){func() { db.Close() }},
	}

	var store quota.Store
	switch cfg.Ledger.Backend {
	case config.BackendSQLite:
		store = repository.NewDownloadRepository(db.DB)
	case config.BackendPostgres:
		pg, err := quota.NewPostgresStore(ctx, cfg.Ledger.PostgresDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		store = pg
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Ledger.RedisAddr,
			Password: cfg.Ledger.RedisPassword,
			DB:       cfg.Ledger.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			s.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.closers = append(s.closers, func() { client.Close() })
		store = quota.NewRedisStore(client)
	default:
		s.Close()
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	log.Info("ledger ready", slog.String("backend", cfg.Ledger.Backend))
	s.ledger = quota.NewLedger(store, log)
	return s, nil
}

// Close releases stores in reverse order of opening.
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newResolver lists YouTube formats natively first and through yt-dlp as a fallback.
func newResolver(cfg config.Config, log *slog.Logger) (*media.Resolver, *downloader.YTDLP) {
	engine := downloader.NewYTDLP(cfg.Extractor.CookiesPath, log)
	listers := map[media.Kind]media.Lister{
		media.KindYouTube:     downloader.NewFallback(log, downloader.NewYouTubeLister(), engine),
		media.KindDailymotion: engine,
		media.KindTikTok:      engine,
	}
	return media.NewResolver(media.DefaultClassifier(), listers, log), engine
}

var errNoToken = errors.New("telegram token is required (set TELEGRAM_BOT_TOKEN or telegram.token)")
