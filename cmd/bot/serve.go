package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/artur/tubegate/internal/bot"
	"github.com/artur/tubegate/internal/delivery"
	"github.com/artur/tubegate/internal/downloader"
	"github.com/artur/tubegate/internal/handler"
	"github.com/artur/tubegate/internal/pipeline"
	"github.com/artur/tubegate/internal/server"
	"github.com/artur/tubegate/internal/shortener"
	"github.com/artur/tubegate/internal/storage"
	"github.com/artur/tubegate/internal/tracing"
)

const (
	shutdownTimeout = 10 * time.Second
	drainTimeout    = 30 * time.Second
)

func runServe(ctx context.Context, configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return errNoToken
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting tubegate", slog.String("http_addr", cfg.HTTP.Addr), slog.String("storage", cfg.Storage.Root))

	shutdownTracer, err := tracing.Init(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Warn("tracer shutdown", slog.Any("error", err))
		}
	}()

	if cfg.Extractor.Install {
		log.Info("installing yt-dlp")
		if err := downloader.Install(ctx); err != nil {
			return fmt.Errorf("install yt-dlp: %w", err)
		}
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	files, err := storage.NewFiles(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("prepare download directory: %w", err)
	}
	reaper := storage.NewReaper(log)
	defer reaper.Shutdown()

	janitor := storage.NewJanitor(files, reaper, 2*cfg.Storage.LinkTTL, log)
	if err := janitor.Start(cfg.Storage.JanitorSchedule); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	defer janitor.Stop()

	resolver, engine := newResolver(cfg, log)

	b, err := bot.New(cfg.Telegram.Token, bot.Options{
		PollTimeout:    cfg.Telegram.PollTimeout,
		ReconnectDelay: cfg.Telegram.ReconnectDelay,
	}, log)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	orch := pipeline.New(pipeline.Config{
		Resolver:      resolver,
		Fetcher:       engine,
		Files:         files,
		Scheduler:     reaper,
		Policy:        delivery.NewEngine(st.ledger, cfg.Admin.UserIDs, cfg.Telegram.UploadLimit(), log),
		Retry:         delivery.FixedRetry(cfg.Delivery.TransferAttempts, cfg.Delivery.TransferBackoff),
		Sender:        b,
		Shortener:     shortener.New(cfg.Shortener.APIURL, cfg.Shortener.Token, nil, log),
		DeliveryLog:   st.deliveries,
		PublicBaseURL: cfg.HTTP.PublicBaseURL,
		LinkTTL:       cfg.Storage.LinkTTL,
		UploadLimit:   cfg.Telegram.UploadLimit(),
		Logger:        log,
	})

	// Order matters: the link handler accepts any text and must come last.
	b.RegisterHandler(handler.NewStartHandler(b, log))
	b.RegisterHandler(handler.NewResetHandler(st.ledger, cfg.IsAdmin, b, log))
	b.RegisterHandler(handler.NewStatsHandler(st.deliveries, cfg.IsAdmin, b, log))
	b.RegisterHandler(handler.NewDownloadCommandHandler(orch, b, log))
	b.RegisterHandler(handler.NewQualityHandler(orch, b, b, log))
	b.RegisterHandler(handler.NewLinkHandler(orch, b, log))

	srv := server.New(server.Options{
		Files:      files,
		Fetcher:    orch,
		Ledger:     st.ledger,
		AdminToken: cfg.HTTP.AdminToken,
	}, log).HTTPServer(cfg.HTTP.Addr)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	b.NotifyStartup(ctx, cfg.Admin.UserIDs)

	botDone := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(botDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
			log.Error("http server failed", slog.Any("error", err))
		}
		stop()
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("http server forced to shutdown", slog.Any("error", err))
	}

	<-botDone
	if !b.Wait(drainTimeout) {
		log.Warn("in-flight jobs still running at exit")
	}

	log.Info("tubegate exited")
	return runErr
}
