package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mailspool/internal/config"
	"github.com/mailspool/internal/crypto"
	"github.com/mailspool/internal/db"
	"github.com/mailspool/internal/mailer"
	"github.com/mailspool/internal/queue"
	"github.com/mailspool/internal/spool"
	"github.com/mailspool/internal/store"
	"github.com/mailspool/internal/submit"
)

// derivationSalt keys the PBKDF2 stretch of the settings passphrase. It is
// fixed per build; changing it invalidates every stored secret.
const derivationSalt = "mailspool.options.v1"

type App struct {
	config    *config.Config
	logger    *slog.Logger
	pool      *sql.DB
	spool     *spool.Spool
	settings  *store.SettingsStore
	transport *mailer.SMTP
	gate      *submit.Gate
	stats     *queue.Stats
	processor *queue.Processor
	scheduler *queue.Scheduler
}

func (app *App) Close() {
	app.pool.Close()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	crypter := crypto.New(crypto.DeriveKey(cfg.SettingsKey, derivationSalt))
	settings := store.NewSettingsStore(pool, crypter, logger)
	if err := settings.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("settings migration: %w", err)
	}

	sp, err := spool.New(cfg.SpoolDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}

	transport := mailer.NewSMTP(logger)
	transport.Reconfigure(settings.LoadOptions(ctx))

	resolver := &mailer.HeaderResolver{
		SiteURL:   cfg.SiteURL,
		FromName:  cfg.FromName,
		FromEmail: cfg.FromEmail,
	}
	gate := submit.NewGate(settings, sp, transport, resolver, logger)

	stats := queue.NewStats()
	processor := queue.NewProcessor(sp, settings, transport, stats, logger)
	scheduler := queue.NewScheduler(settings, processor, logger)

	return &App{
		config:    cfg,
		logger:    logger,
		pool:      pool,
		spool:     sp,
		settings:  settings,
		transport: transport,
		gate:      gate,
		stats:     stats,
		processor: processor,
		scheduler: scheduler,
	}, nil
}

func (app *App) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", app.config.Port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute, // a triggered pass runs inside the response
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("server failed", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		return app.scheduler.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()

		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	app.logger.Info("stopped server")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo

	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	slog.SetDefault(logger)
	return logger
}
