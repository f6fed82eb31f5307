// Package main is the entrypoint for the LabelScan API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/labelscan/internal/ai"
	"github.com/kiranshivaraju/labelscan/internal/api"
	"github.com/kiranshivaraju/labelscan/internal/api/handler"
	mw "github.com/kiranshivaraju/labelscan/internal/api/middleware"
	"github.com/kiranshivaraju/labelscan/internal/auth"
	"github.com/kiranshivaraju/labelscan/internal/cache"
	"github.com/kiranshivaraju/labelscan/internal/config"
	"github.com/kiranshivaraju/labelscan/internal/history"
	"github.com/kiranshivaraju/labelscan/internal/knowledge"
	"github.com/kiranshivaraju/labelscan/internal/logging"
	"github.com/kiranshivaraju/labelscan/internal/metrics"
	"github.com/kiranshivaraju/labelscan/internal/scan"
	"github.com/kiranshivaraju/labelscan/internal/storage"
	"github.com/kiranshivaraju/labelscan/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Server.LogLevel, cfg.Server.Env == "development")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logging.Install(logger, "labelscan")
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"analyzer_mode", cfg.Analysis.Mode,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache and history
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	scanHistory := history.NewRedisStore(redisCache.Client(), cfg.History.Limit)

	// 5. Create AI provider and pipeline
	aiProvider, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	kb := knowledge.Default()
	analyzer, err := ai.NewAnalyzer(cfg.Analysis, aiProvider, kb, redisCache, cfg.AI.InferenceTimeout)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}
	scanner := scan.NewService(
		ai.NewExtractor(aiProvider, kb, cfg.AI.InferenceTimeout),
		analyzer,
		ai.NewSuggester(aiProvider, cfg.AI.InferenceTimeout),
	)

	// 6. Image storage
	images, err := newImageStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	// 7. Accounts
	pgStore := store.NewPostgresStore(pool)
	accounts := auth.NewService(pgStore, auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))

	// 8. Build router with dependencies
	metrics.Register()
	deps := buildDependencies(cfg, pgStore, redisCache, accounts, scanner, scanHistory, images, kb)
	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// scans wait on up to three model calls
		WriteTimeout: 3*cfg.AI.InferenceTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newImageStore(ctx context.Context, cfg config.StorageConfig) (storage.ImageStore, error) {
	if !cfg.Enabled() {
		slog.Info("image storage disabled")
		return storage.NopStore{}, nil
	}
	s3Store, err := storage.NewS3Store(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create image store: %w", err)
	}
	slog.Info("image storage enabled", "bucket", cfg.Bucket, "endpoint", cfg.Endpoint)
	return s3Store, nil
}

// buildDependencies wires handlers and middleware. Split from run so it can
// be exercised without live backends.
func buildDependencies(
	cfg *config.Config,
	db handler.Pinger,
	c cache.Cache,
	accounts *auth.Service,
	scanner handler.Scanner,
	h history.Store,
	images storage.ImageStore,
	kb *knowledge.Base,
) api.Dependencies {
	recorder := handler.NewRecorder(h, images)
	scans := handler.NewScanHandler(scanner, recorder, h, cfg.Server.MaxUploadBytes)
	socket := handler.NewWSHandler(scanner, recorder, h, cfg.Server.MaxUploadBytes)

	return api.Dependencies{
		Auth:      mw.NewAuth(accounts),
		RateLimit: mw.NewRateLimit(c, cfg.RateLimit.RequestsPerMinute),

		HealthHandler:  handler.NewHealthHandler(db, c),
		MetricsHandler: metrics.Handler(),
		SignupHandler:  handler.NewSignupHandler(accounts),
		LoginHandler:   handler.NewLoginHandler(accounts),

		CreateScan:    scans.Create,
		ListScans:     scans.List,
		DeleteScan:    scans.Delete,
		ClearScans:    scans.Clear,
		ScanSocket:    socket.Serve,
		LookupHandler: handler.NewIngredientHandler(kb),
	}
}
