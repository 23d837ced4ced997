package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/database"
	"github.com/stemsi/exstem-runner/internal/handler"
	"github.com/stemsi/exstem-runner/internal/logger"
	"github.com/stemsi/exstem-runner/internal/middleware"
	"github.com/stemsi/exstem-runner/internal/repository"
	"github.com/stemsi/exstem-runner/internal/router"
	"github.com/stemsi/exstem-runner/internal/service"
	"github.com/stemsi/exstem-runner/internal/synchronizer"
	"github.com/stemsi/exstem-runner/internal/validator"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("remote", cfg.RemoteBaseURL).
		Str("snapshot_driver", cfg.SnapshotDriver).
		Msg("Starting ExStem Runner")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Open Snapshot Store ───────────────────────────────────────────
	snapshots, ping, closeStore := openSnapshotStore(ctx, cfg, log)
	defer closeStore()

	// ─── Initialize Services ──────────────────────────────────────────
	remote := synchronizer.New(cfg.RemoteBaseURL, "", &http.Client{}, log)
	hub := service.NewEventHub()
	sessionService := service.NewSessionService(remote, snapshots, hub, cfg, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session:    handler.NewSessionHandler(sessionService),
		Annotation: handler.NewAnnotationHandler(sessionService),
		WS:         handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:     handler.NewSystemHandler(sessionService, cfg.SnapshotDriver, ping, log),
	}

	// Bootstrap limiter: 30 starts per minute per client.
	startLimiter := middleware.NewRateLimiter(30, time.Minute)
	go startLimiter.RunCleanup(ctx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, remote, startLimiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop every countdown. Snapshots stay in the store so a restarted
	// runner restores annotations when the UI bootstraps again.
	sessionService.Shutdown()
	cancel()

	log.Info().Int("sessions", sessionService.Len()).Msg("Shutdown complete")
}

// openSnapshotStore selects the snapshot repository named by
// SNAPSHOT_DRIVER, migrating SQL schemas first. It returns the store's
// health check and a close function.
func openSnapshotStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (repository.SnapshotRepository, handler.PingFunc, func()) {
	switch cfg.SnapshotDriver {
	case config.SnapshotDriverMemory:
		log.Warn().Msg("Using in-memory snapshot store; annotations are lost on restart")
		return repository.NewMemorySnapshotRepository(), nil, func() {}

	case config.SnapshotDriverRedis:
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		return repository.NewRedisSnapshotRepository(rdb, cfg.SnapshotTTL), ping, closeRedis(rdb)

	case config.SnapshotDriverPostgres:
		if err := database.MigrateUp(config.SnapshotDriverPostgres, cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate PostgreSQL snapshot schema")
		}
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		return repository.NewPostgresSnapshotRepository(pool), pool.Ping, closePool(pool)

	case config.SnapshotDriverSQLite:
		if err := database.MigrateUp(config.SnapshotDriverSQLite, cfg.SQLitePath); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate SQLite snapshot schema")
		}
		db, err := database.NewSQLiteDB(ctx, cfg.SQLitePath, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open SQLite")
		}
		return repository.NewSQLiteSnapshotRepository(db), db.PingContext, closeDB(db)

	default:
		log.Fatal().Str("driver", cfg.SnapshotDriver).Msg("Unknown snapshot driver")
		return nil, nil, nil
	}
}

func closeRedis(rdb *redis.Client) func() { return func() { _ = rdb.Close() } }
func closePool(pool *pgxpool.Pool) func() { return pool.Close }
func closeDB(db *sql.DB) func() { return func() { _ = db.Close() } }

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
