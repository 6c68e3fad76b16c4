// @title farmacaixa API
// @version 1.0
// @description Pharmacy till session lifecycle and cash reconciliation.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"farmacaixa/internal/config"
	"farmacaixa/internal/infra"
	"farmacaixa/internal/repository"
	"farmacaixa/internal/router"
	"farmacaixa/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	db, err := infra.NewDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	if cfg.RunMigrations {
		if err := migrateUp(cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	// Redis carries the audit retry queue, the rate limiter and the actor
	// name cache. The till keeps working without it.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infra.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Error().Err(err).Msg("redis unavailable, running without audit retry queue")
			rdb = nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auditCB := infra.NewCircuitBreaker(infra.DefaultCBConfig())

	// Worker handlers are wired here (composition root) so that the pool
	// has full access to all infrastructure dependencies.
	if rdb != nil {
		sessionRepo := repository.NewSessionRepository(db)
		movementRepo := repository.NewMovementRepository(db)
		auditRepo := repository.NewAuditRepository(db)
		actorRepo := repository.NewActorRepository(db)

		handlers := worker.Handlers{
			Audit:           worker.NewAuditWorker(auditRepo, auditCB),
			MaxAuditRetries: cfg.AuditMaxRetries,
		}
		if cfg.MailEnabled() {
			handlers.Email = worker.NewEmailWorker(infra.NewMailer(cfg), sessionRepo, movementRepo, actorRepo)
		}
		worker.StartWorkerPool(ctx, rdb, cfg.WorkerPoolSize, handlers)
		worker.StartRetryCron(ctx, worker.RetryCronConfig{
			RDB:      rdb,
			CB:       auditCB,
			Interval: cfg.AuditRetryInterval,
		})
	}

	r := router.New(cfg, db, rdb, auditCB)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("farmacaixa listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	// stop workers and the retry cron after in-flight requests drained
	cancel()
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server exited")
}

// setupLogger: dev pretty console, prod JSON.
func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.IsProduction() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	// log.Ctx on a context without a request logger falls back to the global one
	zerolog.DefaultContextLogger = &log.Logger
}

// migrateUp runs the embedded migrations on a dedicated connection, since
// golang-migrate closes the handle it is given.
func migrateUp(cfg *config.Config) error {
	mdb, err := infra.NewDatabase(cfg)
	if err != nil {
		return err
	}
	sqlDB, err := mdb.DB()
	if err != nil {
		return err
	}
	m, err := infra.NewMigrator(sqlDB)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
