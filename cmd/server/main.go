package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/govgate-protocol/govgate/internal/api"
	apimw "github.com/govgate-protocol/govgate/internal/api/middleware"
	"github.com/govgate-protocol/govgate/internal/config"
	"github.com/govgate-protocol/govgate/internal/gate"
	"github.com/govgate-protocol/govgate/internal/ledger"
	"github.com/govgate-protocol/govgate/internal/metrics"
	"github.com/govgate-protocol/govgate/internal/pipeline"
	"github.com/govgate-protocol/govgate/internal/policy"
	"github.com/govgate-protocol/govgate/internal/policyengine"
	"github.com/govgate-protocol/govgate/internal/route"
	"github.com/govgate-protocol/govgate/internal/score"
	"github.com/govgate-protocol/govgate/internal/semantic"
	"github.com/govgate-protocol/govgate/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Load policy tables
	table := policy.Default()
	if cfg.PolicyFile != "" {
		var err error
		table, err = policy.Load(cfg.PolicyFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.PolicyFile).Msg("policy load failed")
		}
		logger.Info().Str("path", cfg.PolicyFile).Msg("policy tables loaded")
	}

	// Initialize durable store (PostgreSQL preferred, SQLite fallback)
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Info().Msg("using SQLite store")
	}
	defer db.Close()

	// Initialize Redis store for lane delivery
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Semantic estimator: embedding service with keyword fallback
	keyword := semantic.NewKeywordEstimator(table.HighImpactTerms)
	var estimator semantic.Estimator = keyword
	if cfg.EmbeddingURL != "" {
		estimator = semantic.NewClient(cfg.EmbeddingURL, keyword)
	}

	// Optional secondary policy engine
	var engine policyengine.Checker
	if cfg.PolicyEngineURL != "" {
		engine = policyengine.NewClient(cfg.PolicyEngineURL)
	}

	// Anchoring collaborator
	var anchorer ledger.Anchorer = ledger.NewLogAnchorer(logger)
	if cfg.AnchorURL != "" {
		anchorer = ledger.NewHTTPAnchorer(cfg.AnchorURL)
	}

	// Core subsystems
	validator := gate.New(cfg.ComplianceToken, table)
	scorer := score.New(table, estimator, score.NewHistoryMap(score.VolumeWindow))
	router := route.New(table)
	audit := ledger.New(ledger.Config{
		BatchSize:     cfg.AuditBatchSize,
		FlushInterval: cfg.AuditFlushInterval,
		QueueSize:     cfg.AuditQueueSize,
	}, anchorer, db, logger)

	// Recover the adaptive threshold from the durable store
	if value, ok, err := db.LoadThreshold(ctx); err != nil {
		logger.Error().Err(err).Msg("threshold recovery failed")
	} else if ok {
		router.Restore(value)
		logger.Info().Float64("threshold", value).Msg("adaptive threshold restored")
	}
	metrics.RoutingThreshold.Set(router.Threshold())

	var deliverer pipeline.Deliverer
	if redisStore != nil {
		deliverer = redisStore
	}
	pipe := pipeline.New(validator, scorer, router, audit, engine, deliverer, logger)

	// Audit worker: cancelled on shutdown after the HTTP server drains,
	// flushing the partial batch.
	auditCtx, stopAudit := context.WithCancel(context.Background())
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		audit.Run(auditCtx)
	}()

	// Create router
	handler := api.NewRouter(logger, pipe, db, redisStore, apimw.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting GovGate server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop the audit worker last so in-flight results are flushed.
	stopAudit()
	select {
	case <-auditDone:
	case <-time.After(10 * time.Second):
		logger.Error().Msg("audit worker did not flush in time")
	}

	logger.Info().Msg("server stopped")
}
