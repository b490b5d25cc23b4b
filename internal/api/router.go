package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/govgate-protocol/govgate/internal/api/middleware"
	"github.com/govgate-protocol/govgate/internal/handlers"
	"github.com/govgate-protocol/govgate/internal/pipeline"
	"github.com/govgate-protocol/govgate/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, pipe *pipeline.Pipeline, db store.DataStore, redisStore *store.RedisStore, rlCfg middleware.RateLimiterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // 64KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, rlCfg)
		r.Use(limiter.Middleware)
	}

	// CORS - agents call from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type", "X-GovGate-Agent", "X-GovGate-Tenant",
			"X-GovGate-PII-Authorized", "X-GovGate-Force-Deliberation",
		},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(pipe, db, redisStore, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Governance pipeline
	r.Post("/messages", h.Publish)
	r.Get("/inbox/{agent}", h.Inbox)
	r.Get("/review", h.ReviewQueue)
	r.Post("/feedback", h.Feedback)

	// Audit ledger
	r.Get("/audit/batches", h.ListBatches)
	r.Get("/audit/batches/{id}", h.BatchEntries)
	r.Post("/audit/verify", h.Verify)
	r.Post("/audit/flush", h.FlushBatch)

	return r
}
