package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govgate_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "govgate_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govgate_messages_processed_total",
			Help: "Total messages through the governance pipeline",
		},
		[]string{"lane", "allowed"},
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govgate_messages_rejected_total",
			Help: "Total rejections by violation code",
		},
		[]string{"code"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "govgate_pipeline_duration_seconds",
			Help:    "Validate+score+route latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	ImpactScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "govgate_impact_scores",
			Help:    "Distribution of computed impact scores",
			Buckets: []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, .95, 1},
		},
	)

	SemanticFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "govgate_semantic_fallbacks_total",
			Help: "Scores computed via keyword fallback instead of embeddings",
		},
	)

	PolicyEngineDegradations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "govgate_policy_engine_degradations_total",
			Help: "Secondary policy-engine checks skipped due to engine outage",
		},
	)

	// Router metrics
	RoutingThreshold = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "govgate_routing_threshold",
			Help: "Current adaptive deliberation threshold",
		},
	)

	FeedbackRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govgate_feedback_recorded_total",
			Help: "Total routing feedback by outcome",
		},
		[]string{"outcome"},
	)

	// Audit ledger metrics
	AuditQueueDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "govgate_audit_queue_drops_total",
			Help: "Audit entries dropped because the ingest queue was full",
		},
	)

	AuditBatchesCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "govgate_audit_batches_committed_total",
			Help: "Total committed Merkle batches",
		},
	)

	AuditEntriesCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "govgate_audit_entries_committed_total",
			Help: "Total audit entries committed into batches",
		},
	)

	AnchorFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "govgate_anchor_failures_total",
			Help: "Failed anchor hand-offs (batches remain locally verifiable)",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govgate_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govgate_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
