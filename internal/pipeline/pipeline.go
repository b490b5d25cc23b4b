// Package pipeline sequences the governance gate, impact scorer, adaptive
// router, and lane delivery for every inbound message, with a
// fire-and-forget branch into the audit ledger.
package pipeline

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/govgate-protocol/govgate/internal/gate"
	"github.com/govgate-protocol/govgate/internal/ledger"
	"github.com/govgate-protocol/govgate/internal/metrics"
	"github.com/govgate-protocol/govgate/internal/models"
	"github.com/govgate-protocol/govgate/internal/policyengine"
	"github.com/govgate-protocol/govgate/internal/route"
	"github.com/govgate-protocol/govgate/internal/score"
	"github.com/govgate-protocol/govgate/internal/semantic"
)

// Deliverer dispatches a processed message to its lane. The fast lane is
// direct delivery; the deliberation lane is the review queue.
type Deliverer interface {
	DeliverFast(ctx context.Context, msg *models.Message, res *models.ValidationResult) error
	EnqueueDeliberation(ctx context.Context, msg *models.Message, res *models.ValidationResult) error
}

// Pipeline wires the four governance subsystems. The engine checker and
// deliverer are optional; the rest are required.
type Pipeline struct {
	validator *gate.Validator
	scorer    *score.Scorer
	router    *route.Router
	audit     *ledger.Ledger
	engine    policyengine.Checker
	deliverer Deliverer
	logger    zerolog.Logger
}

// New builds a Pipeline.
func New(validator *gate.Validator, scorer *score.Scorer, router *route.Router, audit *ledger.Ledger, engine policyengine.Checker, deliverer Deliverer, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		validator: validator,
		scorer:    scorer,
		router:    router,
		audit:     audit,
		engine:    engine,
		deliverer: deliverer,
		logger:    logger,
	}
}

// Router exposes the adaptive router for feedback wiring.
func (p *Pipeline) Router() *route.Router {
	return p.router
}

// Ledger exposes the audit ledger for verification endpoints.
func (p *Pipeline) Ledger() *ledger.Ledger {
	return p.audit
}

// Process validates, scores, routes, delivers, and audits one message.
// A denied message yields Allowed=false with the full violation list; the
// returned error is reserved for delivery infrastructure failures.
func (p *Pipeline) Process(ctx context.Context, msg *models.Message, caller gate.Caller) (*models.ValidationResult, error) {
	start := time.Now()

	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}

	var violations []string
	var constitutionalRisk, crossTenant bool
	if err := p.validator.Validate(msg, caller); err != nil {
		denial := err.(*gate.Denial)
		violations = denial.Reasons()
		for _, v := range denial.Violations {
			metrics.MessagesRejected.WithLabelValues(string(v.Code)).Inc()
			switch v.Code {
			case gate.CodeHashMismatch, gate.CodeUnsafeContent:
				constitutionalRisk = true
			case gate.CodeTenantIsolationViolation:
				crossTenant = true
			}
		}
	}

	// Secondary check: layered on the gate, skipped on engine outage.
	if p.engine != nil && len(violations) == 0 {
		decision, err := p.engine.Check(ctx, msg, caller.TenantID)
		switch {
		case err != nil:
			metrics.PolicyEngineDegradations.Inc()
			p.logger.Warn().Err(err).Str("message_id", msg.ID).
				Msg("policy engine unavailable, continuing without secondary check")
		case !decision.Allow:
			violations = append(violations, decision.Violations...)
			if len(decision.Violations) == 0 {
				violations = append(violations, "policy engine denied the message")
			}
		}
	}

	breakdown := p.scorer.Score(ctx, msg)
	if breakdown.SemanticSource == semantic.SourceKeyword {
		metrics.SemanticFallbacks.Inc()
	}

	denied := len(violations) > 0
	routing := p.router.Route(breakdown.Total, route.Overrides{
		MessageType: msg.Type,
		Action:      msg.Action(),
		// Denied messages never ride the fast lane.
		Forced:                caller.ForceDeliberate || denied,
		ConstitutionalRisk:    constitutionalRisk,
		CrossTenantEscalation: crossTenant,
	})

	res := &models.ValidationResult{
		MessageID:   msg.ID,
		DecisionID:  ulid.Make().String(),
		Allowed:     !denied,
		Violations:  violations,
		ImpactScore: breakdown.Total,
		Lane:        routing.Lane,
		Timestamp:   time.Now().UTC(),
		Routing:     &routing,
	}

	// Audit is fire-and-forget; it must never block the critical path.
	p.audit.Ingest(res)

	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	metrics.ImpactScores.Observe(breakdown.Total)
	metrics.MessagesProcessed.WithLabelValues(string(routing.Lane), boolLabel(res.Allowed)).Inc()

	p.logger.Info().
		Str("message_id", msg.ID).
		Str("decision_id", res.DecisionID).
		Str("from_agent", msg.FromAgent).
		Str("lane", string(routing.Lane)).
		Float64("impact_score", breakdown.Total).
		Bool("allowed", res.Allowed).
		Msg("message processed")

	if err := p.deliver(ctx, msg, res); err != nil {
		return res, err
	}
	return res, nil
}

func (p *Pipeline) deliver(ctx context.Context, msg *models.Message, res *models.ValidationResult) error {
	if p.deliverer == nil {
		return nil
	}
	if res.Allowed && res.Lane == models.LaneFast {
		return p.deliverer.DeliverFast(ctx, msg, res)
	}
	// Denied and deliberation-routed messages both land in the review
	// queue so governance can inspect them.
	return p.deliverer.EnqueueDeliberation(ctx, msg, res)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
