// Package route classifies scored messages into the fast lane or the
// deliberation lane and adapts its threshold online from reviewer feedback.
package route

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/govgate-protocol/govgate/internal/models"
	"github.com/govgate-protocol/govgate/internal/policy"
)

// Timeouts per lane, in seconds.
const (
	TimeoutFast         = 30
	TimeoutDeliberation = 300
	TimeoutCriticalVote = 600
)

// Review and vote trip points. These are fixed; only the lane threshold
// adapts.
const (
	humanReviewScore = 0.90
	multiVoteScore   = 0.95
)

// Outcome is reviewer feedback on a past deliberation decision.
type Outcome string

const (
	TruePositive  Outcome = "true_positive"
	FalsePositive Outcome = "false_positive"
	FalseNegative Outcome = "false_negative"
	TrueNegative  Outcome = "true_negative"
)

// ErrInvalidFeedback rejects malformed outcomes without touching the
// threshold.
var ErrInvalidFeedback = errors.New("invalid feedback outcome")

// Overrides are the score-independent deliberation triggers.
type Overrides struct {
	MessageType           models.MessageType
	Action                string
	Forced                bool
	ConstitutionalRisk    bool
	CrossTenantEscalation bool
}

// Router holds the adaptive threshold as a single atomic cell. The cell
// carries the unclamped running value so a feedback batch always folds to
// initial + N*step_up - M*step_down regardless of arrival order; reads
// clamp to bounds. Decisions made against a momentarily stale threshold
// are acceptable.
type Router struct {
	threshold atomic.Uint64 // math.Float64bits, unclamped
	cfg       policy.Threshold
	table     *policy.Table
}

// New builds a Router seeded with the configured initial threshold.
func New(table *policy.Table) *Router {
	r := &Router{cfg: table.Threshold, table: table}
	r.threshold.Store(math.Float64bits(table.Threshold.Initial))
	return r
}

// Threshold returns the current routing threshold, clamped to bounds.
func (r *Router) Threshold() float64 {
	return r.clampThreshold(math.Float64frombits(r.threshold.Load()))
}

// Restore sets the threshold from persisted state. Out-of-bounds values
// are stored as-is; reads clamp.
func (r *Router) Restore(value float64) {
	r.threshold.Store(math.Float64bits(value))
}

// Route classifies one scored message. Routing never fails.
func (r *Router) Route(impactScore float64, ov Overrides) models.RoutingDecision {
	threshold := r.Threshold()

	var reasons []string
	// A score landing exactly on the threshold counts as exceeding it:
	// ties favor deliberation.
	if impactScore >= threshold {
		reasons = append(reasons, "impact_score_at_or_above_threshold")
	}
	if r.table.AlwaysDeliberate[string(ov.MessageType)] {
		reasons = append(reasons, "always_deliberate_message_type")
	}
	if ov.Action != "" && r.table.AlwaysDeliberate[ov.Action] {
		reasons = append(reasons, "always_deliberate_action")
	}
	if ov.Forced {
		reasons = append(reasons, "forced_deliberation")
	}
	if ov.ConstitutionalRisk {
		reasons = append(reasons, "constitutional_risk")
	}
	if ov.CrossTenantEscalation {
		reasons = append(reasons, "cross_tenant_escalation")
	}

	deliberate := len(reasons) > 0
	humanReview := impactScore >= humanReviewScore || ov.ConstitutionalRisk
	multiVote := impactScore >= multiVoteScore ||
		(ov.Action != "" && r.table.AlwaysVote[ov.Action])

	lane := models.LaneFast
	timeout := TimeoutFast
	if deliberate {
		lane = models.LaneDeliberation
		timeout = TimeoutDeliberation
		if impactScore >= multiVoteScore {
			timeout = TimeoutCriticalVote
		}
	}

	return models.RoutingDecision{
		Lane:                   lane,
		EffectiveImpactScore:   impactScore,
		RequiresHumanReview:    humanReview,
		RequiresMultiAgentVote: multiVote,
		TimeoutSeconds:         timeout,
		ActiveRiskFactors:      reasons,
	}
}

// RecordFeedback adjusts the threshold from a reviewed outcome. False
// positives (needless deliberation) nudge it up; false negatives (missed
// deliberation) nudge it down. The CAS loop adds the raw delta, so
// concurrent feedback converges to the same value regardless of order,
// even when intermediate values cross a bound. Returns the clamped
// effective threshold.
func (r *Router) RecordFeedback(outcome Outcome) (float64, error) {
	var delta float64
	switch outcome {
	case FalsePositive:
		delta = r.cfg.StepUp
	case FalseNegative:
		delta = -r.cfg.StepDown
	case TruePositive, TrueNegative:
		return r.Threshold(), nil
	default:
		return r.Threshold(), ErrInvalidFeedback
	}

	for {
		oldBits := r.threshold.Load()
		next := math.Float64frombits(oldBits) + delta
		if r.threshold.CompareAndSwap(oldBits, math.Float64bits(next)) {
			return r.clampThreshold(next), nil
		}
	}
}

func (r *Router) clampThreshold(v float64) float64 {
	if v < r.cfg.Min {
		return r.cfg.Min
	}
	if v > r.cfg.Max {
		return r.cfg.Max
	}
	return v
}
