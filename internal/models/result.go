package models

import "time"

// Lane is the terminal routing classification for a message.
type Lane string

const (
	LaneFast         Lane = "fast"
	LaneDeliberation Lane = "deliberation"
)

// ValidationResult is the per-message outcome of the governance pipeline.
// Immutable after creation; consumed by the caller and the audit ledger.
type ValidationResult struct {
	MessageID   string    `json:"message_id"`
	DecisionID  string    `json:"decision_id"` // ULID, used for feedback correlation
	Allowed     bool      `json:"allowed"`
	Violations  []string  `json:"violations,omitempty"`
	ImpactScore float64   `json:"impact_score"`
	Lane        Lane      `json:"lane"`
	Timestamp   time.Time `json:"timestamp"`

	// Routing is the audit projection of the routing decision.
	Routing *RoutingDecision `json:"routing,omitempty"`
}

// RoutingDecision describes how a scored message is dispatched.
// Derived per message; embedded in the ValidationResult, never stored alone.
type RoutingDecision struct {
	Lane                   Lane     `json:"lane"`
	EffectiveImpactScore   float64  `json:"effective_impact_score"`
	RequiresHumanReview    bool     `json:"requires_human_review"`
	RequiresMultiAgentVote bool     `json:"requires_multi_agent_vote"`
	TimeoutSeconds         int      `json:"timeout_seconds"`
	ActiveRiskFactors      []string `json:"active_risk_factors,omitempty"`
}
