// Package score computes the multi-factor impact score that drives lane
// routing. Scoring never fails: unknown data degrades to a conservative
// default factor rather than raising an error.
package score

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/govgate-protocol/govgate/internal/models"
	"github.com/govgate-protocol/govgate/internal/policy"
	"github.com/govgate-protocol/govgate/internal/semantic"
)

// defaultFactor is the conservative stand-in for factors that cannot be
// computed from the available data.
const defaultFactor = 0.5

// VolumeWindow is the trailing window for the volume factor.
const VolumeWindow = 60 * time.Second

// Breakdown is the scored result with per-factor detail for auditing.
type Breakdown struct {
	Total          float64            `json:"total"`
	Factors        map[string]float64 `json:"factors"`
	SemanticSource semantic.Source    `json:"semantic_source"`
}

// Scorer combines seven weighted factors into a [0,1] impact score.
type Scorer struct {
	table   *policy.Table
	sem     semantic.Estimator
	history *HistoryMap
	now     func() time.Time
}

// New builds a Scorer over the policy table, semantic estimator, and the
// shared per-agent history map.
func New(table *policy.Table, sem semantic.Estimator, history *HistoryMap) *Scorer {
	return &Scorer{
		table:   table,
		sem:     sem,
		history: history,
		now:     time.Now,
	}
}

// History exposes the shared agent history map.
func (s *Scorer) History() *HistoryMap {
	return s.history
}

// Score computes the weighted impact score for msg and appends the
// outcome to the sender's rolling history. The result is always clamped
// to [0,1].
func (s *Scorer) Score(ctx context.Context, msg *models.Message) Breakdown {
	now := s.now()
	w := s.table.Weights

	count, histMean, hasMean := s.history.Snapshot(msg.FromAgent, now)

	text := contentText(msg.Content)
	est := s.sem.Estimate(ctx, text)

	semanticF := est.Score
	permissionF := s.permissionFactor(msg)
	volumeF := volumeFactor(count+1, s.table.BurstThreshold)
	contextF := s.contextFactor(msg, now)
	driftF := driftFactor(semanticF, permissionF, histMean, hasMean)
	priorityF := priorityFactor(msg.Priority)
	typeF := typeFactor(msg.Type)

	total := clamp(w.Semantic*semanticF +
		w.Permission*permissionF +
		w.Volume*volumeF +
		w.Context*contextF +
		w.Drift*driftF +
		w.Priority*priorityF +
		w.Type*typeF)

	s.history.Record(msg.FromAgent, now, total)

	return Breakdown{
		Total: total,
		Factors: map[string]float64{
			"semantic":   semanticF,
			"permission": permissionF,
			"volume":     volumeF,
			"context":    contextF,
			"drift":      driftF,
			"priority":   priorityF,
			"type":       typeF,
		},
		SemanticSource: est.Source,
	}
}

// permissionFactor maps the requested capability to a risk tier. Messages
// that request nothing score low; unknown capabilities fall back to the
// conservative default.
func (s *Scorer) permissionFactor(msg *models.Message) float64 {
	action := msg.Action()
	if action == "" {
		return 0.1
	}
	lower := strings.ToLower(action)
	if risk, ok := s.table.CapabilityRisk[lower]; ok {
		return risk
	}
	// Capability names are often verb_noun; match on the verb. The highest
	// matching tier wins so the result is independent of map order.
	best := -1.0
	for name, risk := range s.table.CapabilityRisk {
		if strings.HasPrefix(lower, name) && risk > best {
			best = risk
		}
	}
	if best >= 0 {
		return best
	}
	return defaultFactor
}

// volumeFactor is the in-window request count over the burst threshold,
// capped at 1.0.
func volumeFactor(count, burst int) float64 {
	if burst <= 0 {
		return defaultFactor
	}
	f := float64(count) / float64(burst)
	if f > 1 {
		return 1
	}
	return f
}

// contextFactor elevates risk off-hours and when numeric payload fields
// exceed their configured thresholds.
func (s *Scorer) contextFactor(msg *models.Message, now time.Time) float64 {
	var f float64
	if s.table.OffHours(now.UTC().Hour()) {
		f += 0.5
	}
	for field, limit := range s.table.AmountThresholds {
		if v, ok := numericField(msg.Content, field); ok && v > limit {
			f += 0.5
			break
		}
	}
	return clamp(f)
}

// driftFactor is the distance between the current semantic+permission
// risk and the agent's historical mean. No history means no baseline, so
// the factor degrades to the conservative default.
func driftFactor(semanticF, permissionF, histMean float64, hasMean bool) float64 {
	if !hasMean {
		return defaultFactor
	}
	current := (semanticF + permissionF) / 2
	d := current - histMean
	if d < 0 {
		d = -d
	}
	return clamp(d)
}

func priorityFactor(p models.Priority) float64 {
	switch p {
	case models.PriorityCritical:
		return 1.0
	case models.PriorityHigh:
		return 0.7
	case models.PriorityNormal:
		return 0.4
	case models.PriorityLow:
		return 0.1
	default:
		return defaultFactor
	}
}

func typeFactor(t models.MessageType) float64 {
	switch t {
	case models.TypeGovernanceRequest, models.TypeGovernanceResponse,
		models.TypeConstitutionalValidation:
		return 0.9
	case models.TypeCommand:
		return 0.7
	case models.TypeTaskRequest, models.TypeTaskResponse:
		return 0.5
	case models.TypeQuery, models.TypeResponse, models.TypeEvent,
		models.TypeNotification:
		return 0.3
	case models.TypeHeartbeat:
		return 0.05
	default:
		return defaultFactor
	}
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// numericField reads a numeric payload field regardless of the JSON
// decoding representation.
func numericField(content map[string]any, field string) (float64, bool) {
	if content == nil {
		return 0, false
	}
	switch v := content[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// contentText renders payload values into one string for the semantic
// estimator.
func contentText(content map[string]any) string {
	if len(content) == 0 {
		return ""
	}
	var b strings.Builder
	for k, v := range content {
		b.WriteString(k)
		b.WriteByte(' ')
		fmt.Fprintf(&b, "%v ", v)
	}
	return b.String()
}
