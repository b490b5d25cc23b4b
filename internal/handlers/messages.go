package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/govgate-protocol/govgate/internal/api/middleware"
	"github.com/govgate-protocol/govgate/internal/gate"
	"github.com/govgate-protocol/govgate/internal/ledger"
	"github.com/govgate-protocol/govgate/internal/models"
)

// maxGovernedPayload is the governance size cap. Submissions above it
// are denied PAYLOAD_TOO_LARGE and audited; the transport hard cap
// still drops unparseable extremes before they reach the decoder.
const maxGovernedPayload = 32 * 1024

// PublishRequest is an inbound message submission.
type PublishRequest struct {
	ConversationID  string             `json:"conversation_id,omitempty"`
	FromAgent       string             `json:"from_agent"`
	ToAgent         string             `json:"to_agent"`
	MessageType     models.MessageType `json:"message_type"`
	Priority        *models.Priority   `json:"priority,omitempty"`
	Content         map[string]any     `json:"content"`
	TenantID        string             `json:"tenant_id,omitempty"`
	ExpiresAt       *time.Time         `json:"expires_at,omitempty"`
	ComplianceToken string             `json:"compliance_token"`
}

// PublishResponse reports the governance decision for a submission. The
// decision id correlates later feedback.
type PublishResponse struct {
	MessageID   string                  `json:"message_id"`
	DecisionID  string                  `json:"decision_id"`
	Allowed     bool                    `json:"allowed"`
	Violations  []string                `json:"violations,omitempty"`
	ImpactScore float64                 `json:"impact_score"`
	Lane        models.Lane             `json:"lane"`
	Routing     *models.RoutingDecision `json:"routing,omitempty"`
	AuditHash   string                  `json:"audit_hash,omitempty"`
}

// Publish runs one message through the governance pipeline.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	priority := models.PriorityNormal
	if req.Priority != nil {
		priority = *req.Priority
	}

	now := time.Now().UTC()
	msg := &models.Message{
		ConversationID:  req.ConversationID,
		FromAgent:       req.FromAgent,
		ToAgent:         req.ToAgent,
		Type:            req.MessageType,
		Priority:        priority,
		Content:         req.Content,
		TenantID:        req.TenantID,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       req.ExpiresAt,
		ComplianceToken: req.ComplianceToken,
	}

	caller := gate.Caller{
		TenantID:        r.Header.Get("X-GovGate-Tenant"),
		MultiTenant:     r.Header.Get("X-GovGate-Tenant") != "",
		PIIAuthorized:   r.Header.Get("X-GovGate-PII-Authorized") == "true",
		ForceDeliberate: r.Header.Get("X-GovGate-Force-Deliberation") == "true",
		RateLimited:     middleware.IsRateLimited(r.Context()),
		PayloadTooLarge: r.ContentLength > maxGovernedPayload,
	}

	res, err := h.pipe.Process(r.Context(), msg, caller)
	if err != nil {
		h.logger.Error().Err(err).Str("message_id", msg.ID).Msg("lane delivery failed")
		h.Error(w, http.StatusInternalServerError, "delivery failed")
		return
	}

	resp := PublishResponse{
		MessageID:   res.MessageID,
		DecisionID:  res.DecisionID,
		Allowed:     res.Allowed,
		Violations:  res.Violations,
		ImpactScore: res.ImpactScore,
		Lane:        res.Lane,
		Routing:     res.Routing,
		AuditHash:   ledger.EncodeHash(ledger.EntryHash(res)),
	}

	status := http.StatusCreated
	if !res.Allowed {
		status = http.StatusForbidden
	}
	h.JSON(w, status, resp)
}

// Inbox returns an agent's fast-lane deliveries.
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent")
	if agentID == "" {
		h.Error(w, http.StatusBadRequest, "agent is required")
		return
	}
	if h.redis == nil {
		h.Error(w, http.StatusServiceUnavailable, "lane delivery not configured")
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), 50, 200)
	deliveries, err := h.redis.GetInbox(r.Context(), agentID, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch inbox")
		return
	}

	h.JSON(w, http.StatusOK, map[string]any{
		"agent":      agentID,
		"deliveries": deliveries,
	})
}

// ReviewQueue returns pending deliberation items, highest risk first.
func (h *Handler) ReviewQueue(w http.ResponseWriter, r *http.Request) {
	if h.redis == nil {
		h.Error(w, http.StatusServiceUnavailable, "lane delivery not configured")
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), 50, 200)
	items, err := h.redis.GetReviewQueue(r.Context(), limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch review queue")
		return
	}

	h.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseLimit(raw string, def, max int) int {
	limit := def
	if raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
