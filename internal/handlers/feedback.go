package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/govgate-protocol/govgate/internal/metrics"
	"github.com/govgate-protocol/govgate/internal/route"
)

// FeedbackRequest reports the real-world outcome of a past decision.
type FeedbackRequest struct {
	DecisionID string        `json:"decision_id"`
	Outcome    route.Outcome `json:"outcome"`
}

// FeedbackResponse returns the threshold after the adjustment.
type FeedbackResponse struct {
	DecisionID string  `json:"decision_id"`
	Threshold  float64 `json:"threshold"`
	Resolved   bool    `json:"resolved"`
}

// Feedback records reviewer feedback and nudges the adaptive threshold.
// The updated threshold is persisted so it survives restarts.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DecisionID == "" {
		h.Error(w, http.StatusBadRequest, "decision_id is required")
		return
	}

	threshold, err := h.pipe.Router().RecordFeedback(req.Outcome)
	if err != nil {
		if errors.Is(err, route.ErrInvalidFeedback) {
			h.Error(w, http.StatusUnprocessableEntity, "invalid feedback outcome")
			return
		}
		h.Error(w, http.StatusInternalServerError, "feedback failed")
		return
	}

	metrics.FeedbackRecorded.WithLabelValues(string(req.Outcome)).Inc()
	metrics.RoutingThreshold.Set(threshold)

	if h.db != nil {
		if err := h.db.SaveThreshold(r.Context(), threshold); err != nil {
			h.logger.Error().Err(err).Msg("threshold persistence failed")
		}
	}

	// Feedback implies the deliberation item was reviewed; clear it.
	resolved := false
	if h.redis != nil {
		var err error
		resolved, err = h.redis.ResolveReview(r.Context(), req.DecisionID)
		if err != nil {
			h.logger.Warn().Err(err).Str("decision_id", req.DecisionID).Msg("review resolution failed")
		}
	}

	h.JSON(w, http.StatusOK, FeedbackResponse{
		DecisionID: req.DecisionID,
		Threshold:  threshold,
		Resolved:   resolved,
	})
}
