package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/govgate-protocol/govgate/internal/models"
)

// VerifyRequest asks whether an entry belongs to a committed root.
type VerifyRequest struct {
	EntryHash string   `json:"entry_hash"`
	Proof     []string `json:"proof"`
	Index     int      `json:"sequence_index"`
	RootHash  string   `json:"root_hash"`
}

// ListBatches returns committed Merkle batches, newest first. The
// durable store is authoritative so listings survive restarts; the
// in-memory ledger serves store-less deployments.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 200)

	if h.db != nil {
		batches, total, err := h.db.ListBatches(r.Context(), limit, 0)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to list batches")
			return
		}
		h.JSON(w, http.StatusOK, map[string]any{
			"batches": batches,
			"total":   total,
		})
		return
	}

	batches := h.pipe.Ledger().Batches()
	total := len(batches)

	// Newest first, matching the durable store's ordering.
	for i, j := 0, len(batches)-1; i < j; i, j = i+1, j-1 {
		batches[i], batches[j] = batches[j], batches[i]
	}
	if len(batches) > limit {
		batches = batches[:limit]
	}

	h.JSON(w, http.StatusOK, map[string]any{
		"batches": batches,
		"total":   total,
	})
}

// BatchEntries returns one batch's entries with their inclusion proofs.
// Proofs live with the committing process; after a restart only the
// durable root survives, so a persisted batch answers with its metadata
// and no entries.
func (h *Handler) BatchEntries(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	entries := h.pipe.Ledger().Entries(batchID)
	if entries == nil {
		if h.db != nil {
			batch, err := h.db.GetBatch(r.Context(), batchID)
			if err == nil && batch != nil {
				h.JSON(w, http.StatusOK, map[string]any{
					"batch_id":    batch.ID,
					"root_hash":   batch.RootHash,
					"entry_count": batch.EntryCount,
					"entries":     []models.AuditEntry{},
				})
				return
			}
		}
		h.Error(w, http.StatusNotFound, "batch not found")
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"batch_id": batchID,
		"entries":  entries,
	})
}

// Verify checks an inclusion proof against a committed root. A failed
// verification is a result, not an error; ingestion continues regardless.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	valid := h.pipe.Ledger().VerifyEntry(req.EntryHash, req.Proof, req.Index, req.RootHash)
	h.JSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// FlushBatch force-commits the open batch.
func (h *Handler) FlushBatch(w http.ResponseWriter, r *http.Request) {
	root := h.pipe.Ledger().ForceCommitBatch()
	if root == "" {
		h.JSON(w, http.StatusOK, map[string]any{"committed": false})
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{"committed": true, "root_hash": root})
}
