package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/govgate-protocol/govgate/internal/api/middleware"
	"github.com/govgate-protocol/govgate/internal/gate"
	"github.com/govgate-protocol/govgate/internal/ledger"
	"github.com/govgate-protocol/govgate/internal/models"
	"github.com/govgate-protocol/govgate/internal/pipeline"
	"github.com/govgate-protocol/govgate/internal/policy"
	"github.com/govgate-protocol/govgate/internal/route"
	"github.com/govgate-protocol/govgate/internal/score"
	"github.com/govgate-protocol/govgate/internal/semantic"
	"github.com/govgate-protocol/govgate/internal/store"
)

const testToken = "test-constitutional-hash"

func testHandler(t *testing.T) *Handler {
	t.Helper()
	return testHandlerWith(t, nil)
}

func testHandlerWith(t *testing.T, db store.DataStore) *Handler {
	t.Helper()
	table := policy.Default()
	table.AgentRoles = map[string]string{
		"worker-1": "worker",
		"orch-1":   "orchestrator",
	}
	validator := gate.New(testToken, table)
	scorer := score.New(table, semantic.NewKeywordEstimator(table.HighImpactTerms), score.NewHistoryMap(score.VolumeWindow))
	router := route.New(table)
	audit := ledger.New(ledger.DefaultConfig(), ledger.NewLogAnchorer(zerolog.Nop()), nil, zerolog.Nop())
	pipe := pipeline.New(validator, scorer, router, audit, nil, nil, zerolog.Nop())
	return NewHandler(pipe, db, nil, zerolog.Nop())
}

// fakeStore is an in-memory DataStore standing in for the durable layer.
type fakeStore struct {
	batches      []models.MerkleBatch
	threshold    float64
	hasThreshold bool
}

func (s *fakeStore) Close() {}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) SaveBatch(_ context.Context, batch *models.MerkleBatch) error {
	s.batches = append(s.batches, *batch)
	return nil
}

func (s *fakeStore) MarkBatchAnchored(_ context.Context, batchID, transactionID string) error {
	for i := range s.batches {
		if s.batches[i].ID == batchID {
			s.batches[i].Anchored = true
		}
	}
	return nil
}

func (s *fakeStore) GetBatch(_ context.Context, batchID string) (*models.MerkleBatch, error) {
	for i := range s.batches {
		if s.batches[i].ID == batchID {
			b := s.batches[i]
			return &b, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListBatches(_ context.Context, limit, offset int) ([]models.MerkleBatch, int, error) {
	var out []models.MerkleBatch
	for i := len(s.batches) - 1; i >= 0; i-- {
		out = append(out, s.batches[i])
	}
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, len(s.batches), nil
}

func (s *fakeStore) CountBatches(context.Context) (int64, error) {
	return int64(len(s.batches)), nil
}

func (s *fakeStore) SaveThreshold(_ context.Context, value float64) error {
	s.threshold = value
	s.hasThreshold = true
	return nil
}

func (s *fakeStore) LoadThreshold(context.Context) (float64, bool, error) {
	return s.threshold, s.hasThreshold, nil
}

func publishBody(t *testing.T, overrides map[string]any) *bytes.Reader {
	t.Helper()
	body := map[string]any{
		"from_agent":       "worker-1",
		"to_agent":         "orch-1",
		"message_type":     "query",
		"priority":         3,
		"content":          map[string]any{"question": "queue depth"},
		"compliance_token": testToken,
	}
	for k, v := range overrides {
		body[k] = v
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(b)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestPublishAllowed(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/messages", publishBody(t, nil))
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp PublishResponse
	decodeJSON(t, rec, &resp)
	if !resp.Allowed {
		t.Fatalf("expected allowed, got violations %v", resp.Violations)
	}
	if resp.MessageID == "" || resp.DecisionID == "" || resp.AuditHash == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}
	if resp.Lane != models.LaneFast {
		t.Fatalf("low-impact query should ride the fast lane, got %q", resp.Lane)
	}
}

func TestPublishDeniedReturns403(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/messages",
		publishBody(t, map[string]any{"compliance_token": "forged"}))
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	var resp PublishResponse
	decodeJSON(t, rec, &resp)
	if resp.Allowed {
		t.Fatal("expected denial")
	}
	if len(resp.Violations) == 0 || !strings.Contains(resp.Violations[0], "HASH_MISMATCH") {
		t.Fatalf("expected HASH_MISMATCH, got %v", resp.Violations)
	}
	if resp.Lane != models.LaneDeliberation {
		t.Fatalf("denied message must deliberate, got %q", resp.Lane)
	}
}

func TestPublishInvalidJSON(t *testing.T) {
	h := testHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Publish(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPublishTenantHeaderEnforced(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/messages",
		publishBody(t, map[string]any{"tenant_id": "tenant-b"}))
	req.Header.Set("X-GovGate-Tenant", "tenant-a")
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cross-tenant message, got %d", rec.Code)
	}
}

func TestFeedbackAdjustsAndReports(t *testing.T) {
	h := testHandler(t)

	body, _ := json.Marshal(FeedbackRequest{DecisionID: "dec-1", Outcome: route.FalsePositive})
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Feedback(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp FeedbackResponse
	decodeJSON(t, rec, &resp)
	if diff := resp.Threshold - 0.81; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected threshold 0.81 after one false positive, got %f", resp.Threshold)
	}
}

func TestFeedbackInvalidOutcome(t *testing.T) {
	h := testHandler(t)

	body, _ := json.Marshal(FeedbackRequest{DecisionID: "dec-1", Outcome: "sideways"})
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Feedback(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestFeedbackRequiresDecisionID(t *testing.T) {
	h := testHandler(t)

	body, _ := json.Marshal(FeedbackRequest{Outcome: route.FalsePositive})
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Feedback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAuditFlushAndVerifyFlow(t *testing.T) {
	h := testHandler(t)

	// Publish a message, flush, then verify its proof end to end.
	req := httptest.NewRequest(http.MethodPost, "/messages", publishBody(t, nil))
	rec := httptest.NewRecorder()
	h.Publish(rec, req)
	var pub PublishResponse
	decodeJSON(t, rec, &pub)

	rec = httptest.NewRecorder()
	h.FlushBatch(rec, httptest.NewRequest(http.MethodPost, "/audit/flush", nil))
	var flush struct {
		Committed bool   `json:"committed"`
		RootHash  string `json:"root_hash"`
	}
	decodeJSON(t, rec, &flush)
	if !flush.Committed || flush.RootHash == "" {
		t.Fatalf("expected a committed root, got %+v", flush)
	}

	entry, ok := h.pipe.Ledger().FindEntry(pub.AuditHash)
	if !ok {
		t.Fatal("published decision missing from ledger")
	}

	body, _ := json.Marshal(VerifyRequest{
		EntryHash: entry.Hash,
		Proof:     entry.MerkleProof,
		Index:     entry.SequenceIndex,
		RootHash:  flush.RootHash,
	})
	rec = httptest.NewRecorder()
	h.Verify(rec, httptest.NewRequest(http.MethodPost, "/audit/verify", bytes.NewReader(body)))
	var verdict map[string]bool
	decodeJSON(t, rec, &verdict)
	if !verdict["valid"] {
		t.Fatal("inclusion proof rejected for a committed entry")
	}
}

func TestListBatchesNewestFirst(t *testing.T) {
	h := testHandler(t)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.Publish(rec, httptest.NewRequest(http.MethodPost, "/messages", publishBody(t, nil)))
		h.pipe.Ledger().ForceCommitBatch()
	}

	rec := httptest.NewRecorder()
	h.ListBatches(rec, httptest.NewRequest(http.MethodGet, "/audit/batches", nil))
	var resp struct {
		Batches []models.MerkleBatch `json:"batches"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(resp.Batches))
	}
	if resp.Batches[0].CommittedAt.Before(resp.Batches[1].CommittedAt) {
		t.Fatal("batches must be ordered newest first")
	}
}

func TestBatchEntriesNotFound(t *testing.T) {
	h := testHandler(t)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "no-such-batch")
	req := httptest.NewRequest(http.MethodGet, "/audit/batches/no-such-batch", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.BatchEntries(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPublishRateLimitedDenied(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/messages", publishBody(t, nil))
	req.Header.Set("X-GovGate-Agent", "worker-1")
	req = req.WithContext(middleware.WithRateLimited(req.Context()))
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for rate-limited publish, got %d", rec.Code)
	}
	var resp PublishResponse
	decodeJSON(t, rec, &resp)
	if !violationListed(resp.Violations, "RATE_LIMITED") {
		t.Fatalf("expected RATE_LIMITED violation, got %v", resp.Violations)
	}
}

func TestPublishOversizedPayloadDenied(t *testing.T) {
	h := testHandler(t)

	padding := strings.Repeat("a", maxGovernedPayload+1024)
	req := httptest.NewRequest(http.MethodPost, "/messages",
		publishBody(t, map[string]any{"content": map[string]any{"question": padding}}))
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for oversized publish, got %d", rec.Code)
	}
	var resp PublishResponse
	decodeJSON(t, rec, &resp)
	if !violationListed(resp.Violations, "PAYLOAD_TOO_LARGE") {
		t.Fatalf("expected PAYLOAD_TOO_LARGE violation, got %v", resp.Violations)
	}
}

func violationListed(violations []string, code string) bool {
	for _, v := range violations {
		if strings.Contains(v, code) {
			return true
		}
	}
	return false
}

func TestInboxWithoutLaneStore(t *testing.T) {
	h := testHandler(t)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("agent", "worker-1")
	req := httptest.NewRequest(http.MethodGet, "/inbox/worker-1", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.Inbox(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without lane delivery, got %d", rec.Code)
	}
}

func TestReviewQueueWithoutLaneStore(t *testing.T) {
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.ReviewQueue(rec, httptest.NewRequest(http.MethodGet, "/review", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without lane delivery, got %d", rec.Code)
	}
}

func TestListBatchesFromDurableStore(t *testing.T) {
	// Seed only the store: a fresh process has an empty in-memory
	// ledger, but persisted roots must still be listed.
	db := &fakeStore{batches: []models.MerkleBatch{
		{ID: "batch-old", RootHash: "aa", EntryCount: 3,
			CommittedAt: time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)},
		{ID: "batch-new", RootHash: "bb", EntryCount: 5,
			CommittedAt: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)},
	}}
	h := testHandlerWith(t, db)

	rec := httptest.NewRecorder()
	h.ListBatches(rec, httptest.NewRequest(http.MethodGet, "/audit/batches", nil))
	var resp struct {
		Batches []models.MerkleBatch `json:"batches"`
		Total   int                  `json:"total"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Total != 2 || len(resp.Batches) != 2 {
		t.Fatalf("expected both persisted batches, got %+v", resp)
	}
	if resp.Batches[0].ID != "batch-new" {
		t.Fatalf("batches must be ordered newest first, got %q", resp.Batches[0].ID)
	}
}

func TestBatchEntriesFromDurableStore(t *testing.T) {
	db := &fakeStore{batches: []models.MerkleBatch{
		{ID: "batch-1", RootHash: "cc", EntryCount: 4,
			CommittedAt: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)},
	}}
	h := testHandlerWith(t, db)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "batch-1")
	req := httptest.NewRequest(http.MethodGet, "/audit/batches/batch-1", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.BatchEntries(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a persisted batch, got %d", rec.Code)
	}
	var resp struct {
		BatchID    string              `json:"batch_id"`
		RootHash   string              `json:"root_hash"`
		EntryCount int                 `json:"entry_count"`
		Entries    []models.AuditEntry `json:"entries"`
	}
	decodeJSON(t, rec, &resp)
	if resp.RootHash != "cc" || resp.EntryCount != 4 {
		t.Fatalf("expected persisted batch metadata, got %+v", resp)
	}
	if len(resp.Entries) != 0 {
		t.Fatalf("proofs do not survive a restart, got %d entries", len(resp.Entries))
	}
}

func TestFeedbackPersistsThreshold(t *testing.T) {
	db := &fakeStore{}
	h := testHandlerWith(t, db)

	body, _ := json.Marshal(FeedbackRequest{DecisionID: "dec-1", Outcome: route.FalsePositive})
	rec := httptest.NewRecorder()
	h.Feedback(rec, httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !db.hasThreshold {
		t.Fatal("adjusted threshold was not persisted")
	}
	if diff := db.threshold - 0.81; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected persisted threshold 0.81, got %f", db.threshold)
	}
}
