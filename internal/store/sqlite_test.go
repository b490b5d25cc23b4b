package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/govgate-protocol/govgate/internal/models"
)

func testSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "govgate.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func testBatch(committedAt time.Time) *models.MerkleBatch {
	return &models.MerkleBatch{
		ID:          uuid.New().String(),
		RootHash:    "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		EntryCount:  100,
		CommittedAt: committedAt,
	}
}

func TestSaveAndGetBatch(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	batch := testBatch(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	if err := s.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("batch not found after save")
	}
	if got.RootHash != batch.RootHash || got.EntryCount != batch.EntryCount {
		t.Fatalf("batch mismatch: %+v", got)
	}
	if got.Anchored {
		t.Fatal("fresh batch must not be anchored")
	}

	missing, err := s.GetBatch(ctx, "no-such-id")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for absent batch, got %+v err=%v", missing, err)
	}
}

func TestSaveBatchReplayIsNoop(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	batch := testBatch(time.Now().UTC())
	if err := s.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("save: %v", err)
	}
	// A crash-recovery replay must not error or duplicate.
	if err := s.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("replayed save: %v", err)
	}
	count, err := s.CountBatches(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 batch after replay, got %d", count)
	}
}

func TestMarkBatchAnchored(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	batch := testBatch(time.Now().UTC())
	if err := s.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.MarkBatchAnchored(ctx, batch.ID, "tx-123"); err != nil {
		t.Fatalf("mark anchored: %v", err)
	}

	got, err := s.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Anchored {
		t.Fatal("batch must be anchored after marking")
	}
}

func TestListBatchesNewestFirst(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := s.SaveBatch(ctx, testBatch(base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	batches, total, err := s.ListBatches(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	if len(batches) != 2 {
		t.Fatalf("expected page of 2, got %d", len(batches))
	}
	if batches[0].CommittedAt.Before(batches[1].CommittedAt) {
		t.Fatal("batches must be ordered newest first")
	}
}

func TestThresholdRoundTrip(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	// Nothing persisted yet.
	_, ok, err := s.LoadThreshold(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("expected no threshold before first save")
	}

	if err := s.SaveThreshold(ctx, 0.83); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Upsert replaces the single row.
	if err := s.SaveThreshold(ctx, 0.77); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	value, ok, err := s.LoadThreshold(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok || value != 0.77 {
		t.Fatalf("expected 0.77, got %f ok=%v", value, ok)
	}
}
