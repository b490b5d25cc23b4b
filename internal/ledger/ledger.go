// Package ledger is the tamper-evident audit trail: validation results
// are hashed, batched into Merkle trees, and committed roots are handed
// to an external anchoring collaborator. Ingestion is decoupled from the
// request path by a bounded channel with an explicit drop policy.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/govgate-protocol/govgate/internal/metrics"
	"github.com/govgate-protocol/govgate/internal/models"
)

// Config sizes the ledger's batching and queueing behavior.
type Config struct {
	BatchSize     int           // entries per batch before auto-commit
	FlushInterval time.Duration // commit cadence for partial batches
	QueueSize     int           // bounded ingest channel capacity
}

// DefaultConfig matches the documented batching defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 10 * time.Second,
		QueueSize:     1024,
	}
}

// BatchStore persists committed batch metadata for recovery. Optional.
type BatchStore interface {
	SaveBatch(ctx context.Context, batch *models.MerkleBatch) error
	MarkBatchAnchored(ctx context.Context, batchID, transactionID string) error
}

// Ledger accumulates audit entries and commits Merkle batches.
type Ledger struct {
	cfg      Config
	ch       chan [32]byte
	anchorer Anchorer
	store    BatchStore
	logger   zerolog.Logger

	mu      sync.Mutex
	open    [][32]byte
	batches []models.MerkleBatch
	entries []models.AuditEntry
}

// New builds a Ledger. anchorer must not be nil; store may be.
func New(cfg Config, anchorer Anchorer, store BatchStore, logger zerolog.Logger) *Ledger {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	return &Ledger{
		cfg:      cfg,
		ch:       make(chan [32]byte, cfg.QueueSize),
		anchorer: anchorer,
		store:    store,
		logger:   logger,
	}
}

// EntryHash is the deterministic content hash of a result's canonical
// JSON serialization.
func EntryHash(res *models.ValidationResult) [32]byte {
	// Struct field order fixes the serialization; no maps on this path.
	b, _ := json.Marshal(res)
	return sha256.Sum256(b)
}

// Ingest hashes a result and enqueues it for batching. Never fails on the
// hot path: when the queue is full the entry is dropped with a logged
// metric, trading audit completeness for request-path availability.
func (l *Ledger) Ingest(res *models.ValidationResult) string {
	h := EntryHash(res)
	select {
	case l.ch <- h:
	default:
		metrics.AuditQueueDrops.Inc()
		l.logger.Warn().
			Str("entry_hash", EncodeHash(h)).
			Msg("audit queue full, entry dropped")
	}
	return EncodeHash(h)
}

// Run is the single consumer: it drains the ingest channel, auto-commits
// full batches, flushes partial batches on a timer, and flushes the
// remainder on shutdown so no absorbed entry is silently lost.
func (l *Ledger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case h := <-l.ch:
			l.absorb(h)
		case <-ticker.C:
			l.commitOpen()
		case <-ctx.Done():
			l.drain()
			l.commitOpen()
			return
		}
	}
}

func (l *Ledger) absorb(h [32]byte) {
	l.mu.Lock()
	l.open = append(l.open, h)
	full := len(l.open) >= l.cfg.BatchSize
	l.mu.Unlock()
	if full {
		l.commitOpen()
	}
}

// drain moves everything still queued into the open batch.
func (l *Ledger) drain() {
	for {
		select {
		case h := <-l.ch:
			l.mu.Lock()
			l.open = append(l.open, h)
			l.mu.Unlock()
		default:
			return
		}
	}
}

// ForceCommitBatch drains the queue and commits the open batch, returning
// the new root hash. With nothing open it is a no-op and returns the most
// recent committed root.
func (l *Ledger) ForceCommitBatch() string {
	l.drain()
	if root, ok := l.commitOpen(); ok {
		return root
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.batches) == 0 {
		return ""
	}
	return l.batches[len(l.batches)-1].RootHash
}

// commitOpen commits the current open batch, if any.
func (l *Ledger) commitOpen() (string, bool) {
	l.mu.Lock()
	if len(l.open) == 0 {
		l.mu.Unlock()
		return "", false
	}

	leaves := l.open
	l.open = nil

	root := merkleRoot(leaves)
	batch := models.MerkleBatch{
		ID:          uuid.New().String(),
		RootHash:    EncodeHash(root),
		EntryCount:  len(leaves),
		CommittedAt: time.Now().UTC(),
	}
	l.batches = append(l.batches, batch)

	for i, leaf := range leaves {
		proof := merkleProof(leaves, i)
		hexProof := make([]string, len(proof))
		for j, p := range proof {
			hexProof[j] = EncodeHash(p)
		}
		l.entries = append(l.entries, models.AuditEntry{
			Hash:          EncodeHash(leaf),
			BatchID:       batch.ID,
			SequenceIndex: i,
			MerkleProof:   hexProof,
		})
	}
	l.mu.Unlock()

	metrics.AuditBatchesCommitted.Inc()
	metrics.AuditEntriesCommitted.Add(float64(batch.EntryCount))
	l.logger.Info().
		Str("batch_id", batch.ID).
		Str("root_hash", batch.RootHash).
		Int("entry_count", batch.EntryCount).
		Msg("merkle batch committed")

	l.persist(batch)
	l.anchor(batch)

	return batch.RootHash, true
}

func (l *Ledger) persist(batch models.MerkleBatch) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.SaveBatch(ctx, &batch); err != nil {
		l.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("batch persistence failed")
	}
}

// anchor hands the commit to the external collaborator without blocking
// the commit loop. An unreachable anchor leaves the batch locally
// verifiable; the failure is telemetry, not an error.
func (l *Ledger) anchor(batch models.MerkleBatch) {
	payload := models.AnchorPayload{
		RootHash:   batch.RootHash,
		BatchID:    batch.ID,
		EntryCount: batch.EntryCount,
		Timestamp:  batch.CommittedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		txID, err := l.anchorer.Anchor(ctx, payload)
		if err != nil {
			metrics.AnchorFailures.Inc()
			l.logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("anchoring failed")
			return
		}

		l.mu.Lock()
		for i := range l.batches {
			if l.batches[i].ID == batch.ID {
				l.batches[i].Anchored = true
				break
			}
		}
		l.mu.Unlock()

		if l.store != nil {
			if err := l.store.MarkBatchAnchored(ctx, batch.ID, txID); err != nil {
				l.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("anchor persistence failed")
			}
		}
		l.logger.Info().
			Str("batch_id", batch.ID).
			Str("transaction_id", txID).
			Msg("batch anchored")
	}()
}

// VerifyEntry recomputes the proof path and compares it to the supplied
// root. False on any malformed input or mismatch.
func (l *Ledger) VerifyEntry(entryHash string, proof []string, index int, rootHash string) bool {
	leaf, ok := DecodeHash(entryHash)
	if !ok {
		return false
	}
	root, ok := DecodeHash(rootHash)
	if !ok {
		return false
	}
	siblings := make([][32]byte, len(proof))
	for i, p := range proof {
		s, ok := DecodeHash(p)
		if !ok {
			return false
		}
		siblings[i] = s
	}
	return VerifyProof(leaf, siblings, index, root)
}

// Batches returns the committed batches, newest last.
func (l *Ledger) Batches() []models.MerkleBatch {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.MerkleBatch, len(l.batches))
	copy(out, l.batches)
	return out
}

// Entries returns the committed entries for one batch, in sequence order.
func (l *Ledger) Entries(batchID string) []models.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range l.entries {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out
}

// FindEntry returns the most recently committed entry with the given
// hash. Re-ingested identical results produce distinct entries, so the
// same hash may appear more than once; the newest wins.
func (l *Ledger) FindEntry(entryHash string) (models.AuditEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Hash == entryHash {
			return l.entries[i], true
		}
	}
	return models.AuditEntry{}, false
}

// QueueDepth reports the current ingest backlog, for health reporting.
func (l *Ledger) QueueDepth() int {
	return len(l.ch)
}
