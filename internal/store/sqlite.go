package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/govgate-protocol/govgate/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the single-node
// alternative to PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/govgate.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/govgate.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS merkle_batches (
		id TEXT PRIMARY KEY,
		root_hash TEXT NOT NULL,
		entry_count INTEGER NOT NULL,
		committed_at DATETIME NOT NULL,
		anchored INTEGER NOT NULL DEFAULT 0,
		anchor_transaction_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_merkle_batches_committed_at ON merkle_batches(committed_at);

	CREATE TABLE IF NOT EXISTS router_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		threshold REAL NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveBatch records a committed batch; replayed saves are no-ops.
func (s *SQLiteStore) SaveBatch(ctx context.Context, batch *models.MerkleBatch) error {
	anchored := 0
	if batch.Anchored {
		anchored = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO merkle_batches (id, root_hash, entry_count, committed_at, anchored)
		VALUES (?, ?, ?, ?, ?)
	`, batch.ID, batch.RootHash, batch.EntryCount, batch.CommittedAt, anchored)
	return err
}

// MarkBatchAnchored records the anchoring collaborator's transaction id.
func (s *SQLiteStore) MarkBatchAnchored(ctx context.Context, batchID, transactionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE merkle_batches SET anchored = 1, anchor_transaction_id = ? WHERE id = ?
	`, transactionID, batchID)
	return err
}

// GetBatch retrieves a batch by id, nil when absent.
func (s *SQLiteStore) GetBatch(ctx context.Context, batchID string) (*models.MerkleBatch, error) {
	batch := &models.MerkleBatch{}
	var anchored int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, root_hash, entry_count, committed_at, anchored
		FROM merkle_batches WHERE id = ?
	`, batchID).Scan(
		&batch.ID,
		&batch.RootHash,
		&batch.EntryCount,
		&batch.CommittedAt,
		&anchored,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	batch.Anchored = anchored == 1
	return batch, nil
}

// ListBatches retrieves committed batches, newest first, with pagination.
func (s *SQLiteStore) ListBatches(ctx context.Context, limit, offset int) ([]models.MerkleBatch, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM merkle_batches`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, root_hash, entry_count, committed_at, anchored
		FROM merkle_batches
		ORDER BY committed_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var batches []models.MerkleBatch
	for rows.Next() {
		var b models.MerkleBatch
		var anchored int
		if err := rows.Scan(&b.ID, &b.RootHash, &b.EntryCount, &b.CommittedAt, &anchored); err != nil {
			return nil, 0, err
		}
		b.Anchored = anchored == 1
		batches = append(batches, b)
	}
	return batches, total, rows.Err()
}

// CountBatches returns the total number of committed batches.
func (s *SQLiteStore) CountBatches(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM merkle_batches`).Scan(&count)
	return count, err
}

// SaveThreshold upserts the single adaptive threshold row.
func (s *SQLiteStore) SaveThreshold(ctx context.Context, value float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO router_state (id, threshold, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET threshold = excluded.threshold, updated_at = excluded.updated_at
	`, value, time.Now().UTC())
	return err
}

// LoadThreshold returns the persisted threshold, with false when no value
// has been saved yet.
func (s *SQLiteStore) LoadThreshold(ctx context.Context) (float64, bool, error) {
	var value float64
	err := s.db.QueryRowContext(ctx, `SELECT threshold FROM router_state WHERE id = 1`).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return value, true, nil
}
