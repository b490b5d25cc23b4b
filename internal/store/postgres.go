package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/govgate-protocol/govgate/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS merkle_batches (
		id UUID PRIMARY KEY,
		root_hash TEXT NOT NULL,
		entry_count INTEGER NOT NULL,
		committed_at TIMESTAMPTZ NOT NULL,
		anchored BOOLEAN NOT NULL DEFAULT FALSE,
		anchor_transaction_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_merkle_batches_committed_at ON merkle_batches(committed_at);

	CREATE TABLE IF NOT EXISTS router_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		threshold DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveBatch records a committed batch. Committed batches are immutable,
// so a replayed save is a no-op.
func (s *PostgresStore) SaveBatch(ctx context.Context, batch *models.MerkleBatch) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO merkle_batches (id, root_hash, entry_count, committed_at, anchored)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, batch.ID, batch.RootHash, batch.EntryCount, batch.CommittedAt, batch.Anchored)
	return err
}

// MarkBatchAnchored records the anchoring collaborator's transaction id.
func (s *PostgresStore) MarkBatchAnchored(ctx context.Context, batchID, transactionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE merkle_batches SET anchored = TRUE, anchor_transaction_id = $2 WHERE id = $1
	`, batchID, transactionID)
	return err
}

// GetBatch retrieves a batch by id, nil when absent.
func (s *PostgresStore) GetBatch(ctx context.Context, batchID string) (*models.MerkleBatch, error) {
	batch := &models.MerkleBatch{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, root_hash, entry_count, committed_at, anchored
		FROM merkle_batches WHERE id = $1
	`, batchID).Scan(
		&batch.ID,
		&batch.RootHash,
		&batch.EntryCount,
		&batch.CommittedAt,
		&batch.Anchored,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return batch, nil
}

// ListBatches retrieves committed batches, newest first, with pagination.
func (s *PostgresStore) ListBatches(ctx context.Context, limit, offset int) ([]models.MerkleBatch, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM merkle_batches`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, root_hash, entry_count, committed_at, anchored
		FROM merkle_batches
		ORDER BY committed_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var batches []models.MerkleBatch
	for rows.Next() {
		var b models.MerkleBatch
		if err := rows.Scan(&b.ID, &b.RootHash, &b.EntryCount, &b.CommittedAt, &b.Anchored); err != nil {
			return nil, 0, err
		}
		batches = append(batches, b)
	}
	return batches, total, rows.Err()
}

// CountBatches returns the total number of committed batches.
func (s *PostgresStore) CountBatches(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM merkle_batches`).Scan(&count)
	return count, err
}

// SaveThreshold upserts the single adaptive threshold row.
func (s *PostgresStore) SaveThreshold(ctx context.Context, value float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO router_state (id, threshold, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET threshold = $1, updated_at = NOW()
	`, value)
	return err
}

// LoadThreshold returns the persisted threshold, with false when no value
// has been saved yet.
func (s *PostgresStore) LoadThreshold(ctx context.Context) (float64, bool, error) {
	var value float64
	err := s.pool.QueryRow(ctx, `SELECT threshold FROM router_state WHERE id = 1`).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return value, true, nil
}
