package store

import (
	"context"

	"github.com/govgate-protocol/govgate/internal/models"
)

// DataStore is the durable state the bus must recover after a restart:
// committed Merkle roots with batch metadata and the current adaptive
// threshold. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Batch operations
	SaveBatch(ctx context.Context, batch *models.MerkleBatch) error
	MarkBatchAnchored(ctx context.Context, batchID, transactionID string) error
	GetBatch(ctx context.Context, batchID string) (*models.MerkleBatch, error)
	ListBatches(ctx context.Context, limit, offset int) ([]models.MerkleBatch, int, error)
	CountBatches(ctx context.Context) (int64, error)

	// Adaptive threshold
	SaveThreshold(ctx context.Context, value float64) error
	LoadThreshold(ctx context.Context) (float64, bool, error)
}
