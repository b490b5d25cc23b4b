package models

import "time"

// AuditEntry is one ledger record. Hashes and proof siblings are
// lowercase hex sha256 digests. Entries are append-only and never deleted.
type AuditEntry struct {
	Hash          string   `json:"hash"`
	BatchID       string   `json:"batch_id"`
	SequenceIndex int      `json:"sequence_index"`
	MerkleProof   []string `json:"merkle_proof"`
}

// MerkleBatch is a committed, immutable group of audit entries under a
// single root. Superseded batches are retained for historical verification.
type MerkleBatch struct {
	ID          string    `json:"batch_id"` // UUID
	RootHash    string    `json:"root_hash"`
	EntryCount  int       `json:"entry_count"`
	CommittedAt time.Time `json:"committed_at"`
	Anchored    bool      `json:"anchored"`
}

// AnchorPayload is the transaction handed to the external anchoring
// collaborator on batch commit.
type AnchorPayload struct {
	RootHash   string    `json:"root_hash"`
	BatchID    string    `json:"batch_id"`
	EntryCount int       `json:"entry_count"`
	Timestamp  time.Time `json:"timestamp"`
}
