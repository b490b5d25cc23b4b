package ledger

import (
	"crypto/sha256"
	"encoding/hex"
)

// Merkle construction policy, shared by producer and verifier:
// leaves are entry hashes in ingestion order, a parent is
// sha256(left || right), and a level with an odd node count duplicates
// its last node. Changing either side of this convention breaks every
// previously issued proof, so both live in this file.

// merkleRoot computes the root of the given leaves. Panics on empty
// input; batches never commit empty.
func merkleRoot(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		panic("merkleRoot: no leaves")
	}
	level := make([][32]byte, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

// merkleProof returns the sibling path for the leaf at index, ordered
// from the leaf level up to just below the root.
func merkleProof(leaves [][32]byte, index int) [][32]byte {
	if index < 0 || index >= len(leaves) {
		return nil
	}
	level := make([][32]byte, len(leaves))
	copy(level, leaves)

	var proof [][32]byte
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		sibling := index ^ 1
		proof = append(proof, level[sibling])

		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
		index /= 2
	}
	return proof
}

// VerifyProof recomputes the path from leaf to root and compares against
// the supplied root. Any mismatch returns false; there is no partial
// credit.
func VerifyProof(leaf [32]byte, proof [][32]byte, index int, root [32]byte) bool {
	if index < 0 {
		return false
	}
	current := leaf
	for _, sibling := range proof {
		if index%2 == 0 {
			current = hashPair(current, sibling)
		} else {
			current = hashPair(sibling, current)
		}
		index /= 2
	}
	return current == root
}

func hashPair(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// DecodeHash parses a lowercase hex sha256 digest.
func DecodeHash(s string) ([32]byte, bool) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return out, false
	}
	copy(out[:], b)
	return out, true
}

// EncodeHash renders a digest as lowercase hex.
func EncodeHash(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
