// Command verifyproof checks a Merkle inclusion proof offline, without
// talking to the server. The proof file is the JSON emitted by
// GET /audit/batches/{id} for a single entry, plus the batch root.
//
// Usage:
//
//	verifyproof -file proof.json
//	verifyproof -entry <hash> -root <hash> -index 3 -proof <h1,h2,...>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/govgate-protocol/govgate/internal/ledger"
)

type proofFile struct {
	EntryHash string   `json:"entry_hash"`
	Proof     []string `json:"proof"`
	Index     int      `json:"sequence_index"`
	RootHash  string   `json:"root_hash"`
}

func main() {
	file := flag.String("file", "", "JSON proof file")
	entry := flag.String("entry", "", "entry hash (hex)")
	root := flag.String("root", "", "batch root hash (hex)")
	index := flag.Int("index", 0, "entry sequence index in the batch")
	proofArg := flag.String("proof", "", "comma-separated sibling hashes (hex)")
	flag.Parse()

	var p proofFile
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read proof file: %v\n", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(data, &p); err != nil {
			fmt.Fprintf(os.Stderr, "parse proof file: %v\n", err)
			os.Exit(1)
		}
	} else {
		p = proofFile{EntryHash: *entry, RootHash: *root, Index: *index}
		if *proofArg != "" {
			p.Proof = strings.Split(*proofArg, ",")
		}
	}

	if p.EntryHash == "" || p.RootHash == "" {
		flag.Usage()
		os.Exit(2)
	}

	leaf, ok := ledger.DecodeHash(p.EntryHash)
	if !ok {
		fmt.Fprintln(os.Stderr, "invalid entry hash")
		os.Exit(1)
	}
	rootHash, ok := ledger.DecodeHash(p.RootHash)
	if !ok {
		fmt.Fprintln(os.Stderr, "invalid root hash")
		os.Exit(1)
	}
	siblings := make([][32]byte, len(p.Proof))
	for i, s := range p.Proof {
		h, ok := ledger.DecodeHash(strings.TrimSpace(s))
		if !ok {
			fmt.Fprintf(os.Stderr, "invalid proof hash at position %d\n", i)
			os.Exit(1)
		}
		siblings[i] = h
	}

	if ledger.VerifyProof(leaf, siblings, p.Index, rootHash) {
		fmt.Println("valid: entry is included under the root")
		return
	}
	fmt.Println("INVALID: proof does not reach the root")
	os.Exit(1)
}
