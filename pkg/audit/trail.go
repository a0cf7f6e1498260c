// Package audit provides a tamper-evident trail of ledger mutations. Each
// entry's hash covers the previous entry's hash, so any rewrite of history
// breaks the chain.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry is one recorded ledger operation.
type Entry struct {
	Seq          uint64 `json:"seq"`
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Op           string `json:"op"`
	Detail       string `json:"detail"`
	Hash         string `json:"hash"`
}

// Trail is a hash-chained, append-only log of ledger operations.
type Trail struct {
	mu           sync.Mutex
	seq          uint64
	previousHash string
	entries      []Entry
}

// NewTrail creates an empty trail anchored at a zero hash.
func NewTrail() *Trail {
	return &Trail{previousHash: strings.Repeat("0", 64)}
}

// Append records an operation. Detail must not contain secrets; it is kept
// in memory verbatim.
func (t *Trail) Append(op, detail string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	entry := Entry{
		Seq:          t.seq,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		PreviousHash: t.previousHash,
		Op:           op,
		Detail:       detail,
	}
	entry.Hash = entryHash(entry)

	t.previousHash = entry.Hash
	t.entries = append(t.entries, entry)
	return entry
}

// Entries returns a copy of the recorded chain.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Verify checks that entries form an unbroken hash chain.
func Verify(entries []Entry) bool {
	for i, entry := range entries {
		if i > 0 && entry.PreviousHash != entries[i-1].Hash {
			return false
		}
		if entryHash(entry) != entry.Hash {
			return false
		}
	}
	return true
}

func entryHash(e Entry) string {
	input := fmt.Sprintf("%d|%s|%s|%s|%s", e.Seq, e.PreviousHash, e.Timestamp, e.Op, e.Detail)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
