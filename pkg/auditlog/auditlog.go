// Package auditlog implements an append-only, hash-chained record of every
// mutating call the certification engine makes (Certify/Remove/RemoveAll/
// Clear), generalized from the teacher's evidence audit store
// (core/pkg/store/audit_store.go) to this module's domain. It is pure
// bookkeeping: nothing here feeds back into tree or index state, and the
// log itself lives only in process memory unless the embedding host
// chooses to persist it, the same stable-memory contract spec.md already
// places on the caller for the tree and the index.
package auditlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// ErrChainBroken is returned by Verify when a recorded entry's hash no
// longer matches what Append would have computed for it — either recorded
// entries were mutated in place, or the in-memory log has been corrupted.
var ErrChainBroken = errors.New("auditlog: hash chain broken")

// genesisHash seeds the chain before any entry has been appended, mirroring
// the teacher's literal "genesis" sentinel.
const genesisHash = "genesis"

// Entry is one certification-engine operation recorded to the log.
type Entry struct {
	EntryID       string    `json:"entryId"`
	Sequence      uint64    `json:"sequence"`
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	URL           string    `json:"url"`
	RootHash      [32]byte  `json:"-"`
	RootHashHex   string    `json:"rootHash"`
	CorrelationID string    `json:"correlationId"`
	PreviousHash  string    `json:"previousHash"`
	EntryHash     string    `json:"entryHash"`
}

// Log is the concurrency-safe, in-memory hash-chained audit trail.
type Log struct {
	mu        sync.Mutex
	entries   []Entry
	sequence  uint64
	chainHead string
	clock     func() time.Time
}

// New returns an empty log. clock defaults to time.Now; tests may override
// it via NewWithClock for deterministic timestamps.
func New() *Log {
	return NewWithClock(time.Now)
}

// NewWithClock returns an empty log using clock in place of time.Now.
func NewWithClock(clock func() time.Time) *Log {
	return &Log{chainHead: genesisHash, clock: clock}
}

// Append records e, filling in its sequence number, timestamp, entry ID,
// and hash-chain fields, canonicalizing the payload with JCS (RFC 8785)
// before hashing so the chain is reproducible byte-for-byte across
// processes, independent of Go map/field ordering.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.EntryID = uuid.New().String()
	e.Sequence = l.sequence
	e.Timestamp = l.clock()
	e.RootHashHex = hex.EncodeToString(e.RootHash[:])
	e.PreviousHash = l.chainHead

	payloadHash, err := canonicalHash(e)
	if err != nil {
		return err
	}
	e.EntryHash = chainHash(e.PreviousHash, payloadHash)

	l.entries = append(l.entries, e)
	l.sequence++
	l.chainHead = e.EntryHash
	return nil
}

// Entries returns a copy of every recorded entry, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Verify recomputes every entry's hash chain from scratch and reports the
// first break found, or nil if the whole log is internally consistent.
func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := genesisHash
	for _, e := range l.entries {
		if e.PreviousHash != prev {
			return ErrChainBroken
		}
		check := e
		check.EntryHash = ""
		check.PreviousHash = prev
		payloadHash, err := canonicalHash(check)
		if err != nil {
			return err
		}
		if chainHash(prev, payloadHash) != e.EntryHash {
			return ErrChainBroken
		}
		prev = e.EntryHash
	}
	return nil
}

// canonicalHash JCS-canonicalizes e's JSON encoding and returns the hex
// SHA-256 of the canonical bytes.
func canonicalHash(e Entry) (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func chainHash(previousHash, payloadHash string) string {
	h := sha256.Sum256([]byte(previousHash + payloadHash))
	return hex.EncodeToString(h[:])
}
