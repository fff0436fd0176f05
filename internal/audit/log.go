package audit

import (
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/veritrail/veritrail/internal/canonical"
	"github.com/veritrail/veritrail/internal/crypto"
)

// Sink receives each published entry for observability. Emission is
// best-effort: errors are swallowed and emission never blocks Append.
type Sink interface {
	Emit(entry *Entry) error
}

// Log is an append-only, hash-chained sequence of audit entries for one
// node. Entries are only ever added, never edited or removed; correcting a
// mistake means appending a compensating entry.
type Log struct {
	mu       sync.RWMutex
	nodeID   string
	provider crypto.Provider
	sink     Sink
	entries  []*Entry
	lastHash string
}

// NewLog creates the node's audit log. One log is constructed at node
// startup and shared by reference with every collaborator that emits events.
func NewLog(nodeID string, provider crypto.Provider) *Log {
	return &Log{
		nodeID:   nodeID,
		provider: provider,
		lastHash: GenesisHash,
	}
}

func (l *Log) SetSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = s
}

func (l *Log) NodeID() string {
	return l.nodeID
}

// Append chains a new entry to the current tail and publishes it. The
// read-modify-write of the tail hash is one critical section; two concurrent
// appends can never observe the same previous hash. Sink emission happens
// outside the lock.
func (l *Log) Append(eventType EventType, actor, details string, metadata map[string]canonical.Value) (*Entry, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	meta := make(map[string]canonical.Value, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	l.mu.Lock()
	entry := &Entry{
		Timestamp:    time.Now().UnixMilli(),
		EventType:    eventType,
		Actor:        actor,
		Details:      details,
		Metadata:     meta,
		PreviousHash: l.lastHash,
		NodeID:       l.nodeID,
	}
	entry.Hash = entry.ComputeHash(l.provider)
	l.entries = append(l.entries, entry)
	l.lastHash = entry.Hash
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		go func() {
			_ = sink.Emit(entry)
		}()
	}

	return entry, nil
}

// VerifyIntegrity walks the chain from the genesis sentinel, recomputing
// each entry's hash from its stored fields and checking the linkage to its
// predecessor. It reports only whether the chain is intact.
func (l *Log) VerifyIntegrity() bool {
	entries := l.snapshot()

	previous := GenesisHash
	for _, e := range entries {
		if e.PreviousHash != previous {
			return false
		}
		if e.ComputeHash(l.provider) != e.Hash {
			return false
		}
		previous = e.Hash
	}
	return true
}

func (l *Log) EntriesByType(eventType EventType) []*Entry {
	var matched []*Entry
	for _, e := range l.snapshot() {
		if e.EventType == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

func (l *Log) EntriesByActor(actor string) []*Entry {
	var matched []*Entry
	for _, e := range l.snapshot() {
		if e.Actor == actor {
			matched = append(matched, e)
		}
	}
	return matched
}

// EntriesByTimeRange returns entries whose timestamps fall within the
// inclusive [start, end] epoch-millisecond bounds, in chain order.
func (l *Log) EntriesByTimeRange(start, end int64) []*Entry {
	var matched []*Entry
	for _, e := range l.snapshot() {
		if e.Timestamp >= start && e.Timestamp <= end {
			matched = append(matched, e)
		}
	}
	return matched
}

type Stats struct {
	TotalEntries int
	NodeID       string
	LastHash     string
	ByType       map[EventType]int
}

func (l *Log) Stats() Stats {
	l.mu.RLock()
	entries := l.entries
	lastHash := l.lastHash
	l.mu.RUnlock()

	stats := Stats{
		TotalEntries: len(entries),
		NodeID:       l.nodeID,
		LastHash:     lastHash,
		ByType:       make(map[EventType]int),
	}
	for _, e := range entries {
		stats.ByType[e.EventType]++
	}
	return stats
}

// Export yields one wire record per entry in chain order. The sequence is
// lazy and restartable: each range starts again from the genesis entry over
// the entries published at that point.
func (l *Log) Export() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, e := range l.snapshot() {
			if !yield(e.record()) {
				return
			}
		}
	}
}

// snapshot returns the published entries at this instant. Entries are
// immutable once published, so the shared backing array is safe to read
// without further locking.
func (l *Log) snapshot() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[:len(l.entries):len(l.entries)]
}
