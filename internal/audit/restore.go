package audit

import (
	"fmt"

	"github.com/veritrail/veritrail/internal/crypto"
)

// Restore rebuilds a log from archived export records, re-verifying every
// hash and chain link on the way in. A record that fails verification aborts
// the restore; a corrupted archive must never become a live chain tail.
func Restore(nodeID string, provider crypto.Provider, records []Record) (*Log, error) {
	log := NewLog(nodeID, provider)

	previous := GenesisHash
	for i, r := range records {
		if r.PreviousHash != previous {
			return nil, fmt.Errorf("chain broken at position %d: expected previous hash %s, got %s",
				i, previous, r.PreviousHash)
		}

		entry := &Entry{
			Timestamp:    r.Timestamp,
			EventType:    r.EventType,
			Actor:        r.Actor,
			Details:      r.Details,
			Metadata:     r.Metadata,
			PreviousHash: r.PreviousHash,
			NodeID:       r.NodeID,
			Hash:         r.Hash,
		}
		if computed := entry.ComputeHash(provider); computed != r.Hash {
			return nil, fmt.Errorf("hash mismatch at position %d: computed %s, stored %s",
				i, computed, r.Hash)
		}

		log.entries = append(log.entries, entry)
		log.lastHash = entry.Hash
		previous = entry.Hash
	}

	return log, nil
}
