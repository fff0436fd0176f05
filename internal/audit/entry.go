package audit

import (
	"github.com/veritrail/veritrail/internal/canonical"
	"github.com/veritrail/veritrail/internal/crypto"
)

// GenesisHash is the previous-hash sentinel of the first entry in a chain.
const GenesisHash = "0"

// Entry is a single audit record. Entries are never mutated after they are
// published; Hash is a pure function of every other field.
type Entry struct {
	Timestamp    int64
	EventType    EventType
	Actor        string
	Details      string
	Metadata     map[string]canonical.Value
	PreviousHash string
	NodeID       string
	Hash         string
}

// ComputeHash derives the entry hash from its stored fields. Metadata pairs
// are encoded in ascending key order so insertion order never changes the
// digest.
func (e *Entry) ComputeHash(provider crypto.Provider) string {
	enc := canonical.NewEncoder()
	enc.WriteInt64(e.Timestamp)
	enc.WriteString(string(e.EventType))
	enc.WriteString(e.Actor)
	enc.WriteString(e.Details)
	enc.WriteMap(e.Metadata)
	enc.WriteString(e.PreviousHash)
	enc.WriteString(e.NodeID)
	return provider.HexEncode(provider.Hash(enc.Bytes()))
}

// Record is the export form of an entry. The field names are a wire contract
// relied on by persistence and replication consumers.
type Record struct {
	Timestamp    int64                      `json:"timestamp"`
	EventType    EventType                  `json:"eventType"`
	Actor        string                     `json:"actor"`
	Details      string                     `json:"details"`
	Metadata     map[string]canonical.Value `json:"metadata"`
	PreviousHash string                     `json:"previousHash"`
	NodeID       string                     `json:"nodeId"`
	Hash         string                     `json:"hash"`
}

func (e *Entry) record() Record {
	return Record{
		Timestamp:    e.Timestamp,
		EventType:    e.EventType,
		Actor:        e.Actor,
		Details:      e.Details,
		Metadata:     e.Metadata,
		PreviousHash: e.PreviousHash,
		NodeID:       e.NodeID,
		Hash:         e.Hash,
	}
}
