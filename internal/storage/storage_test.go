package storage

import (
	"errors"
	"os"
	"testing"

	"github.com/veritrail/veritrail/internal/audit"
	"github.com/veritrail/veritrail/internal/canonical"
	"github.com/veritrail/veritrail/internal/crypto"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "veritrail-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpfile.Close()
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	store, err := New(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestStore(t *testing.T) {
	store := newTestStore(t)

	t.Run("SaveAndGetRecord", func(t *testing.T) {
		record := audit.Record{
			Timestamp:    1700000000000,
			EventType:    audit.TransactionSubmitted,
			Actor:        "addr1",
			Details:      "tx1",
			PreviousHash: "0",
			NodeID:       "n1",
			Hash:         "abcd1234",
		}

		if err := store.SaveRecord(0, record); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}

		retrieved, err := store.GetRecord(0)
		if err != nil {
			t.Fatalf("GetRecord failed: %v", err)
		}

		if retrieved.Hash != record.Hash {
			t.Errorf("expected hash %s, got %s", record.Hash, retrieved.Hash)
		}
		if retrieved.EventType != record.EventType {
			t.Errorf("expected event type %s, got %s", record.EventType, retrieved.EventType)
		}
	})

	t.Run("GetRecordNotFound", func(t *testing.T) {
		if _, err := store.GetRecord(999); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("LastRecord", func(t *testing.T) {
		for seq, hash := range []string{"hash1", "hash2"} {
			record := audit.Record{Hash: hash, NodeID: "n1"}
			if err := store.SaveRecord(uint64(seq+1), record); err != nil {
				t.Fatalf("SaveRecord failed: %v", err)
			}
		}

		last, err := store.LastRecord()
		if err != nil {
			t.Fatalf("LastRecord failed: %v", err)
		}

		if last.Hash != "hash2" {
			t.Errorf("expected hash2, got %s", last.Hash)
		}
	})

	t.Run("RecordsInOrder", func(t *testing.T) {
		records, err := store.Records()
		if err != nil {
			t.Fatalf("Records failed: %v", err)
		}

		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		if records[0].Hash != "abcd1234" || records[2].Hash != "hash2" {
			t.Error("records should come back in sequence order")
		}
	})

	t.Run("SetAndGetMetadata", func(t *testing.T) {
		if err := store.SetMetadata("node_id", "n1"); err != nil {
			t.Fatalf("SetMetadata failed: %v", err)
		}

		value, err := store.GetMetadata("node_id")
		if err != nil {
			t.Fatalf("GetMetadata failed: %v", err)
		}
		if value != "n1" {
			t.Errorf("expected n1, got %s", value)
		}

		if _, err := store.GetMetadata("missing"); err == nil {
			t.Error("expected error for missing metadata key")
		}
	})
}

func TestArchive(t *testing.T) {
	store := newTestStore(t)
	provider := crypto.NewSHA256Ed25519()

	log := audit.NewLog("n1", provider)
	meta := map[string]canonical.Value{"model": canonical.String("X1")}
	if _, err := log.Append(audit.DeviceProvisioned, "dev1", "sensor", meta); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Append(audit.TransactionSubmitted, "addr1", "tx1", nil); err != nil {
		t.Fatal(err)
	}

	if err := store.Archive(log.Export()); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	count, err := store.RecordCount()
	if err != nil {
		t.Fatalf("RecordCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 archived records, got %d", count)
	}

	// Appending and re-archiving only writes the new tail.
	if _, err := log.Append(audit.BlockCreated, "n1", "block1", nil); err != nil {
		t.Fatal(err)
	}
	if err := store.Archive(log.Export()); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	records, err := store.Records()
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records after incremental archive, got %d", len(records))
	}

	// The archive round-trips into a verifiable log.
	restored, err := audit.Restore("n1", provider, records)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !restored.VerifyIntegrity() {
		t.Error("archived chain should restore and verify")
	}
	if restored.Stats().LastHash != log.Stats().LastHash {
		t.Error("archive should preserve the chain tail")
	}
}

func TestArchiveStoresEveryNewRecord(t *testing.T) {
	store := newTestStore(t)
	provider := crypto.NewSHA256Ed25519()
	log := audit.NewLog("n1", provider)

	// Archive a 4-entry chain in two 2-entry increments. Each increment
	// must store every record it hasn't seen, not just part of the tail.
	for batch := 0; batch < 2; batch++ {
		for i := 0; i < 2; i++ {
			if _, err := log.Append(audit.TransactionSubmitted, "addr1", "tx", nil); err != nil {
				t.Fatal(err)
			}
		}
		if err := store.Archive(log.Export()); err != nil {
			t.Fatalf("Archive failed: %v", err)
		}
	}

	count, err := store.RecordCount()
	if err != nil {
		t.Fatalf("RecordCount failed: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 archived records after archiving a 4-entry chain, got %d", count)
	}

	records, err := store.Records()
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	restored, err := audit.Restore("n1", provider, records)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Stats().LastHash != log.Stats().LastHash {
		t.Error("archive must end at the live chain tail, not a truncated prefix")
	}
}
