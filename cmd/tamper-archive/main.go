package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/veritrail/veritrail/internal/audit"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <archive-path>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "This tool corrupts the first audit record in the archive so a\n")
		fmt.Fprintf(os.Stderr, "subsequent 'veritrail verify' demonstrates tamper detection\n")
		os.Exit(1)
	}

	dbPath := os.Args[1]

	fmt.Printf("Opening archive: %s\n", dbPath)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open archive: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	bucketName := []byte("audit")

	var targetKey []byte
	var targetRecord audit.Record

	err = db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", bucketName)
		}

		k, v := bucket.Cursor().First()
		if k == nil {
			return fmt.Errorf("archive is empty")
		}

		if err := json.Unmarshal(v, &targetRecord); err != nil {
			return fmt.Errorf("failed to decode record: %w", err)
		}

		targetKey = make([]byte, len(k))
		copy(targetKey, k)

		fmt.Printf("Found entry %s by %s\n", targetRecord.EventType, targetRecord.Actor)
		fmt.Printf("  Original details: %s\n", targetRecord.Details)
		fmt.Printf("  Original hash: %s\n", targetRecord.Hash)

		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find target record: %v\n", err)
		os.Exit(1)
	}

	targetRecord.Details = targetRecord.Details + " [TAMPERED]"

	err = db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)

		data, err := json.Marshal(targetRecord)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		return bucket.Put(targetKey, data)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to tamper record: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Record details altered without recomputing the hash.")
	fmt.Println("Run 'veritrail verify' to see the integrity check fail.")
}
