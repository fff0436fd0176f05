package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/veritrail/veritrail/internal/audit"
)

var (
	AuditBucket    = []byte("audit")
	MetadataBucket = []byte("metadata")
)

var ErrNotFound = errors.New("record not found")

// Store is the durable archive for exported audit records. Records are
// keyed by their sequence position so cursor order is chain order.
type Store struct {
	db *bolt.DB
}

func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{AuditBucket, MetadataBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveRecord(seq uint64, record audit.Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(AuditBucket)

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal audit record: %w", err)
		}

		return bucket.Put(recordKey(seq), data)
	})
}

func (s *Store) GetRecord(seq uint64) (audit.Record, error) {
	var record audit.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(AuditBucket)

		data := bucket.Get(recordKey(seq))
		if data == nil {
			return ErrNotFound
		}

		return json.Unmarshal(data, &record)
	})

	return record, err
}

// Records returns every archived record in sequence order.
func (s *Store) Records() ([]audit.Record, error) {
	var records []audit.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(AuditBucket)
		cursor := bucket.Cursor()

		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var record audit.Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal audit record: %w", err)
			}
			records = append(records, record)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (s *Store) LastRecord() (audit.Record, error) {
	var record audit.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(AuditBucket)

		k, v := bucket.Cursor().Last()
		if k == nil {
			return ErrNotFound
		}

		return json.Unmarshal(v, &record)
	})

	return record, err
}

func (s *Store) RecordCount() (uint64, error) {
	var count uint64

	err := s.db.View(func(tx *bolt.Tx) error {
		count = uint64(tx.Bucket(AuditBucket).Stats().KeyN)
		return nil
	})

	return count, err
}

// Archive drains an export sequence into the store, continuing after any
// records already archived.
func (s *Store) Archive(records iter.Seq[audit.Record]) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(AuditBucket)
		archived := uint64(bucket.Stats().KeyN)
		seq := archived

		var skip uint64
		for record := range records {
			if skip < archived {
				skip++
				continue
			}

			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal audit record: %w", err)
			}
			if err := bucket.Put(recordKey(seq), data); err != nil {
				return err
			}
			seq++
		}

		return nil
	})
}

func (s *Store) SetMetadata(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(MetadataBucket)
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (s *Store) GetMetadata(key string) (string, error) {
	var value string

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(MetadataBucket)
		data := bucket.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("metadata key not found: %s", key)
		}
		value = string(data)
		return nil
	})

	return value, err
}

func recordKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%016d", seq))
}
