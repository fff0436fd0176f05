package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"

	"github.com/veritrail/veritrail/internal/audit"
)

const auditTableDDL = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq           BIGSERIAL PRIMARY KEY,
	ts            BIGINT NOT NULL,
	event_type    TEXT NOT NULL,
	actor         TEXT NOT NULL,
	details       TEXT NOT NULL,
	metadata      JSONB NOT NULL,
	previous_hash TEXT NOT NULL,
	node_id       TEXT NOT NULL,
	hash          TEXT NOT NULL UNIQUE
)`

// PostgresArchiver ships exported audit records to a PostgreSQL table for
// cross-node transport and long-term retention.
type PostgresArchiver struct {
	conn *pgx.Conn
}

func NewPostgresArchiver(ctx context.Context, connStr string) (*PostgresArchiver, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresArchiver{conn: conn}, nil
}

func (a *PostgresArchiver) Close(ctx context.Context) error {
	return a.conn.Close(ctx)
}

func (a *PostgresArchiver) EnsureSchema(ctx context.Context) error {
	if _, err := a.conn.Exec(ctx, auditTableDDL); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

// Archive inserts each record in chain order inside a single transaction.
// Records whose hash is already present are skipped, so re-archiving an
// overlapping export is safe.
func (a *PostgresArchiver) Archive(ctx context.Context, records iter.Seq[audit.Record]) (int64, error) {
	tx, err := a.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted int64
	for record := range records {
		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal metadata: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO audit_entries (ts, event_type, actor, details, metadata, previous_hash, node_id, hash)
			 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)
			 ON CONFLICT (hash) DO NOTHING`,
			record.Timestamp, string(record.EventType), record.Actor, record.Details,
			string(metadata), record.PreviousHash, record.NodeID, record.Hash)
		if err != nil {
			return 0, fmt.Errorf("failed to insert audit record: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	return inserted, nil
}
