// Package storage implements the optional audit ledger: one row per
// extract() call recording job id, cache hit/miss, error tag, and duration.
// This is not one of the core's named components (spec §2) — it is the
// pack's Postgres library given a home in the domain stack, adapted from
// the teacher's connection-pool and upsert style into a processing ledger
// instead of a Document-DNA vector store.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
)

// LedgerEntry is a single extract() call's audit record.
type LedgerEntry struct {
	JobID            string
	Path             string
	MimeType         string
	CacheHit         bool
	ErrorTag         string
	ProcessingTimeMs int64
	Metadata         map[string]interface{}
}

// Ledger persists LedgerEntry rows to Postgres, the same connection-pool
// shape as the teacher's PostgresClient (25 max open, 5 max idle, 5 minute
// max lifetime) with the table narrowed to the extraction core's own
// concerns.
type Ledger struct {
	db *sql.DB
}

// NewLedger opens a pooled connection and verifies connectivity, mirroring
// the teacher's NewPostgresClient construction sequence.
func NewLedger(databaseURL string) (*Ledger, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Record inserts one ledger row per extract() call. Ledger failures never
// abort an extraction — the core's own error taxonomy has no slot for
// "audit sink unavailable", so Record's error is logged by the caller and
// otherwise discarded.
func (l *Ledger) Record(ctx context.Context, e LedgerEntry) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return kerrors.NewSystemError("marshal ledger metadata", err)
	}

	const query = `
		INSERT INTO kreuzberg.extraction_ledger (
			job_id, path, mime_type, cache_hit, error_tag,
			processing_time_ms, metadata, created_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7::jsonb, NOW())
	`
	_, err = l.db.ExecContext(ctx, query,
		e.JobID, e.Path, e.MimeType, e.CacheHit, e.ErrorTag,
		e.ProcessingTimeMs, metadataJSON,
	)
	if err != nil {
		return kerrors.NewSystemError("insert ledger row", err)
	}
	return nil
}

// RecentErrors returns the last limit ledger rows carrying a non-empty
// error tag, useful for an operator spot-checking recent failures.
func (l *Ledger) RecentErrors(ctx context.Context, limit int) ([]LedgerEntry, error) {
	const query = `
		SELECT job_id, path, mime_type, cache_hit, COALESCE(error_tag, ''), processing_time_ms
		FROM kreuzberg.extraction_ledger
		WHERE error_tag IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, kerrors.NewSystemError("query recent ledger errors", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.JobID, &e.Path, &e.MimeType, &e.CacheHit, &e.ErrorTag, &e.ProcessingTimeMs); err != nil {
			return nil, kerrors.NewSystemError("scan ledger row", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying connection pool.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
