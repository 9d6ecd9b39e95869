// Package memory implements the disagreement memory: an append-only store of
// past Expert corrections plus a lexical similarity index over their state
// fingerprints.
//
// Entries are immutable once written and carry a globally monotonic sequence
// number. The similarity index is never persisted; it is rebuilt from the
// stored entries on open and refit after every insert, because fingerprint
// vocabulary (topics, action names) grows continuously. Full refit per insert
// is fine at the hundreds-to-low-thousands scale this store targets.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dativo-io/warden/internal/otel"
)

var tracer = otel.Tracer("github.com/dativo-io/warden/internal/memory")

const schema = `
CREATE TABLE IF NOT EXISTS memory_entries (
    seq INTEGER PRIMARY KEY,
    id TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    reasoning TEXT NOT NULL,
    plan TEXT NOT NULL,
    persona TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_created ON memory_entries(created_at);
`

// Entry is one stored disagreement case. Immutable after insert; the
// fingerprint is derived from user state (never identity), optionally
// concatenated with the triggering comment depending on the memory mode.
type Entry struct {
	Seq         int64     `json:"seq"`
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Reasoning   string    `json:"reasoning"`
	Plan        string    `json:"plan"` // canonical action sequence
	Persona     string    `json:"persona,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists memory entries in SQLite with a monotonic sequence number.
type Store struct {
	db      *sql.DB
	nextSeq int64
}

// NewStore opens (or creates) the memory database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening memory database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating memory schema: %w", err)
	}

	var maxSeq sql.NullInt64
	if err := db.QueryRowContext(context.Background(),
		`SELECT MAX(seq) FROM memory_entries`).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("reading max sequence: %w", err)
	}

	return &Store{db: db, nextSeq: maxSeq.Int64 + 1}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends the entry, assigning its sequence number, ID, and timestamp.
// Never rejects, never deduplicates: identical fingerprints across distinct
// entries are expected and permitted.
func (s *Store) Insert(ctx context.Context, entry *Entry) error {
	ctx, span := tracer.Start(ctx, "memory.insert")
	defer span.End()

	if entry.ID == "" {
		entry.ID = "mem_" + uuid.New().String()[:12]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Seq = s.nextSeq

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_entries (seq, id, fingerprint, reasoning, plan, persona, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq, entry.ID, entry.Fingerprint, entry.Reasoning, entry.Plan,
		entry.Persona, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting memory entry: %w", err)
	}
	s.nextSeq++

	recordInsert(ctx)
	recordEntriesGauge(ctx, s)
	return nil
}

// All returns every entry ordered by sequence number ascending.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, fingerprint, reasoning, plan, persona, created_at
		 FROM memory_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing memory entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.ID, &e.Fingerprint, &e.Reasoning, &e.Plan,
			&e.Persona, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_entries`).Scan(&n)
	return n, err
}

// Snapshot returns the full ordered entry list for external persistence.
func (s *Store) Snapshot(ctx context.Context) ([]Entry, error) {
	return s.All(ctx)
}

// Restore replaces the store contents with the snapshot, preserving sequence
// numbers exactly. The similarity index is not part of the snapshot; callers
// rebuild it from the restored entries.
func (s *Store) Restore(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_entries`); err != nil {
		return fmt.Errorf("clearing memory entries: %w", err)
	}
	var maxSeq int64
	for i := range entries {
		e := &entries[i]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memory_entries (seq, id, fingerprint, reasoning, plan, persona, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.Seq, e.ID, e.Fingerprint, e.Reasoning, e.Plan, e.Persona, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("restoring memory entry %d: %w", e.Seq, err)
		}
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.nextSeq = maxSeq + 1
	return nil
}
