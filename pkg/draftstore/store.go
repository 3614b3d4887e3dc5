// Package draftstore persists drafts in a SQLite database so they survive
// process restarts and can be shared between engine instances and tooling.
// The Store exposes error-returning CRUD for operators; Provider adapts a
// single key to the error-free draftsync.DraftProvider contract.
package draftstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by GetDraft when no draft exists under the key.
var ErrNotFound = errors.New("draftstore: draft not found")

// SQL statements for draft operations.
const (
	sqlListDrafts = `SELECT key, payload, updated_at FROM drafts ORDER BY key`

	sqlGetDraft = `SELECT key, payload, updated_at FROM drafts WHERE key = ?`

	sqlPutDraft = `INSERT INTO drafts (key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		 payload = excluded.payload,
		 updated_at = excluded.updated_at`

	sqlDeleteDraft = `DELETE FROM drafts WHERE key = ?`
)

// Record is one persisted draft row. Payload is the JSON encoding of the
// draft value; UpdatedAt is Unix nanoseconds.
type Record struct {
	Key       string
	Payload   []byte
	UpdatedAt int64
}

// Store is the sole writer to a draft database.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens the SQLite database at dbPath, runs migrations, and returns a
// ready-to-use store. The database uses WAL mode with a busy timeout so
// concurrent readers (CLI inspection during an editing session) don't fail
// on lock contention.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("draftstore: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("draft store opened", slog.String("path", dbPath))

	return &Store{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListDrafts returns all persisted drafts ordered by key.
func (s *Store) ListDrafts(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, sqlListDrafts)
	if err != nil {
		return nil, fmt.Errorf("draftstore: listing drafts: %w", err)
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key, &r.Payload, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("draftstore: scanning draft row: %w", err)
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("draftstore: iterating drafts: %w", err)
	}

	return records, nil
}

// GetDraft returns the draft stored under key, or ErrNotFound.
func (s *Store) GetDraft(ctx context.Context, key string) (*Record, error) {
	var r Record

	err := s.db.QueryRowContext(ctx, sqlGetDraft, key).
		Scan(&r.Key, &r.Payload, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draftstore: %q: %w", key, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("draftstore: getting draft %q: %w", key, err)
	}

	return &r, nil
}

// PutDraft upserts the draft payload under key.
func (s *Store) PutDraft(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, sqlPutDraft, key, payload, s.nowFunc().UnixNano())
	if err != nil {
		return fmt.Errorf("draftstore: putting draft %q: %w", key, err)
	}

	return nil
}

// DeleteDraft removes the draft under key. Deleting a missing key is not an
// error.
func (s *Store) DeleteDraft(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteDraft, key); err != nil {
		return fmt.Errorf("draftstore: deleting draft %q: %w", key, err)
	}

	return nil
}
