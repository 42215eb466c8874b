// Package store persists vector index snapshots in a local SQLite database
// so a restarted process can restore its in-memory index without
// re-embedding every source record. The index remains rebuildable from the
// source records; this store is a startup cache, not the system of record.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/pmrag-go/internal/rag"
)

// SnapshotStore saves and loads whole index snapshots.
// Implementations must be safe for concurrent use.
type SnapshotStore interface {
	// Save replaces the persisted snapshot with snap.
	Save(ctx context.Context, snap rag.Snapshot) error
	// Load returns the persisted snapshot; an empty store yields an empty snapshot.
	Load(ctx context.Context) (rag.Snapshot, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a SnapshotStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

var _ SnapshotStore = (*SQLiteStore)(nil)

// DefaultDBPath returns the default path for the index snapshot database.
// It resolves to ~/.pmrag/index.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".pmrag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "index.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS entries (
    id           TEXT    PRIMARY KEY,
    seq          INTEGER NOT NULL,
    title        TEXT    NOT NULL,
    content      TEXT    NOT NULL,
    kind         TEXT    NOT NULL,
    owner_scope  TEXT    NOT NULL DEFAULT '',
    locator      INTEGER NOT NULL DEFAULT 0,
    attributes   TEXT    NOT NULL DEFAULT '{}',
    embedding    BLOB    NOT NULL,  -- little-endian float32
    indexed_at   INTEGER NOT NULL   -- Unix timestamp (nanoseconds)
);
CREATE INDEX IF NOT EXISTS idx_entries_seq ON entries (seq);
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save replaces every persisted entry with the contents of snap in one
// transaction, so a crash mid-save leaves the previous snapshot intact.
func (s *SQLiteStore) Save(ctx context.Context, snap rag.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("store: save clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO entries (id, seq, title, content, kind, owner_scope, locator, attributes, embedding, indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: save prepare: %w", err)
	}
	defer stmt.Close()

	for seq, id := range snapshotIDs(snap) {
		e := snap.Entries[id]
		attrs, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("store: save %q attributes: %w", id, err)
		}
		if e.Attributes == nil {
			attrs = []byte("{}")
		}
		_, err = stmt.ExecContext(ctx,
			id, seq, e.Title, e.Content, string(e.Kind), e.OwnerScope, e.Locator,
			string(attrs), encodeVector(e.Embedding), e.IndexedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("store: save %q: %w", id, err)
		}
	}

	if err := setMeta(ctx, tx, "dimension", strconv.Itoa(snap.Dimension)); err != nil {
		return err
	}
	if err := setMeta(ctx, tx, "saved_at", strconv.FormatInt(time.Now().UnixNano(), 10)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: save commit: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot, preserving insertion order.
func (s *SQLiteStore) Load(ctx context.Context) (rag.Snapshot, error) {
	snap := rag.Snapshot{Entries: make(map[string]rag.SnapshotEntry)}

	var dim string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'dimension'`).Scan(&dim)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return rag.Snapshot{}, fmt.Errorf("store: load meta: %w", err)
	default:
		snap.Dimension, _ = strconv.Atoi(dim)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, content, kind, owner_scope, locator, attributes, embedding, indexed_at
FROM   entries
ORDER  BY seq ASC`)
	if err != nil {
		return rag.Snapshot{}, fmt.Errorf("store: load: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e     rag.SnapshotEntry
			kind  string
			attrs string
			blob  []byte
			ts    int64
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Content, &kind, &e.OwnerScope, &e.Locator, &attrs, &blob, &ts); err != nil {
			return rag.Snapshot{}, fmt.Errorf("store: load scan: %w", err)
		}
		e.Kind = rag.Kind(kind)
		if attrs != "" && attrs != "{}" && attrs != "null" {
			if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
				return rag.Snapshot{}, fmt.Errorf("store: load %q attributes: %w", e.ID, err)
			}
		}
		e.Embedding, err = decodeVector(blob)
		if err != nil {
			return rag.Snapshot{}, fmt.Errorf("store: load %q: %w", e.ID, err)
		}
		e.IndexedAt = time.Unix(0, ts).UTC()

		snap.Entries[e.ID] = e
		snap.Order = append(snap.Order, e.ID)
	}
	if err := rows.Err(); err != nil {
		return rag.Snapshot{}, fmt.Errorf("store: load rows: %w", err)
	}
	return snap, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// setMeta upserts one meta key inside tx.
func setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	const q = `INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("store: set meta %s: %w", key, err)
	}
	return nil
}

// snapshotIDs returns the IDs of snap in Order first, then any remaining.
func snapshotIDs(snap rag.Snapshot) []string {
	seen := make(map[string]bool, len(snap.Entries))
	ids := make([]string, 0, len(snap.Entries))
	for _, id := range snap.Order {
		if _, ok := snap.Entries[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range snap.Entries {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// encodeVector packs v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// decodeVector unpacks a blob written by encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
