// Package querycache maintains an embedded SQLite cache of the JSON
// record files for fast filtered queries. The JSON files stay the
// source of truth; the cache is rebuilt or incrementally synced from
// them and can always be deleted safely.
package querycache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/project-guardian/guardian/internal/kb"
)

// DB wraps the embedded SQLite connection backing the record cache.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the cache database at path with WAL
// mode for concurrent readers. The caller must Close it.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the cache tables and indexes. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		tags TEXT,  -- JSON array
		recorded_at TEXT NOT NULL,
		search_text TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS record_tags (
		record_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (record_id, tag),
		FOREIGN KEY (record_id) REFERENCES records(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
	CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
	CREATE INDEX IF NOT EXISTS idx_records_recorded ON records(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_records_kind_status ON records(kind, status);
	CREATE INDEX IF NOT EXISTS idx_record_tags_tag ON record_tags(tag);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Upsert inserts or replaces one record row and its tag rows.
func (db *DB) Upsert(ctx context.Context, rec kb.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	tagsJSON, err := json.Marshal(rec.RecordTags())
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO records (id, kind, title, status, tags, recorded_at, search_text)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		kind = excluded.kind,
		title = excluded.title,
		status = excluded.status,
		tags = excluded.tags,
		recorded_at = excluded.recorded_at,
		search_text = excluded.search_text
	`,
		rec.RecordID(),
		string(rec.Kind()),
		rec.RecordTitle(),
		rec.RecordStatus(),
		string(tagsJSON),
		rec.RecordedTime().UTC().Format(time.RFC3339),
		rec.SearchText(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.RecordID(), err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM record_tags WHERE record_id = ?`, rec.RecordID()); err != nil {
		return fmt.Errorf("failed to clear tags for %s: %w", rec.RecordID(), err)
	}
	for _, tag := range rec.RecordTags() {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO record_tags (record_id, tag) VALUES (?, ?)`, rec.RecordID(), tag); err != nil {
			return fmt.Errorf("failed to insert tag %q for %s: %w", tag, rec.RecordID(), err)
		}
	}

	return tx.Commit()
}

// Delete removes a record row. Idempotent.
func (db *DB) Delete(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// Row is one cached record summary.
type Row struct {
	ID         string
	Kind       kb.Kind
	Title      string
	Status     string
	Tags       []string
	RecordedAt time.Time
}

// CountByKind returns record counts grouped by kind.
func (db *DB) CountByKind(ctx context.Context) (map[kb.Kind]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT kind, COUNT(*) FROM records GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[kb.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[kb.Kind(kind)] = n
	}
	return counts, rows.Err()
}

// Fresh reports whether the cached row counts match the record files on
// disk. A mismatch means records were written since the last sync, so
// queries must fall back to scanning the files.
func (db *DB) Fresh(ctx context.Context, k *kb.KB) (bool, error) {
	counts, err := db.CountByKind(ctx)
	if err != nil {
		return false, err
	}
	for _, kind := range kb.Kinds() {
		if counts[kind] != k.CountRecords(kind) {
			return false, nil
		}
	}
	return true, nil
}

// ByTag returns records carrying tag, newest first.
func (db *DB) ByTag(ctx context.Context, tag string) ([]Row, error) {
	return db.queryRows(ctx, `
	SELECT r.id, r.kind, r.title, r.status, r.tags, r.recorded_at
	FROM records r
	JOIN record_tags rt ON rt.record_id = r.id
	WHERE rt.tag = ?
	ORDER BY r.recorded_at DESC
	`, tag)
}

// ByStatus returns records of kind with the given status, newest first.
func (db *DB) ByStatus(ctx context.Context, kind kb.Kind, status string) ([]Row, error) {
	return db.queryRows(ctx, `
	SELECT id, kind, title, status, tags, recorded_at
	FROM records
	WHERE kind = ? AND status = ?
	ORDER BY recorded_at DESC
	`, string(kind), status)
}

// Recent returns the newest records across all kinds.
func (db *DB) Recent(ctx context.Context, limit int) ([]Row, error) {
	return db.queryRows(ctx, `
	SELECT id, kind, title, status, tags, recorded_at
	FROM records
	ORDER BY recorded_at DESC
	LIMIT ?
	`, limit)
}

func (db *DB) queryRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var kind, tagsJSON, recordedAt string
		if err := rows.Scan(&r.ID, &kind, &r.Title, &r.Status, &tagsJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		r.Kind = kb.Kind(kind)
		if tagsJSON != "" {
			if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
				r.Tags = nil
			}
		}
		if t, err := time.Parse(time.RFC3339, recordedAt); err == nil {
			r.RecordedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
