package querycache

import (
	"context"
	"fmt"

	"github.com/project-guardian/guardian/internal/kb"
)

// SyncStats reports what one sync pass changed.
type SyncStats struct {
	Upserted int
	Pruned   int
}

// Sync brings the cache in line with the record files: every record on
// disk is upserted and rows whose files are gone are pruned. Invalid
// record files are skipped by the reader, so they simply never reach
// the cache.
func (db *DB) Sync(ctx context.Context, k *kb.KB) (*SyncStats, error) {
	if err := db.InitSchema(ctx); err != nil {
		return nil, err
	}

	records, err := k.ReadAllRecords()
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	stats := &SyncStats{}
	live := make(map[string]bool, len(records))
	for _, rec := range records {
		if err := db.Upsert(ctx, rec); err != nil {
			return nil, err
		}
		live[rec.RecordID()] = true
		stats.Upserted++
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM records`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached records: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		if !live[id] {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range stale {
		if err := db.Delete(ctx, id); err != nil {
			return nil, err
		}
		stats.Pruned++
	}
	return stats, nil
}
