// Package export streams knowledge base records to and from JSONL backups.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/lockfile"
)

// ImportResult contains statistics about an import run.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []string
}

// Write streams every record as one JSON object per line, bugs first,
// then requirements, then decisions. Returns the number of records
// written.
func Write(k *kb.KB, w io.Writer) (int, error) {
	records, err := k.ReadAllRecords()
	if err != nil {
		return 0, fmt.Errorf("reading records: %w", err)
	}

	encoder := json.NewEncoder(w)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return 0, fmt.Errorf("encoding %s: %w", rec.RecordID(), err)
		}
	}

	return len(records), nil
}

// WriteFile exports to a file, writing via a temp file and renaming so a
// failed export never leaves a truncated backup behind.
func WriteFile(k *kb.KB, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("creating export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("creating export file: %w", err)
	}

	count, err := Write(k, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming export file: %w", err)
	}

	return count, nil
}

// Read imports JSONL records into the knowledge base. Records whose id
// already exists are skipped, invalid lines are collected as errors
// rather than aborting the whole import.
func Read(k *kb.KB, r io.Reader, opts lockfile.Options) (*ImportResult, error) {
	result := &ImportResult{}
	decoder := json.NewDecoder(r)
	line := 0

	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", line+1, err)
		}
		line++

		rec, err := decodeRecord(raw)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		kind := rec.Kind()
		if _, err := os.Stat(k.RecordPath(kind, rec.RecordID())); err == nil {
			result.Skipped++
			continue
		}

		if err := k.WriteRecord(rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if bug, ok := rec.(*kb.Bug); ok {
			if err := k.UpdateBugIndex(bug, opts); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: indexing %s: %v", line, bug.ID, err))
			}
		}
		result.Imported++
	}

	return result, nil
}

// ReadFile imports from a JSONL file on disk.
func ReadFile(k *kb.KB, path string, opts lockfile.Options) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	return Read(k, f, opts)
}

func decodeRecord(raw json.RawMessage) (kb.Record, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	kind, err := kb.KindForID(head.ID)
	if err != nil {
		return nil, err
	}

	var rec kb.Record
	switch kind {
	case kb.KindBug:
		b := &kb.Bug{}
		if err := json.Unmarshal(raw, b); err != nil {
			return nil, err
		}
		b.SetDefaults()
		rec = b
	case kb.KindRequirement:
		r := &kb.Requirement{}
		if err := json.Unmarshal(raw, r); err != nil {
			return nil, err
		}
		r.SetDefaults()
		rec = r
	case kb.KindDecision:
		d := &kb.Decision{}
		if err := json.Unmarshal(raw, d); err != nil {
			return nil, err
		}
		d.SetDefaults()
		rec = d
	default:
		return nil, fmt.Errorf("unsupported record kind %q", kind)
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
