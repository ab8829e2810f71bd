package kb

import (
	"path/filepath"
	"time"

	"github.com/project-guardian/guardian/internal/lockfile"
)

// IndexFileName is the tag index file kept alongside bug records.
const IndexFileName = "_index.json"

// BugIndex aggregates bug summaries and a tag -> ids mapping so tag
// lookups do not have to scan every record file.
type BugIndex struct {
	Bugs []IndexEntry        `json:"bugs"`
	Tags map[string][]string `json:"tags"`
}

// IndexEntry is a compact bug summary in the index.
type IndexEntry struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Tags       []string  `json:"tags,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// IndexPath returns the bug tag index path.
func (k *KB) IndexPath() string {
	return filepath.Join(k.HistoryDir(KindBug), IndexFileName)
}

// UpdateBugIndex upserts a bug into the tag index under the file lock.
// An existing entry is replaced and the bug's tag memberships rebuilt,
// so tag edits take effect on the next write. The index is advisory:
// searches fall back to scanning when it is missing, so a failed index
// update is reported but recoverable by re-running.
func (k *KB) UpdateBugIndex(b *Bug, opts lockfile.Options) error {
	return lockfile.Update(k.IndexPath(), BugIndex{}, func(idx BugIndex) (BugIndex, error) {
		if idx.Tags == nil {
			idx.Tags = make(map[string][]string)
		}
		entry := IndexEntry{
			ID:         b.ID,
			Title:      b.Title,
			Tags:       b.Tags,
			RecordedAt: b.RecordedAt,
		}
		replaced := false
		for i, existing := range idx.Bugs {
			if existing.ID == b.ID {
				idx.Bugs[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			idx.Bugs = append(idx.Bugs, entry)
		}
		// Drop the bug from tags it no longer carries before re-adding.
		for tag, ids := range idx.Tags {
			kept := ids[:0]
			for _, id := range ids {
				if id != b.ID {
					kept = append(kept, id)
				}
			}
			if len(kept) == 0 {
				delete(idx.Tags, tag)
			} else {
				idx.Tags[tag] = kept
			}
		}
		for _, tag := range b.Tags {
			idx.Tags[tag] = append(idx.Tags[tag], b.ID)
		}
		return idx, nil
	}, opts)
}

// ReadBugIndex loads the tag index. Missing or corrupt files return an
// empty index and no error.
func (k *KB) ReadBugIndex(opts lockfile.Options) (BugIndex, error) {
	idx := BugIndex{}
	err := lockfile.Read(k.IndexPath(), &idx, opts)
	return idx, err
}

// RebuildBugIndex regenerates the index from the record files.
func (k *KB) RebuildBugIndex(opts lockfile.Options) error {
	bugs, err := k.ReadBugs()
	if err != nil {
		return err
	}
	fresh := BugIndex{Tags: make(map[string][]string)}
	for _, b := range bugs {
		fresh.Bugs = append(fresh.Bugs, IndexEntry{
			ID:         b.ID,
			Title:      b.Title,
			Tags:       b.Tags,
			RecordedAt: b.RecordedAt,
		})
		for _, tag := range b.Tags {
			fresh.Tags[tag] = append(fresh.Tags[tag], b.ID)
		}
	}
	return lockfile.Update(k.IndexPath(), fresh, func(BugIndex) (BugIndex, error) {
		return fresh, nil
	}, opts)
}
