package search

import (
	"testing"
	"time"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/lockfile"
)

func seedKB(t *testing.T) *kb.KB {
	t.Helper()
	k, err := kb.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return k
}

func seedBug(t *testing.T, k *kb.KB, title, description string, tags []string, at time.Time) *kb.Bug {
	t.Helper()
	b := &kb.Bug{Title: title, Description: description, Tags: tags}
	b.SetDefaults()
	b.RecordedAt = at
	b.ID = kb.NewIDAt(kb.KindBug, at)
	if err := k.WriteRecord(b); err != nil {
		t.Fatalf("WriteRecord(%q) error = %v", title, err)
	}
	return b
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "strips punctuation and stop words",
			in:   "The cache is stale, and the pool leaks!",
			want: []string{"cache", "stale", "pool", "leaks"},
		},
		{
			name: "drops short tokens",
			in:   "db io fix up",
			want: []string{"fix"},
		},
		{
			name: "empty input",
			in:   "",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	bug := &kb.Bug{
		Title:       "database connection timeout",
		Description: "connections dropped after idle timeout in the pool",
		Tags:        []string{"database", "timeout"},
	}

	if got := Similarity("connection timeout", bug); got <= 0 {
		t.Errorf("Similarity(overlapping query) = %v, want > 0", got)
	}
	if got := Similarity("frontend rendering glitch", bug); got != 0 {
		t.Errorf("Similarity(unrelated query) = %v, want 0", got)
	}
	if got := Similarity("", bug); got != 0 {
		t.Errorf("Similarity(empty query) = %v, want 0", got)
	}

	// A whole-phrase title hit must outrank partial overlap.
	partial := Similarity("timeout somewhere else entirely happening", bug)
	phrase := Similarity("database connection timeout", bug)
	if phrase <= partial {
		t.Errorf("phrase score %v not greater than partial score %v", phrase, partial)
	}
}

func TestSearch_RankingAndTopK(t *testing.T) {
	k := seedKB(t)
	now := time.Now()

	best := seedBug(t, k, "websocket handshake fails", "handshake rejected by origin check", nil, now.Add(-1*time.Hour))
	seedBug(t, k, "handshake retries exhausted", "network flaked during the handshake", nil, now.Add(-2*time.Hour))
	seedBug(t, k, "unrelated parser crash", "panic on empty input", nil, now.Add(-3*time.Hour))
	seedBug(t, k, "handshake logging too verbose", "noise in the logs during handshake", nil, now.Add(-4*time.Hour))

	matches, err := New(k).Search(kb.KindBug, "websocket handshake fails", Options{TopK: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Search() = %d matches, want 2", len(matches))
	}
	if matches[0].Record.RecordID() != best.ID {
		t.Errorf("top match = %q, want %q", matches[0].Record.RecordTitle(), best.Title)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("matches not sorted: %v < %v", matches[0].Score, matches[1].Score)
	}
	for _, m := range matches {
		if m.Record.RecordTitle() == "unrelated parser crash" {
			t.Error("zero-overlap record included in results")
		}
	}
}

func TestSearch_Since(t *testing.T) {
	k := seedKB(t)
	now := time.Now()

	seedBug(t, k, "old handshake bug", "ancient handshake failure", nil, now.Add(-30*24*time.Hour))
	recent := seedBug(t, k, "new handshake bug", "fresh handshake failure", nil, now.Add(-time.Hour))

	matches, err := New(k).Search(kb.KindBug, "handshake failure", Options{Since: now.Add(-7 * 24 * time.Hour)})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Search() = %d matches, want 1", len(matches))
	}
	if matches[0].Record.RecordID() != recent.ID {
		t.Errorf("match = %q, want the recent record", matches[0].Record.RecordTitle())
	}
}

func TestSearchByTags_UsesIndex(t *testing.T) {
	k := seedKB(t)
	now := time.Now()

	tagged := seedBug(t, k, "flaky watcher", "events dropped", []string{"watcher"}, now)
	seedBug(t, k, "slow scan", "walk too slow", []string{"scanner"}, now.Add(-time.Minute))

	if err := k.UpdateBugIndex(tagged, lockfile.Options{}); err != nil {
		t.Fatalf("UpdateBugIndex() error = %v", err)
	}

	results, err := New(k).SearchByTags(kb.KindBug, []string{"watcher"})
	if err != nil {
		t.Fatalf("SearchByTags() error = %v", err)
	}
	if len(results) != 1 || results[0].RecordID() != tagged.ID {
		t.Errorf("SearchByTags() = %v, want the watcher bug only", results)
	}
}

func TestSearchByTags_AfterTagEdit(t *testing.T) {
	k := seedKB(t)
	now := time.Now()

	bug := seedBug(t, k, "checkout times out", "payment gateway stalls", []string{"auth"}, now)
	if err := k.UpdateBugIndex(bug, lockfile.Options{}); err != nil {
		t.Fatalf("UpdateBugIndex() error = %v", err)
	}

	if _, err := k.UpdateRecord(bug.ID, map[string]any{"tags": []string{"payment"}}, lockfile.Options{}); err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}

	s := New(k)
	old, err := s.SearchByTags(kb.KindBug, []string{"auth"})
	if err != nil {
		t.Fatalf("SearchByTags(auth) error = %v", err)
	}
	if len(old) != 0 {
		t.Errorf("old tag still resolves: got %d results, want 0", len(old))
	}

	cur, err := s.SearchByTags(kb.KindBug, []string{"payment"})
	if err != nil {
		t.Fatalf("SearchByTags(payment) error = %v", err)
	}
	if len(cur) != 1 || cur[0].RecordID() != bug.ID {
		t.Errorf("new tag: got %v, want the edited bug only", cur)
	}
}

func TestSearchByTags_FallsBackToScan(t *testing.T) {
	k := seedKB(t)
	now := time.Now()

	// No index written: the scan path must still find tagged records.
	tagged := seedBug(t, k, "flaky watcher", "events dropped", []string{"watcher", "flaky"}, now)
	seedBug(t, k, "slow scan", "walk too slow", []string{"scanner"}, now.Add(-time.Minute))

	results, err := New(k).SearchByTags(kb.KindBug, []string{"flaky"})
	if err != nil {
		t.Fatalf("SearchByTags() error = %v", err)
	}
	if len(results) != 1 || results[0].RecordID() != tagged.ID {
		t.Errorf("SearchByTags() = %d results, want the flaky bug only", len(results))
	}
}
