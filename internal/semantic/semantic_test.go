package semantic

import (
	"strings"
	"testing"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/search"
)

func match(id, title string) search.Match {
	return search.Match{Record: &kb.Bug{ID: id, Title: title}, Score: 1}
}

func TestParseRanking(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    []string
		wantErr bool
	}{
		{
			name:  "bare array",
			reply: `["BUG-1", "BUG-2"]`,
			want:  []string{"BUG-1", "BUG-2"},
		},
		{
			name:  "array with surrounding prose",
			reply: "Here is the ranking:\n[\"BUG-2\", \"BUG-1\"]\nHope that helps.",
			want:  []string{"BUG-2", "BUG-1"},
		},
		{
			name:    "no array",
			reply:   "I cannot rank these.",
			wantErr: true,
		},
		{
			name:    "empty array",
			reply:   "[]",
			wantErr: true,
		},
		{
			name:    "malformed json",
			reply:   `["BUG-1",`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRanking(tt.reply)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseRanking() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRanking() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseRanking() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseRanking()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestApplyRanking(t *testing.T) {
	matches := []search.Match{
		match("BUG-1", "first"),
		match("BUG-2", "second"),
		match("BUG-3", "third"),
	}

	t.Run("full reorder", func(t *testing.T) {
		got := applyRanking(matches, []string{"BUG-3", "BUG-1", "BUG-2"})
		wantOrder := []string{"BUG-3", "BUG-1", "BUG-2"}
		for i, id := range wantOrder {
			if got[i].Record.RecordID() != id {
				t.Errorf("got[%d] = %s, want %s", i, got[i].Record.RecordID(), id)
			}
		}
	})

	t.Run("omitted records keep keyword order", func(t *testing.T) {
		got := applyRanking(matches, []string{"BUG-2"})
		wantOrder := []string{"BUG-2", "BUG-1", "BUG-3"}
		for i, id := range wantOrder {
			if got[i].Record.RecordID() != id {
				t.Errorf("got[%d] = %s, want %s", i, got[i].Record.RecordID(), id)
			}
		}
	})

	t.Run("unknown and duplicate ids ignored", func(t *testing.T) {
		got := applyRanking(matches, []string{"BUG-9", "BUG-1", "BUG-1"})
		if len(got) != len(matches) {
			t.Fatalf("len = %d, want %d", len(got), len(matches))
		}
		if got[0].Record.RecordID() != "BUG-1" {
			t.Errorf("got[0] = %s, want BUG-1", got[0].Record.RecordID())
		}
	})
}

func TestBuildPrompt(t *testing.T) {
	matches := []search.Match{
		{Record: &kb.Bug{ID: "BUG-1", Title: "pool exhausted", Tags: []string{"db", "pool"}}, Score: 1},
	}
	prompt := buildPrompt("connection pool", matches)

	for _, want := range []string{"connection pool", "BUG-1", "pool exhausted", "[db, pool]", "JSON array"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if Available() {
		t.Fatal("Available() = true with empty key")
	}
	if _, err := New(); err == nil {
		t.Error("New() error = nil without API key")
	}
}
