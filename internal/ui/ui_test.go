package ui

import (
	"strings"
	"testing"
)

// Tests run with stdout not attached to a terminal, so styling is off
// and the helpers must pass text through unchanged.

func TestPlainPassthrough(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"heading", Heading("Bugs"), "Bugs"},
		{"success", Success("recorded"), "recorded"},
		{"warn", Warn("stale"), "stale"},
		{"error", Error("not found"), "not found"},
		{"severity", Severity("critical"), "critical"},
		{"unknown severity", Severity("whatever"), "whatever"},
		{"id", ID("BUG-20260101120000-ab12"), "BUG-20260101120000-ab12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestScoreBands(t *testing.T) {
	for _, score := range []int{0, 59, 60, 74, 75, 100} {
		got := Score(score)
		if !strings.Contains(got, "/100") {
			t.Errorf("Score(%d) = %q, want n/100 form", score, got)
		}
	}
}

func TestTags(t *testing.T) {
	if got := Tags(nil); got != "" {
		t.Errorf("Tags(nil) = %q, want empty", got)
	}
	if got := Tags([]string{"auth", "session"}); got != "[auth, session]" {
		t.Errorf("Tags = %q", got)
	}
}

func TestKeyValue(t *testing.T) {
	if got := KeyValue("Status", "open"); got != "  Status: open" {
		t.Errorf("KeyValue = %q", got)
	}
}
