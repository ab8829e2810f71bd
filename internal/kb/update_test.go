package kb

import (
	"strings"
	"testing"

	"github.com/project-guardian/guardian/internal/lockfile"
)

func TestUpdateRecord_Bug(t *testing.T) {
	k, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	bug := &Bug{Title: "cache returns stale entries", Description: "TTL never checked on read", Status: "open"}
	bug.SetDefaults()
	bug.ID = NewID(KindBug)
	if err := k.WriteRecord(bug); err != nil {
		t.Fatalf("WriteRecord() error = %v", err)
	}

	rec, err := k.UpdateRecord(bug.ID, map[string]any{
		"status":   "resolved",
		"solution": "check expiry before returning cached value",
	}, lockfile.Options{})
	if err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}

	got, ok := rec.(*Bug)
	if !ok {
		t.Fatalf("UpdateRecord() returned %T, want *Bug", rec)
	}
	if got.Status != "resolved" {
		t.Errorf("Status = %q, want resolved", got.Status)
	}
	if got.Solution == "" {
		t.Error("Solution not applied")
	}
	if got.FixedAt == "" {
		t.Error("FixedAt not stamped on resolve")
	}

	// The change must be visible on a fresh read.
	reread, err := k.ReadBug(bug.ID)
	if err != nil {
		t.Fatalf("ReadBug() error = %v", err)
	}
	if reread.Status != "resolved" {
		t.Errorf("persisted Status = %q, want resolved", reread.Status)
	}
}

func TestUpdateRecord_Errors(t *testing.T) {
	k, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	bug := &Bug{Title: "initial", Description: "initial"}
	bug.SetDefaults()
	bug.ID = NewID(KindBug)
	if err := k.WriteRecord(bug); err != nil {
		t.Fatalf("WriteRecord() error = %v", err)
	}

	tests := []struct {
		name   string
		id     string
		fields map[string]any
		errMsg string
	}{
		{
			name:   "unknown record",
			id:     "BUG-20200101000000-dead",
			fields: map[string]any{"status": "closed"},
			errMsg: "not found",
		},
		{
			name:   "malformed id",
			id:     "nope",
			fields: map[string]any{"status": "closed"},
			errMsg: "",
		},
		{
			name:   "unknown field",
			id:     bug.ID,
			fields: map[string]any{"assignee": "pat"},
			errMsg: "cannot update field",
		},
		{
			name:   "invalid status value",
			id:     bug.ID,
			fields: map[string]any{"status": "wontfix"},
			errMsg: "status",
		},
		{
			name:   "wrong value type",
			id:     bug.ID,
			fields: map[string]any{"status": 7},
			errMsg: "string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := k.UpdateRecord(tt.id, tt.fields, lockfile.Options{})
			if err == nil {
				t.Fatal("UpdateRecord() error = nil, want error")
			}
			if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want containing %q", err, tt.errMsg)
			}
		})
	}

	// Failed updates must not mangle the record on disk.
	got, err := k.ReadBug(bug.ID)
	if err != nil {
		t.Fatalf("ReadBug() error = %v", err)
	}
	if got.Status != bug.Status {
		t.Errorf("Status = %q after failed updates, want %q", got.Status, bug.Status)
	}
}

func TestRecordWrites_AppendToTxLog(t *testing.T) {
	k, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	bug := &Bug{Title: "import drops empty tags", Description: "tags key omitted on export"}
	bug.SetDefaults()
	bug.ID = NewID(KindBug)
	if err := k.WriteRecord(bug); err != nil {
		t.Fatalf("WriteRecord() error = %v", err)
	}
	if _, err := k.UpdateRecord(bug.ID, map[string]any{"status": "closed"}, lockfile.Options{}); err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}

	entries, err := lockfile.NewTxLog(k.TxLogPath()).Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("txlog has %d entries, want 2", len(entries))
	}
	if entries[0].Operation != "create" {
		t.Errorf("entries[0].Operation = %q, want create", entries[0].Operation)
	}
	if entries[1].Operation != "update" {
		t.Errorf("entries[1].Operation = %q, want update", entries[1].Operation)
	}
	if !strings.Contains(entries[0].FilePath, bug.ID) {
		t.Errorf("entries[0].FilePath = %q, want the record file for %s", entries[0].FilePath, bug.ID)
	}
}

func TestUpdateRecord_Requirement(t *testing.T) {
	k, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	req := &Requirement{Title: "export to JSONL", Description: "records portable across machines"}
	req.SetDefaults()
	req.ID = NewID(KindRequirement)
	if err := k.WriteRecord(req); err != nil {
		t.Fatalf("WriteRecord() error = %v", err)
	}

	rec, err := k.UpdateRecord(req.ID, map[string]any{"status": "completed", "priority": "high"}, lockfile.Options{})
	if err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}
	got := rec.(*Requirement)
	if got.Status != "completed" || got.Priority != "high" {
		t.Errorf("got status=%q priority=%q, want completed/high", got.Status, got.Priority)
	}
}
