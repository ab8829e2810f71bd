package watch

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/lockfile"
	"github.com/project-guardian/guardian/internal/querycache"
)

func quietConfig() *Config {
	return &Config{
		UpdateInterval:   time.Hour,
		DebounceInterval: 20 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	}
}

func newTestDaemon(t *testing.T, withDB bool) (*Daemon, *kb.KB) {
	t.Helper()

	k, err := kb.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	var db *querycache.DB
	if withDB {
		db, err = querycache.Open(k.CachePath())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		if err := db.InitSchema(context.Background()); err != nil {
			t.Fatalf("InitSchema() error = %v", err)
		}
	}

	d, err := New(k, db, quietConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { d.cancel() })
	return d, k
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) seen(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

func writeBug(t *testing.T, k *kb.KB, title string) *kb.Bug {
	t.Helper()
	bug := &kb.Bug{
		ID:          kb.NewID(kb.KindBug),
		Title:       title,
		Description: "description of " + title,
		Tags:        []string{"watch"},
	}
	bug.SetDefaults()
	if err := k.WriteRecord(bug); err != nil {
		t.Fatalf("WriteRecord() error = %v", err)
	}
	return bug
}

func TestNew_RequiresKB(t *testing.T) {
	if _, err := New(nil, nil, nil); err == nil {
		t.Fatal("New(nil) should fail")
	}
}

func TestInteresting(t *testing.T) {
	d, k := newTestDaemon(t, false)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"bug record", filepath.Join(k.HistoryDir(kb.KindBug), "BUG-20260101120000-ab12.json"), true},
		{"decision record", filepath.Join(k.HistoryDir(kb.KindDecision), "DEC-20260101120000-ab12.json"), true},
		{"index file", filepath.Join(k.HistoryDir(kb.KindBug), "_index.json"), false},
		{"non-json in history", filepath.Join(k.HistoryDir(kb.KindBug), "notes.txt"), false},
		{"root config", filepath.Join(k.Root, "package.json"), true},
		{"root go.mod", filepath.Join(k.Root, "go.mod"), true},
		{"root source file", filepath.Join(k.Root, "main.go"), false},
		{"nested config", filepath.Join(k.Root, "sub", "package.json"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.interesting(tt.path); got != tt.want {
				t.Errorf("interesting(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSyncRecordFile_Upsert(t *testing.T) {
	d, k := newTestDaemon(t, true)
	notifier := &recordingNotifier{}
	d.SetNotifier(notifier)

	bug := writeBug(t, k, "watcher sees new bug")
	path := k.RecordPath(kb.KindBug, bug.ID)

	if err := d.syncRecordFile(path); err != nil {
		t.Fatalf("syncRecordFile() error = %v", err)
	}

	rows, err := d.db.ByTag(context.Background(), "watch")
	if err != nil {
		t.Fatalf("ByTag() error = %v", err)
	}
	if len(rows) != 1 || rows[0].ID != bug.ID {
		t.Errorf("rows = %+v, want one row for %s", rows, bug.ID)
	}

	index, err := k.ReadBugIndex(lockfile.Options{})
	if err != nil {
		t.Fatalf("ReadBugIndex() error = %v", err)
	}
	if len(index.Bugs) != 1 {
		t.Errorf("bug index has %d entries, want 1", len(index.Bugs))
	}

	if !notifier.seen("record-update") {
		t.Error("record-update event not emitted")
	}
}

func TestSyncRecordFile_Delete(t *testing.T) {
	d, k := newTestDaemon(t, true)

	bug := writeBug(t, k, "soon gone")
	path := k.RecordPath(kb.KindBug, bug.ID)
	if err := d.syncRecordFile(path); err != nil {
		t.Fatalf("syncRecordFile() error = %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := d.syncRecordFile(path); err != nil {
		t.Fatalf("syncRecordFile() after delete error = %v", err)
	}

	counts, err := d.db.CountByKind(context.Background())
	if err != nil {
		t.Fatalf("CountByKind() error = %v", err)
	}
	if counts[kb.KindBug] != 0 {
		t.Errorf("bug count = %d, want 0", counts[kb.KindBug])
	}

	index, err := k.ReadBugIndex(lockfile.Options{})
	if err != nil {
		t.Fatalf("ReadBugIndex() error = %v", err)
	}
	if len(index.Bugs) != 0 {
		t.Errorf("bug index has %d entries, want 0", len(index.Bugs))
	}
}

func TestSyncRecordFile_BadID(t *testing.T) {
	d, k := newTestDaemon(t, false)
	path := filepath.Join(k.HistoryDir(kb.KindBug), "garbage.json")
	if err := d.syncRecordFile(path); err == nil {
		t.Fatal("syncRecordFile() should reject malformed ids")
	}
}

func TestStart_SyncsAndShutsDown(t *testing.T) {
	d, k := newTestDaemon(t, true)
	notifier := &recordingNotifier{}
	d.SetNotifier(notifier)

	writeBug(t, k, "present before start")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		counts, err := d.db.CountByKind(context.Background())
		if err == nil && counts[kb.KindBug] == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("initial sync did not reach the query cache")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() returned error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}

	if !notifier.seen("sync-complete") {
		t.Error("sync-complete event not emitted")
	}
}

func TestProcessPendingChanges_Debounce(t *testing.T) {
	d, k := newTestDaemon(t, true)

	bug := writeBug(t, k, "debounced")
	path := k.RecordPath(kb.KindBug, bug.ID)

	d.queueChange(path)
	d.processPendingChanges()

	if counts, _ := d.db.CountByKind(context.Background()); counts[kb.KindBug] != 0 {
		t.Fatal("change processed before debounce interval elapsed")
	}

	time.Sleep(2 * d.config.DebounceInterval)
	d.processPendingChanges()

	counts, err := d.db.CountByKind(context.Background())
	if err != nil {
		t.Fatalf("CountByKind() error = %v", err)
	}
	if counts[kb.KindBug] != 1 {
		t.Errorf("bug count = %d, want 1", counts[kb.KindBug])
	}
}
