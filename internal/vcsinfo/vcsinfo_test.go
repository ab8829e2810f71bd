package vcsinfo

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/lockfile"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	k, err := kb.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	tr := New(k)
	tr.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	}
	return tr
}

func gitInit(t *testing.T, tr *Tracker) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", tr.kb.Root}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
}

func gitCommit(t *testing.T, tr *Tracker, message string) {
	t.Helper()
	cmd := exec.Command("git", "-C", tr.kb.Root, "commit", "-q", "--allow-empty", "-m", message)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v\n%s", err, out)
	}
}

func TestRecord_NoGit(t *testing.T) {
	tr := newTestTracker(t)

	label, err := tr.Record(context.Background(), UpdateInitialScan, nil, lockfile.Options{})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if label != "v1 (no git)" {
		t.Errorf("label = %q, want %q", label, "v1 (no git)")
	}

	history, err := tr.History()
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	if history[0].UpdateType != UpdateInitialScan {
		t.Errorf("UpdateType = %q, want %q", history[0].UpdateType, UpdateInitialScan)
	}
	if history[0].Git != nil {
		t.Errorf("Git = %+v, want nil", history[0].Git)
	}
	if history[0].Timestamp != "2026-03-14T09:30:00Z" {
		t.Errorf("Timestamp = %q", history[0].Timestamp)
	}
}

func TestRecord_WithGit(t *testing.T) {
	tr := newTestTracker(t)
	gitInit(t, tr)
	gitCommit(t, tr, "initial commit")

	label, err := tr.Record(context.Background(), UpdateIncremental,
		map[string]any{"added": []string{"a.go", "b.go"}}, lockfile.Options{})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !strings.HasPrefix(label, "v1 @ ") {
		t.Errorf("label = %q, want v1 @ <hash>", label)
	}

	history, err := tr.History()
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if history[0].Git == nil {
		t.Fatal("entry has no git info")
	}
	git := history[0].Git
	if git.Branch != "main" {
		t.Errorf("Branch = %q, want main", git.Branch)
	}
	if git.Message != "initial commit" {
		t.Errorf("Message = %q", git.Message)
	}
	if len(git.ShortHash) != 7 || !strings.HasPrefix(git.Hash, git.ShortHash) {
		t.Errorf("ShortHash = %q for hash %q", git.ShortHash, git.Hash)
	}
}

func TestCurrentCommit_NotARepo(t *testing.T) {
	tr := newTestTracker(t)
	if c := tr.CurrentCommit(context.Background()); c != nil {
		t.Errorf("CurrentCommit() = %+v, want nil", c)
	}
}

func TestAtCommit(t *testing.T) {
	tr := newTestTracker(t)
	gitInit(t, tr)
	gitCommit(t, tr, "first")

	if _, err := tr.Record(context.Background(), UpdateInitialScan, nil, lockfile.Options{}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	commit := tr.CurrentCommit(context.Background())
	if commit == nil {
		t.Fatal("no current commit")
	}

	entry, err := tr.AtCommit(commit.ShortHash)
	if err != nil {
		t.Fatalf("AtCommit() error = %v", err)
	}
	if entry == nil || entry.Git.Hash != commit.Hash {
		t.Errorf("AtCommit(%q) = %+v", commit.ShortHash, entry)
	}

	missing, err := tr.AtCommit("ffffffff")
	if err != nil {
		t.Fatalf("AtCommit() error = %v", err)
	}
	if missing != nil {
		t.Errorf("AtCommit(ffffffff) = %+v, want nil", missing)
	}
}

func TestRecent(t *testing.T) {
	tr := newTestTracker(t)
	for i := 0; i < 5; i++ {
		if _, err := tr.Record(context.Background(), UpdateManual, nil, lockfile.Options{}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	recent, err := tr.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("len(recent) = %d, want 2", len(recent))
	}
}

func TestBugsInRange(t *testing.T) {
	tr := newTestTracker(t)
	gitInit(t, tr)
	gitCommit(t, tr, "base")

	base := tr.CurrentCommit(context.Background())
	if base == nil {
		t.Fatal("no base commit")
	}

	gitCommit(t, tr, "fix BUG-20260101120000-ab12 crash on empty input")
	gitCommit(t, tr, "unrelated refactor")
	gitCommit(t, tr, "fixes BUG-20260102090000-cd34 and BUG-20260101120000-ab12")

	ids, err := tr.BugsInRange(context.Background(), base.Hash, "HEAD")
	if err != nil {
		t.Fatalf("BugsInRange() error = %v", err)
	}
	want := []string{"BUG-20260101120000-ab12", "BUG-20260102090000-cd34"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestAssociateBug(t *testing.T) {
	tr := newTestTracker(t)

	bug := &kb.Bug{
		ID:          kb.NewID(kb.KindBug),
		Title:       "login loop",
		Description: "session cookie dropped",
	}
	bug.SetDefaults()
	if err := tr.kb.WriteRecord(bug); err != nil {
		t.Fatalf("WriteRecord() error = %v", err)
	}

	if err := tr.AssociateBug(context.Background(), bug.ID, "abc1234", "def5678", lockfile.Options{}); err != nil {
		t.Fatalf("AssociateBug() error = %v", err)
	}

	got, err := tr.kb.ReadBug(bug.ID)
	if err != nil {
		t.Fatalf("ReadBug() error = %v", err)
	}
	if got.FixedInCommit != "abc1234" {
		t.Errorf("FixedInCommit = %q, want abc1234", got.FixedInCommit)
	}
	if got.IntroducedInCommit != "def5678" {
		t.Errorf("IntroducedInCommit = %q, want def5678", got.IntroducedInCommit)
	}

	if err := tr.AssociateBug(context.Background(), bug.ID, "", "", lockfile.Options{}); err == nil {
		t.Error("AssociateBug() with no commits should fail")
	}
}

func TestChangelog(t *testing.T) {
	tr := newTestTracker(t)

	if _, err := tr.Record(context.Background(), UpdateInitialScan, nil, lockfile.Options{}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	changes := map[string]any{
		"added":    []string{"x.go"},
		"modified": []string{"y.go", "z.go"},
	}
	if _, err := tr.Record(context.Background(), UpdateIncremental, changes, lockfile.Options{}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	log, err := tr.Changelog(0)
	if err != nil {
		t.Fatalf("Changelog() error = %v", err)
	}
	for _, want := range []string{
		"# Knowledge Base Changelog",
		"## Version 1 - 2026-03-14",
		"**Update Type**: initial_scan",
		"## Version 2 - 2026-03-14",
		"- Added 1 files",
		"- Modified 2 files",
	} {
		if !strings.Contains(log, want) {
			t.Errorf("changelog missing %q:\n%s", want, log)
		}
	}

	tail, err := tr.Changelog(1)
	if err != nil {
		t.Fatalf("Changelog(1) error = %v", err)
	}
	if strings.Contains(tail, "initial_scan") {
		t.Errorf("Changelog(1) should skip the first entry:\n%s", tail)
	}
}
