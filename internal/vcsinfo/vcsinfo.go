// Package vcsinfo tracks git commits alongside knowledge base updates.
//
// Every scan or incremental update can record a version entry in
// core/version-history.json that captures the commit the knowledge base
// was built against. Bug records can be associated with the commits that
// introduced or fixed them, and commit ranges can be scanned for bug ids
// mentioned in commit messages.
package vcsinfo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/lockfile"
)

// VersionFileName is the history file under the core directory.
const VersionFileName = "version-history.json"

// Update types recorded in version entries.
const (
	UpdateInitialScan = "initial_scan"
	UpdateIncremental = "incremental_update"
	UpdateManual      = "manual_update"
)

var bugIDPattern = regexp.MustCompile(`BUG-\d{14}-[a-f0-9]{4}`)

// Commit describes a single git commit.
type Commit struct {
	Hash      string `json:"hash"`
	ShortHash string `json:"short_hash"`
	Message   string `json:"message"`
	Author    string `json:"author"`
	Date      string `json:"date"`
	Branch    string `json:"branch"`
}

// CommitStats summarizes the files touched by a commit.
type CommitStats struct {
	FilesChanged []string `json:"files_changed"`
	TotalFiles   int      `json:"total_files"`
	Stats        string   `json:"stats"`
}

// GitInfo is the commit detail attached to a version entry.
type GitInfo struct {
	Commit
	Stats *CommitStats `json:"stats,omitempty"`
}

// Entry is one record in the version history.
type Entry struct {
	Timestamp  string         `json:"timestamp"`
	UpdateType string         `json:"update_type"`
	Changes    map[string]any `json:"changes"`
	Git        *GitInfo       `json:"git,omitempty"`
}

// Tracker reads git state for a project and maintains its version history.
type Tracker struct {
	kb  *kb.KB
	now func() time.Time
}

// New creates a Tracker for an initialized knowledge base.
func New(k *kb.KB) *Tracker {
	return &Tracker{kb: k, now: time.Now}
}

// VersionPath returns the version history file path.
func (t *Tracker) VersionPath() string {
	return t.kb.CoreFile(VersionFileName)
}

// IsRepo reports whether the project root is a git repository.
func (t *Tracker) IsRepo() bool {
	_, err := os.Stat(filepath.Join(t.kb.Root, ".git"))
	return err == nil
}

func (t *Tracker) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", t.kb.Root}, args...)...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(output)), nil
}

// CurrentCommit returns information about HEAD, or nil when the project
// is not a git repository or has no commits yet.
func (t *Tracker) CurrentCommit(ctx context.Context) *Commit {
	if !t.IsRepo() {
		return nil
	}

	hash, err := t.git(ctx, "rev-parse", "HEAD")
	if err != nil || hash == "" {
		return nil
	}

	message, _ := t.git(ctx, "log", "-1", "--pretty=%B")
	author, _ := t.git(ctx, "log", "-1", "--pretty=%an")
	date, _ := t.git(ctx, "log", "-1", "--pretty=%ai")
	branch, err := t.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || branch == "" {
		branch = "unknown"
	}

	short := hash
	if len(short) > 7 {
		short = short[:7]
	}

	return &Commit{
		Hash:      hash,
		ShortHash: short,
		Message:   message,
		Author:    author,
		Date:      date,
		Branch:    branch,
	}
}

// CommitStats returns the file list and diffstat for a commit.
func (t *Tracker) CommitStats(ctx context.Context, hash string) *CommitStats {
	if !t.IsRepo() {
		return nil
	}

	var files []string
	if out, err := t.git(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", hash); err == nil && out != "" {
		files = strings.Split(out, "\n")
	}

	stats, _ := t.git(ctx, "show", "--stat", "--oneline", hash)

	return &CommitStats{
		FilesChanged: files,
		TotalFiles:   len(files),
		Stats:        stats,
	}
}

// Record appends a version entry under the file lock and returns a short
// label like "v3 @ ab12cd3" describing the new version.
func (t *Tracker) Record(ctx context.Context, updateType string, changes map[string]any, opts lockfile.Options) (string, error) {
	entry := Entry{
		Timestamp:  t.now().UTC().Format(time.RFC3339),
		UpdateType: updateType,
		Changes:    changes,
	}
	if entry.Changes == nil {
		entry.Changes = map[string]any{}
	}

	commit := t.CurrentCommit(ctx)
	if commit != nil {
		entry.Git = &GitInfo{
			Commit: *commit,
			Stats:  t.CommitStats(ctx, commit.Hash),
		}
	}

	var count int
	err := lockfile.Update(t.VersionPath(), []Entry{}, func(history []Entry) ([]Entry, error) {
		history = append(history, entry)
		count = len(history)
		return history, nil
	}, opts)
	if err != nil {
		return "", fmt.Errorf("recording version: %w", err)
	}

	if commit != nil {
		return fmt.Sprintf("v%d @ %s", count, commit.ShortHash), nil
	}
	return fmt.Sprintf("v%d (no git)", count), nil
}

// History returns the full version history, oldest first.
func (t *Tracker) History() ([]Entry, error) {
	var history []Entry
	if err := lockfile.Read(t.VersionPath(), &history, lockfile.Options{}); err != nil {
		return nil, fmt.Errorf("reading version history: %w", err)
	}
	return history, nil
}

// Recent returns up to limit of the newest version entries, oldest first.
func (t *Tracker) Recent(limit int) ([]Entry, error) {
	history, err := t.History()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

// AtCommit finds the newest version entry whose commit hash starts with
// the given prefix, or nil when none matches.
func (t *Tracker) AtCommit(prefix string) (*Entry, error) {
	history, err := t.History()
	if err != nil {
		return nil, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Git != nil && strings.HasPrefix(history[i].Git.Hash, prefix) {
			return &history[i], nil
		}
	}
	return nil, nil
}

// AssociateBug stamps commit hashes onto a bug record. Either hash may be
// empty to leave that association unchanged.
func (t *Tracker) AssociateBug(ctx context.Context, bugID, fixedIn, introducedIn string, opts lockfile.Options) error {
	fields := map[string]any{}
	if fixedIn != "" {
		fields["fixed_in_commit"] = fixedIn
	}
	if introducedIn != "" {
		fields["introduced_in_commit"] = introducedIn
	}
	if len(fields) == 0 {
		return fmt.Errorf("no commit association given for %s", bugID)
	}

	if _, err := t.kb.UpdateRecord(bugID, fields, opts); err != nil {
		return err
	}
	return nil
}

// BugsInRange scans commit messages between two commits for bug ids.
// The result is sorted and deduplicated.
func (t *Tracker) BugsInRange(ctx context.Context, start, end string) ([]string, error) {
	if !t.IsRepo() {
		return nil, nil
	}
	if end == "" {
		end = "HEAD"
	}

	log, err := t.git(ctx, "log", start+".."+end, "--pretty=%H %s")
	if err != nil {
		return nil, err
	}
	if log == "" {
		return nil, nil
	}

	seen := map[string]bool{}
	var ids []string
	for _, line := range strings.Split(log, "\n") {
		for _, id := range bugIDPattern.FindAllString(line, -1) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Changelog renders the version history as markdown. sinceVersion skips
// that many leading entries; pass 0 for the full history.
func (t *Tracker) Changelog(sinceVersion int) (string, error) {
	history, err := t.History()
	if err != nil {
		return "", err
	}
	if sinceVersion > 0 && sinceVersion < len(history) {
		history = history[sinceVersion:]
	} else if sinceVersion >= len(history) {
		history = nil
	}

	var b strings.Builder
	b.WriteString("# Knowledge Base Changelog\n\n")

	for i, entry := range history {
		date := entry.Timestamp
		if len(date) > 10 {
			date = date[:10]
		}

		if entry.Git != nil {
			firstLine, _, _ := strings.Cut(entry.Git.Message, "\n")
			fmt.Fprintf(&b, "## Version %d - %s (%s)\n", i+1, date, entry.Git.ShortHash)
			fmt.Fprintf(&b, "**Commit**: %s\n", firstLine)
		} else {
			fmt.Fprintf(&b, "## Version %d - %s\n", i+1, date)
		}
		fmt.Fprintf(&b, "**Update Type**: %s\n\n", entry.UpdateType)

		for _, key := range []string{"added", "modified", "deleted"} {
			if n := changeCount(entry.Changes, key); n > 0 {
				verb := strings.ToUpper(key[:1]) + key[1:]
				fmt.Fprintf(&b, "- %s %d files\n", verb, n)
			}
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

func changeCount(changes map[string]any, key string) int {
	switch v := changes[key].(type) {
	case []string:
		return len(v)
	case []any:
		return len(v)
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
