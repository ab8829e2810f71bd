package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Kind identifies a record type.
type Kind string

const (
	KindBug         Kind = "bug"
	KindRequirement Kind = "requirement"
	KindDecision    Kind = "decision"
)

// Kinds returns all record kinds in display order.
func Kinds() []Kind {
	return []Kind{KindBug, KindRequirement, KindDecision}
}

// ParseKind converts a user-supplied kind name, accepting common
// abbreviations.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bug", "bugs":
		return KindBug, nil
	case "requirement", "requirements", "req":
		return KindRequirement, nil
	case "decision", "decisions", "dec":
		return KindDecision, nil
	}
	return "", fmt.Errorf("unknown record kind %q (want bug, requirement, or decision)", s)
}

// Prefix returns the record ID prefix for the kind.
func (k Kind) Prefix() string {
	switch k {
	case KindBug:
		return "BUG"
	case KindRequirement:
		return "REQ"
	case KindDecision:
		return "DEC"
	}
	return "REC"
}

// DirName returns the history subdirectory for the kind.
func (k Kind) DirName() string {
	switch k {
	case KindBug:
		return "bugs"
	case KindRequirement:
		return "requirements"
	case KindDecision:
		return "decisions"
	}
	return string(k)
}

// Record is the common behavior of bug, requirement, and decision files.
// Records are flat JSON documents: created once, status-updatable, never
// hard-deleted.
type Record interface {
	Kind() Kind
	RecordID() string
	RecordTitle() string
	RecordedTime() time.Time
	RecordTags() []string
	RecordStatus() string
	// SearchText is the concatenated free text used by similarity search.
	SearchText() string
	Validate() error
}

// Severity and priority levels shared by bugs and requirements.
var severityLevels = map[string]bool{
	"low": true, "medium": true, "high": true, "critical": true,
}

var bugStatuses = map[string]bool{
	"open": true, "in-progress": true, "resolved": true, "closed": true,
}

var requirementStatuses = map[string]bool{
	"planned": true, "in-progress": true, "completed": true, "cancelled": true,
}

var decisionStatuses = map[string]bool{
	"proposed": true, "accepted": true, "rejected": true, "deprecated": true,
}

// maxTitleLen caps record titles.
const maxTitleLen = 200

// Bug records a defect: what went wrong, why, and how it was fixed.
type Bug struct {
	ID           string    `json:"id"`
	RecordedAt   time.Time `json:"recorded_at"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	RootCause    string    `json:"root_cause,omitempty"`
	Solution     string    `json:"solution,omitempty"`
	FilesChanged []string  `json:"files_changed,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Severity     string    `json:"severity"`
	Status       string    `json:"status"`

	// Commit association, filled in by 'pg versions' or --fixed-commit.
	FixedInCommit      string `json:"fixed_in_commit,omitempty"`
	IntroducedInCommit string `json:"introduced_in_commit,omitempty"`
	FixedAt            string `json:"fixed_at,omitempty"`
}

func (b *Bug) Kind() Kind { return KindBug }
func (b *Bug) RecordID() string { return b.ID }
func (b *Bug) RecordTitle() string { return b.Title }
func (b *Bug) RecordedTime() time.Time { return b.RecordedAt }
func (b *Bug) RecordTags() []string { return b.Tags }
func (b *Bug) RecordStatus() string { return b.Status }

func (b *Bug) SearchText() string {
	parts := []string{b.Title, b.Description, b.RootCause, b.Solution}
	parts = append(parts, b.Tags...)
	return strings.Join(parts, " ")
}

// SetDefaults fills optional fields the way the recorder does: bugs are
// typically written after the fact, so the default status is resolved.
func (b *Bug) SetDefaults() {
	if b.Severity == "" {
		b.Severity = "medium"
	}
	if b.Status == "" {
		b.Status = "resolved"
	}
	if b.RecordedAt.IsZero() {
		b.RecordedAt = time.Now()
	}
}

func (b *Bug) Validate() error {
	if err := validateID(b.ID, KindBug); err != nil {
		return err
	}
	if err := validateTitle(b.Title); err != nil {
		return err
	}
	if b.Description == "" {
		return fmt.Errorf("description is required")
	}
	if !severityLevels[b.Severity] {
		return fmt.Errorf("severity must be one of low, medium, high, critical (got %q)", b.Severity)
	}
	if b.Status != "" && !bugStatuses[b.Status] {
		return fmt.Errorf("status must be one of open, in-progress, resolved, closed (got %q)", b.Status)
	}
	if b.RecordedAt.IsZero() {
		return fmt.Errorf("recorded_at is required")
	}
	return nil
}

// Requirement records a planned or delivered capability.
type Requirement struct {
	ID                 string    `json:"id"`
	RecordedAt         time.Time `json:"recorded_at"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Rationale          string    `json:"rationale,omitempty"`
	Status             string    `json:"status"`
	Priority           string    `json:"priority"`
	RelatedModules     []string  `json:"related_modules,omitempty"`
	AcceptanceCriteria []string  `json:"acceptance_criteria,omitempty"`
	Tags               []string  `json:"tags,omitempty"`
}

func (r *Requirement) Kind() Kind { return KindRequirement }
func (r *Requirement) RecordID() string { return r.ID }
func (r *Requirement) RecordTitle() string { return r.Title }
func (r *Requirement) RecordedTime() time.Time { return r.RecordedAt }
func (r *Requirement) RecordTags() []string { return r.Tags }
func (r *Requirement) RecordStatus() string { return r.Status }

func (r *Requirement) SearchText() string {
	parts := []string{r.Title, r.Description, r.Rationale}
	parts = append(parts, r.AcceptanceCriteria...)
	parts = append(parts, r.Tags...)
	return strings.Join(parts, " ")
}

func (r *Requirement) SetDefaults() {
	if r.Priority == "" {
		r.Priority = "medium"
	}
	if r.Status == "" {
		r.Status = "planned"
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
}

func (r *Requirement) Validate() error {
	if err := validateID(r.ID, KindRequirement); err != nil {
		return err
	}
	if err := validateTitle(r.Title); err != nil {
		return err
	}
	if r.Description == "" {
		return fmt.Errorf("description is required")
	}
	if !severityLevels[r.Priority] {
		return fmt.Errorf("priority must be one of low, medium, high, critical (got %q)", r.Priority)
	}
	if r.Status != "" && !requirementStatuses[r.Status] {
		return fmt.Errorf("status must be one of planned, in-progress, completed, cancelled (got %q)", r.Status)
	}
	if r.RecordedAt.IsZero() {
		return fmt.Errorf("recorded_at is required")
	}
	return nil
}

// Decision records an architecture decision and its context.
type Decision struct {
	ID           string    `json:"id"`
	RecordedAt   time.Time `json:"recorded_at"`
	Title        string    `json:"title"`
	Context      string    `json:"context"`
	Decision     string    `json:"decision"`
	Rationale    string    `json:"rationale,omitempty"`
	Consequences string    `json:"consequences,omitempty"`
	Alternatives []string  `json:"alternatives,omitempty"`
	Status       string    `json:"status"`
	Tags         []string  `json:"tags,omitempty"`
}

func (d *Decision) Kind() Kind { return KindDecision }
func (d *Decision) RecordID() string { return d.ID }
func (d *Decision) RecordTitle() string { return d.Title }
func (d *Decision) RecordedTime() time.Time { return d.RecordedAt }
func (d *Decision) RecordTags() []string { return d.Tags }
func (d *Decision) RecordStatus() string { return d.Status }

func (d *Decision) SearchText() string {
	parts := []string{d.Title, d.Context, d.Decision, d.Rationale, d.Consequences}
	parts = append(parts, d.Alternatives...)
	parts = append(parts, d.Tags...)
	return strings.Join(parts, " ")
}

func (d *Decision) SetDefaults() {
	if d.Status == "" {
		d.Status = "accepted"
	}
	if d.RecordedAt.IsZero() {
		d.RecordedAt = time.Now()
	}
}

func (d *Decision) Validate() error {
	if err := validateID(d.ID, KindDecision); err != nil {
		return err
	}
	if err := validateTitle(d.Title); err != nil {
		return err
	}
	if d.Context == "" {
		return fmt.Errorf("context is required")
	}
	if d.Decision == "" {
		return fmt.Errorf("decision is required")
	}
	if d.Status != "" && !decisionStatuses[d.Status] {
		return fmt.Errorf("status must be one of proposed, accepted, rejected, deprecated (got %q)", d.Status)
	}
	if d.RecordedAt.IsZero() {
		return fmt.Errorf("recorded_at is required")
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return fmt.Errorf("title is required")
	}
	if len(title) > maxTitleLen {
		return fmt.Errorf("title must be %d characters or less (got %d)", maxTitleLen, len(title))
	}
	return nil
}

// WriteRecord validates rec and writes it to its canonical path under the
// knowledge base. Write is create-oriented: record files are named by
// unique id and in-place edits go through UpdateRecordStatus.
func (k *KB) WriteRecord(rec Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid %s record: %w", rec.Kind(), err)
	}

	dir := k.HistoryDir(rec.Kind())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.RecordID(), err)
	}

	path := k.RecordPath(rec.Kind(), rec.RecordID())
	op := "update"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		op = "create"
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write record file %s: %w", path, err)
	}
	k.txLog().Log(op, path, map[string]string{"id": rec.RecordID(), "title": rec.RecordTitle()})
	return nil
}

// recordPtr constrains T to a record type addressable as Record.
type recordPtr[T any] interface {
	*T
	Record
}

// readRecord reads and validates one record file.
func readRecord[T any, PT recordPtr[T]](path string) (PT, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file %s: %w", path, err)
	}

	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record file %s: %w", path, err)
	}

	p := PT(&rec)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record file %s: %w", path, err)
	}
	return p, nil
}

// readAll reads every record of one type from dir. Invalid files are
// skipped with a warning to stderr so one corrupt record cannot hide the
// rest of the history.
func readAll[T any, PT recordPtr[T]](dir string) ([]PT, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read record directory: %w", err)
	}

	var records []PT
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if strings.HasPrefix(entry.Name(), "_") {
			// Bookkeeping files such as _index.json.
			continue
		}

		rec, err := readRecord[T, PT](filepath.Join(dir, entry.Name()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid record file %s: %v\n", entry.Name(), err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadBug reads one bug by id.
func (k *KB) ReadBug(id string) (*Bug, error) {
	return readRecord[Bug](k.RecordPath(KindBug, id))
}

// ReadRequirement reads one requirement by id.
func (k *KB) ReadRequirement(id string) (*Requirement, error) {
	return readRecord[Requirement](k.RecordPath(KindRequirement, id))
}

// ReadDecision reads one decision by id.
func (k *KB) ReadDecision(id string) (*Decision, error) {
	return readRecord[Decision](k.RecordPath(KindDecision, id))
}

// ReadBugs reads every bug record.
func (k *KB) ReadBugs() ([]*Bug, error) {
	return readAll[Bug](k.HistoryDir(KindBug))
}

// ReadRequirements reads every requirement record.
func (k *KB) ReadRequirements() ([]*Requirement, error) {
	return readAll[Requirement](k.HistoryDir(KindRequirement))
}

// ReadDecisions reads every decision record.
func (k *KB) ReadDecisions() ([]*Decision, error) {
	return readAll[Decision](k.HistoryDir(KindDecision))
}

// ReadRecords reads every record of the given kind behind the Record
// interface.
func (k *KB) ReadRecords(kind Kind) ([]Record, error) {
	switch kind {
	case KindBug:
		bugs, err := k.ReadBugs()
		if err != nil {
			return nil, err
		}
		out := make([]Record, len(bugs))
		for i, b := range bugs {
			out[i] = b
		}
		return out, nil
	case KindRequirement:
		reqs, err := k.ReadRequirements()
		if err != nil {
			return nil, err
		}
		out := make([]Record, len(reqs))
		for i, r := range reqs {
			out[i] = r
		}
		return out, nil
	case KindDecision:
		decs, err := k.ReadDecisions()
		if err != nil {
			return nil, err
		}
		out := make([]Record, len(decs))
		for i, d := range decs {
			out[i] = d
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// ReadAllRecords reads records of every kind.
func (k *KB) ReadAllRecords() ([]Record, error) {
	var all []Record
	for _, kind := range Kinds() {
		recs, err := k.ReadRecords(kind)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}

// CountRecords counts record files per kind without parsing them.
func (k *KB) CountRecords(kind Kind) int {
	entries, err := os.ReadDir(k.HistoryDir(kind))
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, "_") {
			n++
		}
	}
	return n
}
