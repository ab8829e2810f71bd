// Package kb defines the on-disk layout of a project knowledge base and
// the record types stored in it.
//
// A knowledge base lives at <project-root>/.project-ai/ and holds three
// tiers of JSON files:
//
//	core/     always-loaded context: profile, tech stack, conventions,
//	          version history
//	indexed/  loaded on demand: tools, structure, modules, architecture,
//	          plus bookkeeping files (checksums, embeddings)
//	history/  one JSON file per bug/requirement/decision record, with a
//	          tag index alongside the bugs
package kb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/project-guardian/guardian/internal/lockfile"
)

// DirName is the knowledge base directory name inside a project root.
const DirName = ".project-ai"

// maxParentSearch bounds how far Find walks up from the starting
// directory before giving up.
const maxParentSearch = 3

// ErrNotInitialized is returned when no knowledge base exists for the
// given project. Check with errors.Is.
var ErrNotInitialized = errors.New("knowledge base not initialized (run 'pg scan' first)")

// KB is a handle to one project's knowledge base.
type KB struct {
	// Root is the project root directory (the parent of .project-ai).
	Root string
}

// Open returns a KB for the project at root, failing with
// ErrNotInitialized when the knowledge base directory does not exist.
func Open(root string) (*KB, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	k := &KB{Root: abs}
	info, err := os.Stat(k.Dir())
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, k.Dir())
	}
	return k, nil
}

// Find locates the knowledge base for start by checking start and up to
// three parent directories. Returns ErrNotInitialized when none is found.
func Find(start string) (*KB, error) {
	current, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	for i := 0; i <= maxParentSearch; i++ {
		if info, err := os.Stat(filepath.Join(current, DirName)); err == nil && info.IsDir() {
			return &KB{Root: current}, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return nil, ErrNotInitialized
}

// Dir returns the knowledge base directory path.
func (k *KB) Dir() string { return filepath.Join(k.Root, DirName) }

// CoreDir returns the always-loaded context directory.
func (k *KB) CoreDir() string { return filepath.Join(k.Dir(), "core") }

// IndexedDir returns the on-demand context directory.
func (k *KB) IndexedDir() string { return filepath.Join(k.Dir(), "indexed") }

// HistoryDir returns the record directory for the given kind.
func (k *KB) HistoryDir(kind Kind) string {
	return filepath.Join(k.Dir(), "history", kind.DirName())
}

// CoreFile returns the path of a file under core/.
func (k *KB) CoreFile(name string) string { return filepath.Join(k.CoreDir(), name) }

// IndexedFile returns the path of a file under indexed/.
func (k *KB) IndexedFile(name string) string { return filepath.Join(k.IndexedDir(), name) }

// RecordPath returns the canonical path for a record file.
func (k *KB) RecordPath(kind Kind, id string) string {
	return filepath.Join(k.HistoryDir(kind), id+".json")
}

// LogPath returns the rotating activity log path.
func (k *KB) LogPath() string { return filepath.Join(k.Dir(), "guardian.log") }

// TxLogPath returns the transaction log path.
func (k *KB) TxLogPath() string { return filepath.Join(k.Dir(), "txlog.jsonl") }

// txLog returns the append-only mutation log for this knowledge base.
func (k *KB) txLog() *lockfile.TxLog {
	return lockfile.NewTxLog(k.TxLogPath())
}

// CachePath returns the SQLite query cache path.
func (k *KB) CachePath() string { return filepath.Join(k.Dir(), "cache.db") }

// ConfigPath returns the per-project configuration file path.
func (k *KB) ConfigPath() string { return filepath.Join(k.Dir(), "config.toml") }

const readmeText = `# Project Guardian Knowledge Base

This directory contains auto-generated project knowledge maintained by guardian.

## Structure

- ` + "`core/`" + ` - Always loaded context
- ` + "`indexed/`" + ` - Loaded on demand
- ` + "`history/`" + ` - Searchable historical records

## Usage

This knowledge base is updated by the pg CLI. Avoid editing files by hand.
`

// Init materializes the knowledge base directory tree under root and
// returns the resulting KB. Existing directories are left untouched.
func Init(root string) (*KB, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	k := &KB{Root: abs}

	dirs := []string{
		k.CoreDir(),
		k.IndexedDir(),
		k.HistoryDir(KindBug),
		k.HistoryDir(KindRequirement),
		k.HistoryDir(KindDecision),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	readme := filepath.Join(k.Dir(), "README.md")
	if _, err := os.Stat(readme); os.IsNotExist(err) {
		if err := os.WriteFile(readme, []byte(readmeText), 0644); err != nil {
			return nil, fmt.Errorf("failed to write README: %w", err)
		}
	}
	return k, nil
}

// projectIndicators are files whose presence marks a directory as a code
// project worth initializing.
var projectIndicators = []string{
	"package.json",
	"go.mod",
	"Cargo.toml",
	"pyproject.toml",
	"setup.py",
	"pom.xml",
	"build.gradle",
	"composer.json",
	"Gemfile",
	".git",
}

// IsLikelyProject reports whether path looks like a code project.
func IsLikelyProject(path string) bool {
	for _, indicator := range projectIndicators {
		if _, err := os.Stat(filepath.Join(path, indicator)); err == nil {
			return true
		}
	}
	return false
}

// Status describes knowledge base completeness for one project.
type Status struct {
	Initialized       bool            `json:"initialized"`
	ProjectRoot       string          `json:"project_root,omitempty"`
	KnowledgeBasePath string          `json:"knowledge_base_path,omitempty"`
	CoreFiles         map[string]bool `json:"core_files,omitempty"`
	IndexedFiles      map[string]bool `json:"indexed_files,omitempty"`
	HistoryDirs       map[string]bool `json:"history_dirs,omitempty"`
	Warnings          []string        `json:"warnings,omitempty"`

	// Set when not initialized.
	CurrentPath     string `json:"current_path,omitempty"`
	IsLikelyProject bool   `json:"is_likely_project,omitempty"`
	Suggestion      string `json:"suggestion,omitempty"`
}

// CheckStatus inspects the knowledge base tree and reports which expected
// files and directories are present.
func (k *KB) CheckStatus() *Status {
	st := &Status{
		Initialized:       true,
		ProjectRoot:       k.Root,
		KnowledgeBasePath: k.Dir(),
		CoreFiles:         make(map[string]bool),
		IndexedFiles:      make(map[string]bool),
		HistoryDirs:       make(map[string]bool),
	}

	for _, name := range []string{"profile.json", "tech-stack.json", "conventions.json"} {
		ok := fileExists(k.CoreFile(name))
		st.CoreFiles[name] = ok
		if !ok {
			st.Warnings = append(st.Warnings, "Missing core file: "+name)
		}
	}
	for _, name := range []string{"architecture.json", "modules.json", "tools.json", "structure.json"} {
		st.IndexedFiles[name] = fileExists(k.IndexedFile(name))
	}
	for _, kind := range Kinds() {
		st.HistoryDirs[kind.DirName()] = fileExists(k.HistoryDir(kind))
	}
	return st
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
