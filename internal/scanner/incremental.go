package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/lockfile"
)

// checksumsFileName lives under indexed/ and maps relative paths to
// SHA-256 digests from the previous pass.
const checksumsFileName = "_checksums.json"

// Changes lists files that differ from the previous pass.
type Changes struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// Total returns the number of changed files across all categories.
func (c *Changes) Total() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

// UpdateResult summarizes one incremental pass.
type UpdateResult struct {
	Changes   Changes   `json:"changes"`
	Updated   bool      `json:"updated"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Incremental re-derives only the knowledge base files affected by
// changed project files, using stored checksums to detect changes.
type Incremental struct {
	kb      *kb.KB
	scanner *Scanner
}

// NewIncremental returns an updater for an initialized knowledge base.
func NewIncremental(k *kb.KB) *Incremental {
	return &Incremental{kb: k, scanner: &Scanner{Root: k.Root}}
}

// codeExtensions are the file extensions tracked for changes.
var codeExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".py": true, ".go": true, ".rs": true,
	".java": true, ".kt": true, ".rb": true, ".php": true,
	".c": true, ".cpp": true, ".h": true, ".hpp": true,
	".swift": true, ".vue": true,
}

// configFiles are tracked by name and trigger a tech stack refresh.
var configFiles = map[string]bool{
	"package.json": true, "tsconfig.json": true,
	"vite.config.js": true, "webpack.config.js": true,
	"go.mod": true, "Cargo.toml": true,
	"pyproject.toml": true, "setup.py": true,
	".eslintrc": true, ".prettierrc": true,
	"tailwind.config.js": true, ".editorconfig": true,
}

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	"node_modules": true, "vendor": true, "dist": true, "build": true, "__pycache__": true,
}

func isTrackedFile(name string) bool {
	return codeExtensions[filepath.Ext(name)] || configFiles[name]
}

// IsConfigFile reports whether name is a tracked build or tool config
// file whose change should refresh the tech stack.
func IsConfigFile(name string) bool {
	return configFiles[name]
}

// Run detects changed files and refreshes the affected knowledge base
// sections. When nothing changed, the knowledge base is left untouched.
func (u *Incremental) Run() (*UpdateResult, error) {
	checksums := make(map[string]string)
	checksumsPath := u.kb.IndexedFile(checksumsFileName)
	if err := lockfile.Read(checksumsPath, &checksums, lockfile.Options{}); err != nil {
		return nil, fmt.Errorf("failed to load checksums: %w", err)
	}

	changes, err := u.detectChanges(checksums)
	if err != nil {
		return nil, err
	}
	if changes.Total() == 0 {
		return &UpdateResult{Changes: *changes, Updated: false}, nil
	}

	touched := append(append([]string{}, changes.Added...), changes.Modified...)
	if configChanged(touched) {
		if err := writeJSON(u.kb.CoreFile("tech-stack.json"), u.scanner.detectTechStack()); err != nil {
			return nil, err
		}
	}
	if len(changes.Added) > 0 || len(changes.Deleted) > 0 {
		if err := writeJSON(u.kb.IndexedFile("structure.json"), u.scanner.analyzeStructure()); err != nil {
			return nil, err
		}
	}
	if err := u.touchProfile(); err != nil {
		return nil, err
	}

	if err := lockfile.Write(checksumsPath, checksums, lockfile.Options{}); err != nil {
		return nil, fmt.Errorf("failed to save checksums: %w", err)
	}

	return &UpdateResult{Changes: *changes, Updated: true, Timestamp: time.Now()}, nil
}

// detectChanges walks the project, comparing each tracked file's digest
// against the stored checksums. The checksums map is updated in place.
func (u *Incremental) detectChanges(checksums map[string]string) (*Changes, error) {
	changes := &Changes{Added: []string{}, Modified: []string{}, Deleted: []string{}}
	current := make(map[string]bool)

	err := filepath.WalkDir(u.kb.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path == u.kb.Root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !isTrackedFile(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(u.kb.Root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		current[rel] = true

		sum, err := fileChecksum(path)
		if err != nil {
			return nil
		}

		prev, known := checksums[rel]
		switch {
		case !known:
			changes.Added = append(changes.Added, rel)
			checksums[rel] = sum
		case prev != sum:
			changes.Modified = append(changes.Modified, rel)
			checksums[rel] = sum
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk project: %w", err)
	}

	for rel := range checksums {
		if !current[rel] {
			changes.Deleted = append(changes.Deleted, rel)
			delete(checksums, rel)
		}
	}
	sort.Strings(changes.Deleted)
	return changes, nil
}

// touchProfile stamps profile.json with the update time.
func (u *Incremental) touchProfile() error {
	path := u.kb.CoreFile("profile.json")
	return lockfile.Update(path, map[string]any{}, func(profile map[string]any) (map[string]any, error) {
		if profile == nil {
			profile = map[string]any{}
		}
		profile["last_updated"] = time.Now().Format(time.RFC3339)
		profile["update_type"] = "incremental"
		return profile, nil
	}, lockfile.Options{})
}

func configChanged(files []string) bool {
	for _, f := range files {
		if configFiles[filepath.Base(f)] {
			return true
		}
	}
	return false
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
