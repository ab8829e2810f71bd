// Package contextload assembles the knowledge slices relevant to a
// file being edited or a free-text query: core profile, conventions,
// and the bugs and requirements touching the same module.
package contextload

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/memcache"
	"github.com/project-guardian/guardian/internal/search"
)

// maxRelatedBugs caps bug context per load.
const maxRelatedBugs = 5

// maxRelatedRequirements caps requirement context per load.
const maxRelatedRequirements = 3

// Loader reads knowledge base context through an in-memory cache.
type Loader struct {
	kb    *kb.KB
	cache *memcache.Cache
}

// New returns a loader over k. cache may be nil to disable caching.
func New(k *kb.KB, cache *memcache.Cache) *Loader {
	return &Loader{kb: k, cache: cache}
}

// WarmCache pre-loads the core files. No-op without a cache.
func (l *Loader) WarmCache() int {
	if l.cache == nil {
		return 0
	}
	return l.cache.Warm([]string{
		l.kb.CoreFile("profile.json"),
		l.kb.CoreFile("tech-stack.json"),
		l.kb.CoreFile("conventions.json"),
	})
}

// Core is the always-loaded context block.
type Core struct {
	Profile   json.RawMessage `json:"profile,omitempty"`
	TechStack json.RawMessage `json:"tech_stack,omitempty"`
}

// FileContext is the context assembled for one file.
type FileContext struct {
	File        string          `json:"file"`
	Module      string          `json:"module"`
	Core        Core            `json:"core"`
	Conventions json.RawMessage `json:"conventions,omitempty"`
	RelatedBugs []*kb.Bug       `json:"related_bugs"`
}

// QueryContext is the context assembled for a free-text query.
type QueryContext struct {
	Query               string            `json:"query"`
	Keywords            []string          `json:"keywords"`
	Core                Core              `json:"core"`
	RelevantModules     []string          `json:"relevant_modules"`
	RelatedBugs         []*kb.Bug         `json:"related_bugs"`
	RelatedRequirements []*kb.Requirement `json:"related_requirements"`
}

// MinimalContext carries only the core files.
type MinimalContext struct {
	Core        Core            `json:"core"`
	Conventions json.RawMessage `json:"conventions,omitempty"`
}

// modulePatterns map module names to path and name fragments.
var modulePatterns = []struct {
	module   string
	keywords []string
}{
	{"auth", []string{"auth", "login", "oauth", "session", "user"}},
	{"api", []string{"api", "routes", "endpoints", "controllers"}},
	{"database", []string{"db", "database", "models", "schema", "migrations"}},
	{"ui", []string{"components", "views", "pages", "ui"}},
	{"utils", []string{"utils", "helpers", "lib", "common"}},
	{"config", []string{"config", "settings", "env"}},
	{"tests", []string{"test", "tests", "__tests__", "spec"}},
}

// queryModuleKeywords map modules to query vocabulary.
var queryModuleKeywords = map[string][]string{
	"auth":     {"auth", "login", "oauth", "session", "user", "password", "token"},
	"api":      {"api", "endpoint", "route", "request", "response", "http"},
	"database": {"database", "db", "sql", "query", "model", "schema"},
	"ui":       {"ui", "component", "view", "page", "render", "display"},
	"config":   {"config", "setting", "environment", "env"},
}

// IdentifyModule guesses which module a file belongs to from its path
// segments, then its base name. Unknown files map to "general".
func IdentifyModule(path string) string {
	parts := strings.Split(filepath.ToSlash(strings.ToLower(path)), "/")
	partSet := make(map[string]bool, len(parts))
	for _, p := range parts {
		partSet[p] = true
	}

	for _, mp := range modulePatterns {
		for _, kw := range mp.keywords {
			if partSet[kw] {
				return mp.module
			}
		}
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.ToLower(stem)
	for _, mp := range modulePatterns {
		for _, kw := range mp.keywords {
			if strings.Contains(stem, kw) {
				return mp.module
			}
		}
	}
	return "general"
}

// ForFile assembles context for editing one file.
func (l *Loader) ForFile(path string) (*FileContext, error) {
	module := IdentifyModule(path)

	ctx := &FileContext{
		File:        path,
		Module:      module,
		RelatedBugs: []*kb.Bug{},
	}
	ctx.Core.Profile = l.loadCached(l.kb.CoreFile("profile.json"))
	ctx.Core.TechStack = l.loadCached(l.kb.CoreFile("tech-stack.json"))
	ctx.Conventions = l.loadCached(l.kb.CoreFile("conventions.json"))

	bugs, err := l.moduleBugs(module)
	if err != nil {
		return nil, err
	}
	if len(bugs) > maxRelatedBugs {
		bugs = bugs[:maxRelatedBugs]
	}
	ctx.RelatedBugs = bugs
	return ctx, nil
}

// ForQuery assembles context for a free-text query, optionally biased
// by the file currently open.
func (l *Loader) ForQuery(query, currentFile string) (*QueryContext, error) {
	keywords := search.Tokenize(query)

	ctx := &QueryContext{
		Query:               query,
		Keywords:            keywords,
		RelevantModules:     []string{},
		RelatedBugs:         []*kb.Bug{},
		RelatedRequirements: []*kb.Requirement{},
	}
	ctx.Core.Profile = l.loadCached(l.kb.CoreFile("profile.json"))

	keywordSet := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		keywordSet[kw] = true
	}

	modules := make([]string, 0, len(queryModuleKeywords))
	for module := range queryModuleKeywords {
		modules = append(modules, module)
	}
	sort.Strings(modules)

	var relevant []string
	for _, module := range modules {
		for _, kw := range queryModuleKeywords[module] {
			if keywordSet[kw] {
				relevant = append(relevant, module)
				break
			}
		}
	}
	if currentFile != "" {
		fileModule := IdentifyModule(currentFile)
		if !containsStr(relevant, fileModule) {
			relevant = append(relevant, fileModule)
		}
	}
	ctx.RelevantModules = relevant

	var candidates []*kb.Bug
	seen := make(map[string]bool)
	for _, module := range relevant {
		bugs, err := l.moduleBugs(module)
		if err != nil {
			return nil, err
		}
		for _, b := range bugs {
			if !seen[b.ID] {
				seen[b.ID] = true
				candidates = append(candidates, b)
			}
		}
	}
	ctx.RelatedBugs = topBugsByKeywords(candidates, keywords, maxRelatedBugs)

	reqs, err := l.kb.ReadRequirements()
	if err != nil {
		return nil, err
	}
	ctx.RelatedRequirements = topRequirementsByKeywords(reqs, keywords, maxRelatedRequirements)

	return ctx, nil
}

// Minimal loads only the core files.
func (l *Loader) Minimal() *MinimalContext {
	return &MinimalContext{
		Core: Core{
			Profile:   l.loadCached(l.kb.CoreFile("profile.json")),
			TechStack: l.loadCached(l.kb.CoreFile("tech-stack.json")),
		},
		Conventions: l.loadCached(l.kb.CoreFile("conventions.json")),
	}
}

// CacheStats reports cache counters, or nil when caching is off.
func (l *Loader) CacheStats() *memcache.Stats {
	if l.cache == nil {
		return nil
	}
	stats := l.cache.Stats()
	return &stats
}

// moduleBugs returns bugs tagged with module or touching files under a
// matching path.
func (l *Loader) moduleBugs(module string) ([]*kb.Bug, error) {
	bugs, err := l.kb.ReadBugs()
	if err != nil {
		return nil, err
	}

	var matched []*kb.Bug
	for _, b := range bugs {
		if containsStr(b.Tags, module) || anyFileMentions(b.FilesChanged, module) {
			matched = append(matched, b)
		}
	}
	return matched, nil
}

func topBugsByKeywords(bugs []*kb.Bug, keywords []string, limit int) []*kb.Bug {
	type scored struct {
		bug   *kb.Bug
		score int
	}
	var hits []scored
	for _, b := range bugs {
		text := strings.ToLower(b.Title + " " + b.Description)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{b, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]*kb.Bug, 0, limit)
	for _, h := range hits {
		if len(out) == limit {
			break
		}
		out = append(out, h.bug)
	}
	return out
}

func topRequirementsByKeywords(reqs []*kb.Requirement, keywords []string, limit int) []*kb.Requirement {
	type scored struct {
		req   *kb.Requirement
		score int
	}
	var hits []scored
	for _, r := range reqs {
		text := strings.ToLower(r.Title + " " + r.Description)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{r, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]*kb.Requirement, 0, limit)
	for _, h := range hits {
		if len(out) == limit {
			break
		}
		out = append(out, h.req)
	}
	return out
}

// loadCached reads a core JSON file through the cache, returning nil on
// any failure so missing files degrade to absent context.
func (l *Loader) loadCached(path string) json.RawMessage {
	var raw json.RawMessage
	if l.cache != nil {
		if err := l.cache.Load(path, memcache.CategoryCore, &raw); err != nil {
			return nil
		}
		return raw
	}
	data, err := readJSONRaw(path)
	if err != nil {
		return nil
	}
	return data
}

func readJSONRaw(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func containsStr(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func anyFileMentions(files []string, module string) bool {
	for _, f := range files {
		if strings.Contains(strings.ToLower(f), module) {
			return true
		}
	}
	return false
}
