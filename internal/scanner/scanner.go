// Package scanner inspects a project tree and produces the knowledge
// base's core and indexed files: project profile, tech stack, tools,
// conventions, and directory structure.
package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"

	"github.com/project-guardian/guardian/internal/kb"
)

// Result is the full output of one project scan.
type Result struct {
	ScannedAt   time.Time   `json:"scanned_at"`
	ProjectPath string      `json:"project_path"`
	ProjectType string      `json:"project_type"`
	TechStack   TechStack   `json:"tech_stack"`
	Tools       Tools       `json:"tools"`
	Conventions Conventions `json:"conventions"`
	Structure   Structure   `json:"structure"`
}

// TechStack lists detected languages, frameworks, libraries, and runtimes.
type TechStack struct {
	Languages  []string `json:"languages"`
	Frameworks []string `json:"frameworks"`
	Libraries  []string `json:"libraries"`
	Runtime    []string `json:"runtime"`
}

// Tools lists detected development tooling.
type Tools struct {
	VersionControl string   `json:"version_control,omitempty"`
	PackageManager string   `json:"package_manager,omitempty"`
	BuildTool      string   `json:"build_tool,omitempty"`
	Linter         []string `json:"linter"`
	Formatter      []string `json:"formatter"`
	Testing        []string `json:"testing"`
	CICD           []string `json:"ci_cd"`
}

// Conventions captures code conventions extracted from config files.
type Conventions struct {
	Naming     []string       `json:"naming"`
	Imports    []string       `json:"imports"`
	Formatting map[string]any `json:"formatting"`
	Testing    []string       `json:"testing"`
}

// Structure describes the project's top-level layout.
type Structure struct {
	RootDirs    []string `json:"root_dirs"`
	KeyFiles    []string `json:"key_files"`
	EntryPoints []string `json:"entry_points"`
}

// Profile is the always-loaded core summary written to profile.json.
type Profile struct {
	ProjectName string    `json:"project_name"`
	ProjectType string    `json:"project_type"`
	ScannedAt   time.Time `json:"scanned_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Scanner inspects a single project root.
type Scanner struct {
	Root string
}

// New returns a scanner for the project at root.
func New(root string) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	return &Scanner{Root: abs}, nil
}

// Scan runs all detectors and returns the combined result.
func (s *Scanner) Scan() *Result {
	return &Result{
		ScannedAt:   time.Now(),
		ProjectPath: s.Root,
		ProjectType: s.detectProjectType(),
		TechStack:   s.detectTechStack(),
		Tools:       s.detectTools(),
		Conventions: s.detectConventions(),
		Structure:   s.analyzeStructure(),
	}
}

// typeIndicators score project categories by marker files; on a tie the
// earlier entry wins. Patterns may use glob syntax.
var typeIndicators = []struct {
	name     string
	patterns []string
}{
	{"web-frontend", []string{"package.json", "src/App.tsx", "src/App.jsx", "vite.config.*", "webpack.config.*"}},
	{"web-backend", []string{"server.js", "app.js", "main.go", "src/main/java", "requirements.txt"}},
	{"full-stack", []string{"package.json", "server", "client", "frontend", "backend"}},
	{"mobile-ios", []string{"*.xcodeproj", "*.xcworkspace", "Podfile", "Package.swift"}},
	{"mobile-android", []string{"build.gradle", "app/src/main/java", "AndroidManifest.xml"}},
	{"library", []string{"setup.py", "Cargo.toml", "go.mod", "pom.xml"}},
	{"cli-tool", []string{"bin", "cmd", "cli.py", "main.rs"}},
}

func (s *Scanner) detectProjectType() string {
	best := "general"
	bestScore := 0

	for _, ind := range typeIndicators {
		score := 0
		for _, pattern := range ind.patterns {
			if s.matches(pattern) {
				score++
			}
		}
		if score > bestScore {
			best = ind.name
			bestScore = score
		}
	}
	return best
}

func (s *Scanner) detectTechStack() TechStack {
	stack := TechStack{
		Languages:  []string{},
		Frameworks: []string{},
		Libraries:  []string{},
		Runtime:    []string{},
	}

	if pkg := s.readPackageJSON(); pkg != nil {
		deps := pkg.allDeps()

		if v, ok := deps["react"]; ok {
			stack.Frameworks = append(stack.Frameworks, "React "+cleanVersion(v))
		}
		if v, ok := deps["vue"]; ok {
			stack.Frameworks = append(stack.Frameworks, "Vue "+cleanVersion(v))
		}
		if v, ok := deps["next"]; ok {
			stack.Frameworks = append(stack.Frameworks, "Next.js "+cleanVersion(v))
		}
		if v, ok := deps["express"]; ok {
			stack.Frameworks = append(stack.Frameworks, "Express "+cleanVersion(v))
		}
		if _, ok := deps["@nestjs/core"]; ok {
			stack.Frameworks = append(stack.Frameworks, "NestJS")
		}

		if _, ok := deps["typescript"]; ok {
			stack.Languages = append(stack.Languages, "TypeScript")
		} else {
			stack.Languages = append(stack.Languages, "JavaScript")
		}
		if _, ok := deps["tailwindcss"]; ok {
			stack.Libraries = append(stack.Libraries, "Tailwind CSS")
		}
		if _, ok := deps["axios"]; ok {
			stack.Libraries = append(stack.Libraries, "Axios")
		}
		stack.Runtime = append(stack.Runtime, "Node.js")
	}

	if s.exists("requirements.txt") || s.exists("pyproject.toml") {
		stack.Languages = append(stack.Languages, "Python")
		if reqs := strings.ToLower(s.readFile("requirements.txt")); reqs != "" {
			for name, display := range map[string]string{"django": "Django", "flask": "Flask", "fastapi": "FastAPI"} {
				if strings.Contains(reqs, name) {
					stack.Frameworks = append(stack.Frameworks, display)
				}
			}
		}
	}

	if mf := s.readGoMod(); mf != nil {
		stack.Languages = append(stack.Languages, "Go")
		runtime := "Go"
		if mf.Go != nil && mf.Go.Version != "" {
			runtime = "Go " + mf.Go.Version
		}
		stack.Runtime = append(stack.Runtime, runtime)
		stack.Frameworks = append(stack.Frameworks, goFrameworks(mf)...)
	}

	if s.exists("Cargo.toml") {
		stack.Languages = append(stack.Languages, "Rust")
		if strings.Contains(s.readFile("Cargo.toml"), "actix-web") {
			stack.Frameworks = append(stack.Frameworks, "Actix Web")
		}
	}

	if s.exists("pom.xml") || s.exists("build.gradle") {
		stack.Languages = append(stack.Languages, "Java")
		if s.matches("**/spring*") {
			stack.Frameworks = append(stack.Frameworks, "Spring Boot")
		}
	}

	sort.Strings(stack.Frameworks)
	return stack
}

// goModuleFrameworks maps well-known Go module prefixes to framework
// names for the tech stack report.
var goModuleFrameworks = map[string]string{
	"github.com/gin-gonic/gin":           "Gin",
	"github.com/labstack/echo":           "Echo",
	"github.com/gofiber/fiber":           "Fiber",
	"github.com/gorilla/mux":             "Gorilla Mux",
	"github.com/spf13/cobra":             "Cobra",
	"google.golang.org/grpc":             "gRPC",
	"github.com/charmbracelet/bubbletea": "Bubble Tea",
}

func goFrameworks(mf *modfile.File) []string {
	var out []string
	seen := make(map[string]bool)
	for _, req := range mf.Require {
		if req.Indirect {
			continue
		}
		for prefix, name := range goModuleFrameworks {
			if (req.Mod.Path == prefix || strings.HasPrefix(req.Mod.Path, prefix+"/")) && !seen[name] {
				out = append(out, name)
				seen[name] = true
			}
		}
	}
	return out
}

func (s *Scanner) detectTools() Tools {
	tools := Tools{
		Linter:    []string{},
		Formatter: []string{},
		Testing:   []string{},
		CICD:      []string{},
	}

	if s.exists(".git") {
		tools.VersionControl = "Git"
	}

	switch {
	case s.exists("package-lock.json"):
		tools.PackageManager = "npm"
	case s.exists("yarn.lock"):
		tools.PackageManager = "yarn"
	case s.exists("pnpm-lock.yaml"):
		tools.PackageManager = "pnpm"
	case s.exists("Pipfile"):
		tools.PackageManager = "pipenv"
	case s.exists("poetry.lock"):
		tools.PackageManager = "poetry"
	case s.exists("go.sum"):
		tools.PackageManager = "go modules"
	}

	switch {
	case s.exists("vite.config.js") || s.exists("vite.config.ts"):
		tools.BuildTool = "Vite"
	case s.exists("webpack.config.js"):
		tools.BuildTool = "Webpack"
	case s.exists("rollup.config.js"):
		tools.BuildTool = "Rollup"
	case s.exists("Makefile"):
		tools.BuildTool = "Make"
	}

	if s.exists(".eslintrc.js") || s.exists(".eslintrc.json") {
		tools.Linter = append(tools.Linter, "ESLint")
	}
	if s.exists(".pylintrc") || s.exists("pylint.rc") {
		tools.Linter = append(tools.Linter, "Pylint")
	}
	if s.exists(".golangci.yml") || s.exists(".golangci.yaml") {
		tools.Linter = append(tools.Linter, "golangci-lint")
	}

	if s.exists(".prettierrc") || s.exists("prettier.config.js") {
		tools.Formatter = append(tools.Formatter, "Prettier")
	}
	if s.exists(".editorconfig") {
		tools.Formatter = append(tools.Formatter, "EditorConfig")
	}

	if pkg := s.readPackageJSON(); pkg != nil {
		deps := pkg.allDeps()
		if _, ok := deps["vitest"]; ok {
			tools.Testing = append(tools.Testing, "Vitest")
		} else if _, ok := deps["jest"]; ok {
			tools.Testing = append(tools.Testing, "Jest")
		}
		if _, ok := deps["playwright"]; ok {
			tools.Testing = append(tools.Testing, "Playwright")
		}
		if _, ok := deps["cypress"]; ok {
			tools.Testing = append(tools.Testing, "Cypress")
		}
	}
	if s.exists("go.mod") && s.matches("**/*_test.go") {
		tools.Testing = append(tools.Testing, "go test")
	}

	tools.CICD = append(tools.CICD, s.detectCI()...)
	return tools
}

// workflow is the subset of a GitHub Actions file we care about.
type workflow struct {
	Name string         `yaml:"name"`
	Jobs map[string]any `yaml:"jobs"`
}

// detectCI reports CI systems, naming GitHub Actions workflows when the
// files parse.
func (s *Scanner) detectCI() []string {
	var out []string

	wfDir := filepath.Join(s.Root, ".github", "workflows")
	if entries, err := os.ReadDir(wfDir); err == nil {
		var names []string
		for _, e := range entries {
			if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yml") && !strings.HasSuffix(e.Name(), ".yaml")) {
				continue
			}
			data, err := os.ReadFile(filepath.Join(wfDir, e.Name()))
			if err != nil {
				continue
			}
			var wf workflow
			if err := yaml.Unmarshal(data, &wf); err != nil || len(wf.Jobs) == 0 {
				continue
			}
			if wf.Name != "" {
				names = append(names, wf.Name)
			}
		}
		if len(names) > 0 {
			sort.Strings(names)
			out = append(out, "GitHub Actions ("+strings.Join(names, ", ")+")")
		} else {
			out = append(out, "GitHub Actions")
		}
	}

	if s.exists(".gitlab-ci.yml") {
		out = append(out, "GitLab CI")
	}
	if s.exists(".circleci/config.yml") {
		out = append(out, "CircleCI")
	}
	return out
}

func (s *Scanner) detectConventions() Conventions {
	conv := Conventions{
		Naming:     []string{},
		Imports:    []string{},
		Formatting: map[string]any{},
		Testing:    []string{},
	}

	var eslint struct {
		Rules map[string]any `json:"rules"`
	}
	if s.readJSON(".eslintrc.json", &eslint) {
		if _, ok := eslint.Rules["camelcase"]; ok {
			conv.Naming = append(conv.Naming, "camelCase for variables")
		}
		if _, ok := eslint.Rules["@typescript-eslint/naming-convention"]; ok {
			conv.Naming = append(conv.Naming, "TypeScript naming conventions enforced")
		}
	}

	var prettier map[string]any
	if s.readJSON(".prettierrc", &prettier) {
		conv.Formatting = map[string]any{
			"semi":          valueOr(prettier, "semi", true),
			"singleQuote":   valueOr(prettier, "singleQuote", false),
			"tabWidth":      valueOr(prettier, "tabWidth", 2),
			"trailingComma": valueOr(prettier, "trailingComma", "es5"),
		}
	}

	var tsconfig struct {
		CompilerOptions struct {
			Paths map[string][]string `json:"paths"`
		} `json:"compilerOptions"`
	}
	if s.readJSON("tsconfig.json", &tsconfig) {
		if _, ok := tsconfig.CompilerOptions.Paths["@/*"]; ok {
			conv.Imports = append(conv.Imports, "Use @ alias for absolute imports")
		}
	}

	if s.exists("go.mod") {
		conv.Formatting["gofmt"] = true
		if s.matches("internal") {
			conv.Imports = append(conv.Imports, "internal/ packages for private code")
		}
	}

	return conv
}

func (s *Scanner) analyzeStructure() Structure {
	st := Structure{
		RootDirs:    []string{},
		KeyFiles:    []string{},
		EntryPoints: []string{},
	}

	if entries, err := os.ReadDir(s.Root); err == nil {
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				st.RootDirs = append(st.RootDirs, e.Name())
			}
		}
	}

	keyPatterns := []string{
		"README.md", "package.json", "tsconfig.json", "vite.config.ts",
		"main.py", "app.py", "main.go", "go.mod", "Cargo.toml",
	}
	for _, name := range keyPatterns {
		if s.exists(name) {
			st.KeyFiles = append(st.KeyFiles, name)
		}
	}

	entryCandidates := []string{
		"src/main.tsx", "src/main.ts", "src/index.tsx", "src/index.ts",
		"index.js", "server.js", "app.js", "main.py", "main.go",
	}
	for _, name := range entryCandidates {
		if s.exists(name) {
			st.EntryPoints = append(st.EntryPoints, name)
		}
	}
	// Go convention: one entry point per cmd/ subdirectory.
	if dirs, err := os.ReadDir(filepath.Join(s.Root, "cmd")); err == nil {
		for _, d := range dirs {
			if d.IsDir() && s.exists(filepath.Join("cmd", d.Name(), "main.go")) {
				st.EntryPoints = append(st.EntryPoints, filepath.Join("cmd", d.Name(), "main.go"))
			}
		}
	}

	return st
}

// WriteKnowledgeBase materializes the scan result into the knowledge
// base files under root and returns the initialized KB.
func WriteKnowledgeBase(root string, result *Result) (*kb.KB, error) {
	k, err := kb.Init(root)
	if err != nil {
		return nil, err
	}

	profile := Profile{
		ProjectName: filepath.Base(k.Root),
		ProjectType: result.ProjectType,
		ScannedAt:   result.ScannedAt,
		LastUpdated: result.ScannedAt,
	}

	files := []struct {
		path string
		data any
	}{
		{k.CoreFile("profile.json"), profile},
		{k.CoreFile("tech-stack.json"), result.TechStack},
		{k.CoreFile("conventions.json"), result.Conventions},
		{k.IndexedFile("tools.json"), result.Tools},
		{k.IndexedFile("structure.json"), result.Structure},
	}
	for _, f := range files {
		if err := writeJSON(f.path, f.data); err != nil {
			return nil, err
		}
	}

	// architecture.json and modules.json are curated over time via
	// 'pg record'; seed them empty so the knowledge base is complete,
	// but never clobber existing content on a rescan.
	for _, name := range []string{"architecture.json", "modules.json"} {
		path := k.IndexedFile(name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := writeJSON(path, map[string]any{}); err != nil {
				return nil, err
			}
		}
	}
	return k, nil
}

func writeJSON(path string, data any) error {
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// packageJSON is the subset of npm metadata the detectors read.
type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (p *packageJSON) allDeps() map[string]string {
	deps := make(map[string]string, len(p.Dependencies)+len(p.DevDependencies))
	for k, v := range p.Dependencies {
		deps[k] = v
	}
	for k, v := range p.DevDependencies {
		deps[k] = v
	}
	return deps
}

func (s *Scanner) readPackageJSON() *packageJSON {
	var pkg packageJSON
	if !s.readJSON("package.json", &pkg) {
		return nil
	}
	return &pkg
}

func (s *Scanner) readGoMod() *modfile.File {
	data, err := os.ReadFile(filepath.Join(s.Root, "go.mod"))
	if err != nil {
		return nil
	}
	mf, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		return nil
	}
	return mf
}

func (s *Scanner) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(s.Root, rel))
	return err == nil
}

func (s *Scanner) matches(pattern string) bool {
	matches, err := filepath.Glob(filepath.Join(s.Root, pattern))
	if err == nil && len(matches) > 0 {
		return true
	}
	// filepath.Glob has no ** support; fall back to a bounded walk.
	if strings.Contains(pattern, "**") {
		suffix := strings.TrimPrefix(pattern, "**/")
		found := false
		filepath.WalkDir(s.Root, func(path string, d os.DirEntry, err error) error {
			if err != nil || found {
				return filepath.SkipAll
			}
			if d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != s.Root {
				return filepath.SkipDir
			}
			if ok, _ := filepath.Match(suffix, d.Name()); ok {
				found = true
				return filepath.SkipAll
			}
			return nil
		})
		return found
	}
	return s.exists(pattern)
}

func (s *Scanner) readFile(rel string) string {
	data, err := os.ReadFile(filepath.Join(s.Root, rel))
	if err != nil {
		return ""
	}
	return string(data)
}

func (s *Scanner) readJSON(rel string, out any) bool {
	data, err := os.ReadFile(filepath.Join(s.Root, rel))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func valueOr(m map[string]any, key string, def any) any {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

func cleanVersion(v string) string {
	return strings.TrimLeft(v, "^~")
}
