package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDetectProjectType(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "empty project",
			files: map[string]string{},
			want:  "general",
		},
		{
			name: "react frontend",
			files: map[string]string{
				"package.json":   "{}",
				"src/App.tsx":    "export default function App() {}",
				"vite.config.ts": "export default {}",
			},
			want: "web-frontend",
		},
		{
			// package.json scores both web-frontend and full-stack;
			// the earlier indicator wins the tie.
			name: "bare package.json",
			files: map[string]string{
				"package.json": "{}",
			},
			want: "web-frontend",
		},
		{
			name: "go cli",
			files: map[string]string{
				"go.mod":           "module example.com/tool\n\ngo 1.24\n",
				"cmd/tool/main.go": "package main",
				"main.rs":          "",
				"cli.py":           "",
			},
			want: "cli-tool",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFiles(t, root, tt.files)
			s, err := New(root)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := s.detectProjectType(); got != tt.want {
				t.Errorf("detectProjectType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectTechStack_Node(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"package.json": `{
  "dependencies": {"react": "^18.2.0", "axios": "^1.6.0"},
  "devDependencies": {"typescript": "^5.3.0", "tailwindcss": "^3.4.0"}
}`,
	})

	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	stack := s.detectTechStack()

	want := TechStack{
		Languages:  []string{"TypeScript"},
		Frameworks: []string{"React 18.2.0"},
		Libraries:  []string{"Tailwind CSS", "Axios"},
		Runtime:    []string{"Node.js"},
	}
	if diff := cmp.Diff(want, stack); diff != "" {
		t.Errorf("detectTechStack() mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectTechStack_Go(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"go.mod": `module example.com/svc

go 1.24.0

require (
	github.com/spf13/cobra v1.10.2
	google.golang.org/grpc v1.60.0
)

require github.com/inconshreveable/mousetrap v1.1.0 // indirect
`,
	})

	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	stack := s.detectTechStack()

	if len(stack.Languages) != 1 || stack.Languages[0] != "Go" {
		t.Errorf("Languages = %v, want [Go]", stack.Languages)
	}
	if len(stack.Runtime) != 1 || stack.Runtime[0] != "Go 1.24.0" {
		t.Errorf("Runtime = %v, want [Go 1.24.0]", stack.Runtime)
	}
	want := []string{"Cobra", "gRPC"}
	if diff := cmp.Diff(want, stack.Frameworks); diff != "" {
		t.Errorf("Frameworks mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectTools(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"package-lock.json": "{}",
		".eslintrc.json":    "{}",
		".prettierrc":       "{}",
	})
	ci := "name: CI\non: push\njobs:\n  test:\n    runs-on: ubuntu-latest\n"
	writeFiles(t, root, map[string]string{".github/workflows/ci.yml": ci})

	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	tools := s.detectTools()

	if tools.PackageManager != "npm" {
		t.Errorf("PackageManager = %q, want npm", tools.PackageManager)
	}
	if len(tools.Linter) != 1 || tools.Linter[0] != "ESLint" {
		t.Errorf("Linter = %v, want [ESLint]", tools.Linter)
	}
	if len(tools.CICD) != 1 || tools.CICD[0] != "GitHub Actions (CI)" {
		t.Errorf("CICD = %v, want [GitHub Actions (CI)]", tools.CICD)
	}
}

func TestAnalyzeStructure(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"README.md":          "# demo",
		"go.mod":             "module demo\n",
		"main.go":            "package main",
		"cmd/demo/main.go":   "package main",
		"internal/app/x.go":  "package app",
		".hidden/secret.txt": "",
	})

	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	st := s.analyzeStructure()

	wantDirs := []string{"cmd", "internal"}
	if diff := cmp.Diff(wantDirs, st.RootDirs); diff != "" {
		t.Errorf("RootDirs mismatch (-want +got):\n%s", diff)
	}
	wantEntries := []string{"main.go", filepath.Join("cmd", "demo", "main.go")}
	if diff := cmp.Diff(wantEntries, st.EntryPoints); diff != "" {
		t.Errorf("EntryPoints mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteKnowledgeBase(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"go.mod":  "module demo\n\ngo 1.24\n",
		"main.go": "package main",
	})

	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	k, err := WriteKnowledgeBase(root, s.Scan())
	if err != nil {
		t.Fatalf("WriteKnowledgeBase() error = %v", err)
	}

	for _, path := range []string{
		k.CoreFile("profile.json"),
		k.CoreFile("tech-stack.json"),
		k.CoreFile("conventions.json"),
		k.IndexedFile("tools.json"),
		k.IndexedFile("structure.json"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing knowledge base file %s: %v", path, err)
		}
	}

	st := k.CheckStatus()
	if len(st.Warnings) != 0 {
		t.Errorf("CheckStatus warnings after scan: %v", st.Warnings)
	}
}
