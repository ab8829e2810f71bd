package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/project-guardian/guardian/internal/kb"
)

func TestIncremental_Run(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"go.mod":  "module demo\n\ngo 1.24\n",
		"main.go": "package main",
	})
	k, err := kb.Init(root)
	if err != nil {
		t.Fatal(err)
	}

	u := NewIncremental(k)

	// First pass sees everything as added.
	res, err := u.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Updated {
		t.Fatal("first pass Updated = false, want true")
	}
	wantAdded := []string{"go.mod", "main.go"}
	if diff := cmp.Diff(wantAdded, res.Changes.Added); diff != "" {
		t.Errorf("Added mismatch (-want +got):\n%s", diff)
	}

	// Second pass with no edits is a no-op.
	res, err = u.Run()
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if res.Updated {
		t.Errorf("no-op pass Updated = true, changes = %+v", res.Changes)
	}

	// Modify one file, add one, delete one.
	writeFiles(t, root, map[string]string{
		"main.go":  "package main\n\nfunc main() {}",
		"extra.go": "package main",
	})
	if err := os.Remove(filepath.Join(root, "go.mod")); err != nil {
		t.Fatal(err)
	}

	res, err = u.Run()
	if err != nil {
		t.Fatalf("third Run() error = %v", err)
	}
	if !res.Updated {
		t.Fatal("third pass Updated = false, want true")
	}
	if diff := cmp.Diff([]string{"extra.go"}, res.Changes.Added); diff != "" {
		t.Errorf("Added mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"main.go"}, res.Changes.Modified); diff != "" {
		t.Errorf("Modified mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"go.mod"}, res.Changes.Deleted); diff != "" {
		t.Errorf("Deleted mismatch (-want +got):\n%s", diff)
	}
}

func TestIncremental_IgnoresVendoredTrees(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"app.js":                    "console.log(1)",
		"node_modules/pkg/index.js": "ignored",
		"vendor/lib/lib.go":         "ignored",
		"dist/bundle.js":            "ignored",
	})
	k, err := kb.Init(root)
	if err != nil {
		t.Fatal(err)
	}

	res, err := NewIncremental(k).Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"app.js"}, res.Changes.Added); diff != "" {
		t.Errorf("Added mismatch (-want +got):\n%s", diff)
	}
}

func TestIncremental_TouchesProfile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"main.go": "package main"})
	k, err := kb.Init(root)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewIncremental(k).Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(k.CoreFile("profile.json"))
	if err != nil {
		t.Fatalf("profile.json not written: %v", err)
	}
	for _, want := range []string{"last_updated", "incremental"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("profile.json missing %q: %s", want, data)
		}
	}
}
