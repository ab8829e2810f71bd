// Command pg maintains a per-project knowledge base under .project-ai/
// that records what an AI assistant (or a human) learns while working
// on the project: bugs, requirements, and architecture decisions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/config"
	"github.com/project-guardian/guardian/internal/kb"
)

var rootCmd = &cobra.Command{
	Use:   "pg",
	Short: "Project Guardian - a file-based project knowledge base",
	Long: `Project Guardian maintains a knowledge base under .project-ai/ in your
project root. It scans the project to understand its tech stack and
structure, records bugs, requirements, and decisions as JSON files, and
answers similarity and context queries over them.

Start with 'pg scan' in a project directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "kb", Title: "Knowledge base:"},
		&cobra.Group{ID: "query", Title: "Queries:"},
		&cobra.Group{ID: "sync", Title: "Sync and serving:"},
	)
}

// mustFindKB locates the knowledge base from the working directory,
// exiting with a hint when none is initialized.
func mustFindKB() *kb.KB {
	cwd, err := os.Getwd()
	if err != nil {
		fatal(err)
	}
	k, err := kb.Find(cwd)
	if err != nil {
		fatal(err)
	}
	return k
}

// mustLoadConfig resolves settings for the given knowledge base.
func mustLoadConfig(k *kb.KB) *config.Config {
	cfg, err := config.Load(k)
	if err != nil {
		fatal(err)
	}
	return cfg
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
}
