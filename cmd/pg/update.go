package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/scanner"
	"github.com/project-guardian/guardian/internal/ui"
	"github.com/project-guardian/guardian/internal/vcsinfo"
)

var updateCmd = &cobra.Command{
	Use:     "update",
	GroupID: "kb",
	Short:   "Incrementally update the knowledge base",
	Long: `Detect project files changed since the last scan and refresh only the
affected knowledge base sections. Equivalent to 'pg scan --incremental'.`,
	Run: func(cmd *cobra.Command, args []string) {
		runIncrementalUpdate()
	},
}

func runIncrementalUpdate() {
	k := mustFindKB()

	result, err := scanner.NewIncremental(k).Run()
	if err != nil {
		fatal(err)
	}

	if !result.Updated {
		fmt.Printf("%s Knowledge base is up to date\n", ui.Success("✓"))
		return
	}

	changes := result.Changes
	fmt.Printf("%s Updated: %d added, %d modified, %d deleted\n", ui.Success("✓"),
		len(changes.Added), len(changes.Modified), len(changes.Deleted))

	cfg := mustLoadConfig(k)
	tracker := vcsinfo.New(k)
	changeMap := map[string]any{
		"added":    changes.Added,
		"modified": changes.Modified,
		"deleted":  changes.Deleted,
	}
	if label, err := tracker.Record(context.Background(), vcsinfo.UpdateIncremental, changeMap, cfg.LockOptions()); err == nil {
		fmt.Printf("%s Recorded version %s\n", ui.Success("✓"), label)
	}
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
