package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/scanner"
	"github.com/project-guardian/guardian/internal/ui"
	"github.com/project-guardian/guardian/internal/vcsinfo"
)

var (
	scanIncremental bool
	scanForce       bool
	scanYes         bool
)

var scanCmd = &cobra.Command{
	Use:     "scan [path]",
	GroupID: "kb",
	Short:   "Scan a project and build its knowledge base",
	Long: `Scan the project to detect its type, tech stack, tooling, conventions,
and structure, writing the results to .project-ai/.

With --incremental, only files changed since the last pass are
reprocessed.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}

		if scanIncremental {
			runIncrementalUpdate()
			return
		}

		s, err := scanner.New(root)
		if err != nil {
			fatal(err)
		}

		if !kb.IsLikelyProject(s.Root) && !scanForce {
			if !confirmUnlikelyRoot(s.Root) {
				fmt.Fprintf(os.Stderr, "Scan cancelled. Use --force to scan anyway.\n")
				os.Exit(1)
			}
		}

		fmt.Printf("%s Scanning %s...\n", ui.Info("→"), s.Root)
		result := s.Scan()

		fmt.Println(ui.KeyValue("Type", result.ProjectType))
		if len(result.TechStack.Languages) > 0 {
			fmt.Println(ui.KeyValue("Languages", strings.Join(result.TechStack.Languages, ", ")))
		}
		if len(result.TechStack.Frameworks) > 0 {
			fmt.Println(ui.KeyValue("Frameworks", strings.Join(result.TechStack.Frameworks, ", ")))
		}

		// Nothing is written until the user signs off on the report.
		if !scanYes && !confirmWrite(s.Root) {
			fmt.Fprintf(os.Stderr, "Scan cancelled; nothing written. Use --yes to skip the prompt.\n")
			os.Exit(1)
		}

		k, err := scanner.WriteKnowledgeBase(s.Root, result)
		if err != nil {
			fatal(err)
		}

		tracker := vcsinfo.New(k)
		cfg := mustLoadConfig(k)
		if label, err := tracker.Record(context.Background(), vcsinfo.UpdateInitialScan, nil, cfg.LockOptions()); err == nil {
			fmt.Printf("%s Recorded version %s\n", ui.Success("✓"), label)
		}

		fmt.Printf("%s Knowledge base written to %s\n", ui.Success("✓"), k.Dir())
	},
}

// confirmUnlikelyRoot asks before building a knowledge base in a
// directory with no recognizable project markers.
func confirmUnlikelyRoot(root string) bool {
	if !ui.Interactive() {
		return false
	}

	proceed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("%s does not look like a project root. Scan anyway?", root)).
			Value(&proceed),
	))
	if err := form.Run(); err != nil {
		return false
	}
	return proceed
}

// confirmWrite asks before materializing the knowledge base tree. Without
// a terminal attached the prompt is skipped and the write proceeds.
func confirmWrite(root string) bool {
	if !ui.Interactive() {
		return true
	}

	proceed := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Write knowledge base to %s?", filepath.Join(root, kb.DirName))).
			Value(&proceed),
	))
	if err := form.Run(); err != nil {
		return false
	}
	return proceed
}

func init() {
	scanCmd.Flags().BoolVar(&scanIncremental, "incremental", false, "only reprocess changed files")
	scanCmd.Flags().BoolVar(&scanForce, "force", false, "scan even when no project markers are found")
	scanCmd.Flags().BoolVar(&scanYes, "yes", false, "write the knowledge base without confirming")
	rootCmd.AddCommand(scanCmd)
}
