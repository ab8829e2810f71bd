package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/ui"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "kb",
	Short:   "Check whether the knowledge base is initialized and complete",
	Long: `Check for a knowledge base in the current directory or one of its
parents and report which expected files are present. Exits 1 when no
knowledge base is initialized.`,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fatal(err)
		}

		k, err := kb.Find(cwd)
		if err != nil {
			if statusJSON {
				_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"initialized": false})
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			os.Exit(1)
		}

		status := k.CheckStatus()
		if statusJSON {
			_ = json.NewEncoder(os.Stdout).Encode(status)
			return
		}

		fmt.Printf("%s Knowledge base at %s\n", ui.Success("✓"), k.Dir())
		fmt.Println(ui.KeyValue("Bugs", fmt.Sprintf("%d", k.CountRecords(kb.KindBug))))
		fmt.Println(ui.KeyValue("Requirements", fmt.Sprintf("%d", k.CountRecords(kb.KindRequirement))))
		fmt.Println(ui.KeyValue("Decisions", fmt.Sprintf("%d", k.CountRecords(kb.KindDecision))))
		for _, warning := range status.Warnings {
			fmt.Printf("%s %s\n", ui.Warn("⚠"), warning)
		}
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}
