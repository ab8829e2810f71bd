package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/export"
	"github.com/project-guardian/guardian/internal/ui"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Export all records as JSONL",
	Long: `Write every bug, requirement, and decision as one JSON object per
line. Without -o the records go to stdout.`,
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()

		if exportOutput == "" {
			if _, err := export.Write(k, os.Stdout); err != nil {
				fatal(err)
			}
			return
		}
		n, err := export.WriteFile(k, exportOutput)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s Exported %d records to %s\n", ui.Success("✓"), n, exportOutput)
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "sync",
	Short:   "Import records from a JSONL export",
	Long: `Read a JSONL export and write its records into this knowledge base.
Records whose id already exists are skipped; invalid lines are reported
but do not abort the import.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		cfg := mustLoadConfig(k)

		result, err := export.ReadFile(k, args[0], cfg.LockOptions())
		if err != nil {
			fatal(err)
		}

		fmt.Printf("%s Imported %d records (%d skipped)\n", ui.Success("✓"), result.Imported, result.Skipped)
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "%s\n", ui.Warn(msg))
		}
		if len(result.Errors) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
