package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/ui"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "kb",
	Short:   "Print one record as JSON",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()

		kind, err := kb.KindForID(args[0])
		if err != nil {
			fatal(err)
		}

		var rec kb.Record
		switch kind {
		case kb.KindBug:
			rec, err = k.ReadBug(args[0])
		case kb.KindRequirement:
			rec, err = k.ReadRequirement(args[0])
		case kb.KindDecision:
			rec, err = k.ReadDecision(args[0])
		}
		if err != nil {
			fatal(err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			fatal(err)
		}
	},
}

var listKind string

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "kb",
	Short:   "List records, newest last",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()

		kinds := kb.Kinds()
		if listKind != "" {
			kind, err := kb.ParseKind(listKind)
			if err != nil {
				fatal(err)
			}
			kinds = []kb.Kind{kind}
		}

		total := 0
		for _, kind := range kinds {
			records, err := k.ReadRecords(kind)
			if err != nil {
				fatal(err)
			}
			for _, rec := range records {
				fmt.Printf("%s  %s  %s\n", ui.ID(rec.RecordID()), rec.RecordTitle(),
					ui.Muted(rec.RecordedTime().Format("2006-01-02")))
				total++
			}
		}
		if total == 0 {
			fmt.Println(ui.Muted("No records yet."))
		}
	},
}

func init() {
	listCmd.Flags().StringVar(&listKind, "kind", "", "restrict to bug, requirement, or decision")
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
}
