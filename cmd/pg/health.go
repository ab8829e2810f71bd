package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/health"
	"github.com/project-guardian/guardian/internal/ui"
)

var healthJSON bool

var healthCmd = &cobra.Command{
	Use:     "health",
	GroupID: "kb",
	Short:   "Score the knowledge base's health",
	Long: `Check the knowledge base for stale, incomplete, or oversized content
and report a 0-100 score per area plus an overall score.`,
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		report := health.New(k).Run()

		if healthJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				fatal(err)
			}
			return
		}

		fmt.Printf("%s  %s\n\n", ui.Heading("Knowledge base health:"), ui.Score(report.OverallScore))
		fmt.Printf("Status: %s\n\n", report.Status)

		areas := make([]string, 0, len(report.Scores))
		for area := range report.Scores {
			areas = append(areas, area)
		}
		sort.Strings(areas)
		for _, area := range areas {
			fmt.Println(ui.KeyValue(area, ui.Score(report.Scores[area])))
		}

		if len(report.Issues) > 0 {
			fmt.Println()
			fmt.Println(ui.Heading("Issues"))
			for _, issue := range report.Issues {
				fmt.Printf("  %s\n", ui.Warn(issue))
			}
		}
		if len(report.Recommendations) > 0 {
			fmt.Println()
			fmt.Println(ui.Heading("Recommendations"))
			for _, rec := range report.Recommendations {
				fmt.Printf("  - %s\n", rec)
			}
		}
	},
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "machine-readable output")
	rootCmd.AddCommand(healthCmd)
}
