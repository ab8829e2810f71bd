package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/ui"
)

var recordCmd = &cobra.Command{
	Use:     "record",
	GroupID: "kb",
	Short:   "Record a bug, requirement, or decision",
	Long: `Record knowledge into the project history. Each record becomes a JSON
file under .project-ai/history/ with a generated id.

When run interactively with no flags, an input form is shown.`,
}

var (
	bugTitle       string
	bugDesc        string
	bugCause       string
	bugSolution    string
	bugSeverity    string
	bugStatus      string
	bugTags        []string
	bugFiles       []string
	bugFixedCommit string
)

var recordBugCmd = &cobra.Command{
	Use:   "bug",
	Short: "Record a bug and its fix",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		cfg := mustLoadConfig(k)

		if bugTitle == "" && bugDesc == "" {
			if !promptBug() {
				fatal(fmt.Errorf("--title and --desc are required"))
			}
		}

		bug := &kb.Bug{
			ID:            kb.NewID(kb.KindBug),
			Title:         bugTitle,
			Description:   bugDesc,
			RootCause:     bugCause,
			Solution:      bugSolution,
			Severity:      bugSeverity,
			Status:        bugStatus,
			Tags:          splitTags(bugTags),
			FilesChanged:  bugFiles,
			FixedInCommit: bugFixedCommit,
		}
		bug.SetDefaults()

		if err := k.WriteRecord(bug); err != nil {
			fatal(err)
		}
		if err := k.UpdateBugIndex(bug, cfg.LockOptions()); err != nil {
			fatal(fmt.Errorf("bug recorded but index update failed: %w", err))
		}

		fmt.Printf("%s Bug recorded: %s - %s\n", ui.Success("✓"), ui.ID(bug.ID), bug.Title)
	},
}

var (
	reqTitle     string
	reqDesc      string
	reqRationale string
	reqPriority  string
	reqStatus    string
	reqCriteria  []string
	reqTags      []string
)

var recordReqCmd = &cobra.Command{
	Use:     "req",
	Aliases: []string{"requirement"},
	Short:   "Record a requirement",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()

		if reqTitle == "" && reqDesc == "" {
			if !promptRequirement() {
				fatal(fmt.Errorf("--title and --desc are required"))
			}
		}

		req := &kb.Requirement{
			ID:                 kb.NewID(kb.KindRequirement),
			Title:              reqTitle,
			Description:        reqDesc,
			Rationale:          reqRationale,
			Priority:           reqPriority,
			Status:             reqStatus,
			AcceptanceCriteria: reqCriteria,
			Tags:               splitTags(reqTags),
		}
		req.SetDefaults()

		if err := k.WriteRecord(req); err != nil {
			fatal(err)
		}

		fmt.Printf("%s Requirement recorded: %s - %s\n", ui.Success("✓"), ui.ID(req.ID), req.Title)
	},
}

var (
	decTitle        string
	decContext      string
	decDecision     string
	decRationale    string
	decConsequences string
	decAlternatives []string
	decStatus       string
	decTags         []string
)

var recordDecisionCmd = &cobra.Command{
	Use:   "decision",
	Short: "Record an architecture decision",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()

		if decTitle == "" && decDecision == "" {
			if !promptDecision() {
				fatal(fmt.Errorf("--title, --context, and --decision are required"))
			}
		}

		dec := &kb.Decision{
			ID:           kb.NewID(kb.KindDecision),
			Title:        decTitle,
			Context:      decContext,
			Decision:     decDecision,
			Rationale:    decRationale,
			Consequences: decConsequences,
			Alternatives: decAlternatives,
			Status:       decStatus,
			Tags:         splitTags(decTags),
		}
		dec.SetDefaults()

		if err := k.WriteRecord(dec); err != nil {
			fatal(err)
		}

		fmt.Printf("%s Decision recorded: %s - %s\n", ui.Success("✓"), ui.ID(dec.ID), dec.Title)
	},
}

// promptBug collects bug fields interactively. Returns false when not
// running in a terminal.
func promptBug() bool {
	if !ui.Interactive() {
		return false
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&bugTitle),
			huh.NewText().Title("Description").Value(&bugDesc),
			huh.NewText().Title("Root cause").Value(&bugCause),
			huh.NewText().Title("Solution").Value(&bugSolution),
			huh.NewSelect[string]().Title("Severity").
				Options(huh.NewOptions("low", "medium", "high", "critical")...).
				Value(&bugSeverity),
		),
	)
	return form.Run() == nil && bugTitle != ""
}

func promptRequirement() bool {
	if !ui.Interactive() {
		return false
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&reqTitle),
			huh.NewText().Title("Description").Value(&reqDesc),
			huh.NewText().Title("Rationale").Value(&reqRationale),
			huh.NewSelect[string]().Title("Priority").
				Options(huh.NewOptions("low", "medium", "high", "critical")...).
				Value(&reqPriority),
		),
	)
	return form.Run() == nil && reqTitle != ""
}

func promptDecision() bool {
	if !ui.Interactive() {
		return false
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&decTitle),
			huh.NewText().Title("Context").Value(&decContext),
			huh.NewText().Title("Decision").Value(&decDecision),
			huh.NewText().Title("Rationale").Value(&decRationale),
		),
	)
	return form.Run() == nil && decTitle != ""
}

// splitTags accepts both repeated flags and comma-joined values.
func splitTags(raw []string) []string {
	var tags []string
	for _, item := range raw {
		for _, tag := range strings.Split(item, ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

func init() {
	recordBugCmd.Flags().StringVar(&bugTitle, "title", "", "short summary (required)")
	recordBugCmd.Flags().StringVar(&bugDesc, "desc", "", "what went wrong (required)")
	recordBugCmd.Flags().StringVar(&bugCause, "cause", "", "root cause")
	recordBugCmd.Flags().StringVar(&bugSolution, "solution", "", "how it was fixed")
	recordBugCmd.Flags().StringVar(&bugSeverity, "severity", "", "low, medium, high, or critical")
	recordBugCmd.Flags().StringVar(&bugStatus, "status", "", "open, in-progress, resolved, or closed")
	recordBugCmd.Flags().StringSliceVar(&bugTags, "tags", nil, "comma-separated tags")
	recordBugCmd.Flags().StringSliceVar(&bugFiles, "files", nil, "files changed by the fix")
	recordBugCmd.Flags().StringVar(&bugFixedCommit, "fixed-commit", "", "commit hash that fixed the bug")

	recordReqCmd.Flags().StringVar(&reqTitle, "title", "", "short summary (required)")
	recordReqCmd.Flags().StringVar(&reqDesc, "desc", "", "what is needed (required)")
	recordReqCmd.Flags().StringVar(&reqRationale, "rationale", "", "why it is needed")
	recordReqCmd.Flags().StringVar(&reqPriority, "priority", "", "low, medium, high, or critical")
	recordReqCmd.Flags().StringVar(&reqStatus, "status", "", "planned, in-progress, completed, or cancelled")
	recordReqCmd.Flags().StringSliceVar(&reqCriteria, "criteria", nil, "acceptance criteria")
	recordReqCmd.Flags().StringSliceVar(&reqTags, "tags", nil, "comma-separated tags")

	recordDecisionCmd.Flags().StringVar(&decTitle, "title", "", "short summary (required)")
	recordDecisionCmd.Flags().StringVar(&decContext, "context", "", "what prompted the decision (required)")
	recordDecisionCmd.Flags().StringVar(&decDecision, "decision", "", "what was decided (required)")
	recordDecisionCmd.Flags().StringVar(&decRationale, "rationale", "", "why this option won")
	recordDecisionCmd.Flags().StringVar(&decConsequences, "consequences", "", "expected consequences")
	recordDecisionCmd.Flags().StringSliceVar(&decAlternatives, "alternatives", nil, "rejected alternatives")
	recordDecisionCmd.Flags().StringVar(&decStatus, "status", "", "proposed, accepted, rejected, or deprecated")
	recordDecisionCmd.Flags().StringSliceVar(&decTags, "tags", nil, "comma-separated tags")

	recordCmd.AddCommand(recordBugCmd)
	recordCmd.AddCommand(recordReqCmd)
	recordCmd.AddCommand(recordDecisionCmd)
	rootCmd.AddCommand(recordCmd)
}
