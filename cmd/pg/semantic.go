package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/search"
	"github.com/project-guardian/guardian/internal/semantic"
	"github.com/project-guardian/guardian/internal/ui"
)

var (
	semanticKind string
	semanticTop  int
)

var semanticCmd = &cobra.Command{
	Use:     "semantic <query>",
	GroupID: "query",
	Short:   "Search with model-based relevance ranking",
	Long: `Search the knowledge base and re-rank the candidates with a language
model. Requires ANTHROPIC_API_KEY; without it the command falls back to
plain keyword ranking.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSemanticSearch(strings.Join(args, " "), semanticKind, semanticTop)
	},
}

var semanticStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether model re-ranking is available",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig(nil)

		if !semantic.Available() {
			fmt.Println(ui.Warn("unavailable: ANTHROPIC_API_KEY is not set"))
			return
		}
		fmt.Println(ui.Success("available"))
		if cfg.SemanticModel != "" {
			fmt.Println(ui.KeyValue("model", cfg.SemanticModel))
		}
	},
}

// runSemanticSearch serves both 'pg semantic' and 'pg search --semantic'.
func runSemanticSearch(query, kindFlag string, top int) {
	k := mustFindKB()
	cfg := mustLoadConfig(k)

	kind := kb.KindBug
	if kindFlag != "" {
		parsed, err := kb.ParseKind(kindFlag)
		if err != nil {
			fatal(err)
		}
		kind = parsed
	}

	opts := search.Options{TopK: top}
	if opts.TopK <= 0 {
		opts.TopK = cfg.SearchTopK
	}

	searcher := search.New(k)
	var matches []search.Match
	if semantic.Available() {
		reranker, err := semantic.New()
		if err != nil {
			fatal(err)
		}
		reranker.UseModel(cfg.SemanticModel)
		matches, err = reranker.Search(context.Background(), searcher, kind, query, opts)
		if err != nil {
			fatal(err)
		}
	} else {
		fmt.Fprintln(os.Stderr, ui.Warn("ANTHROPIC_API_KEY not set; using keyword ranking"))
		var err error
		matches, err = searcher.Search(kind, query, opts)
		if err != nil {
			fatal(err)
		}
	}

	if len(matches) == 0 {
		fmt.Println(ui.Muted("No matches."))
		return
	}
	for _, m := range matches {
		printMatch(m)
	}
}

func init() {
	semanticCmd.Flags().StringVar(&semanticKind, "kind", "", "restrict to bug, requirement, or decision")
	semanticCmd.Flags().IntVar(&semanticTop, "top", 0, "maximum results (default from config)")
	semanticCmd.AddCommand(semanticStatusCmd)
	rootCmd.AddCommand(semanticCmd)
}
