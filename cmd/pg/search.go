package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/querycache"
	"github.com/project-guardian/guardian/internal/search"
	"github.com/project-guardian/guardian/internal/ui"
)

var (
	searchKind     string
	searchTop      int
	searchTags     []string
	searchSince    string
	searchSemantic bool
)

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	GroupID: "query",
	Short:   "Find similar bugs, requirements, and decisions",
	Long: `Search the knowledge base by keyword similarity. Results are ranked
by token overlap with the query, best match first.

--since accepts natural language ("2 weeks ago", "last monday") as well
as YYYY-MM-DD dates. --tags skips ranking and returns exact tag matches.`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		cfg := mustLoadConfig(k)

		if len(searchTags) > 0 {
			runTagSearch(k, splitTags(searchTags))
			return
		}
		if len(args) == 0 {
			fatal(fmt.Errorf("a query or --tags is required"))
		}
		query := strings.Join(args, " ")

		if searchSemantic {
			runSemanticSearch(query, searchKind, searchTop)
			return
		}

		opts := search.Options{TopK: searchTop}
		if opts.TopK <= 0 {
			opts.TopK = cfg.SearchTopK
		}
		if searchSince != "" {
			since, err := parseSince(searchSince)
			if err != nil {
				fatal(err)
			}
			opts.Since = since
		}

		searcher := search.New(k)
		var matches []search.Match
		var err error
		if searchKind != "" {
			var kind kb.Kind
			kind, err = kb.ParseKind(searchKind)
			if err != nil {
				fatal(err)
			}
			matches, err = searcher.Search(kind, query, opts)
		} else {
			matches, err = searcher.SearchAll(query, opts)
		}
		if err != nil {
			fatal(err)
		}

		if len(matches) == 0 {
			fmt.Println(ui.Muted("No matches."))
			return
		}
		for _, m := range matches {
			printMatch(m)
		}
	},
}

func printMatch(m search.Match) {
	rec := m.Record
	fmt.Printf("%s  %s (%.2f)\n", ui.ID(rec.RecordID()), rec.RecordTitle(), m.Score)
	if tags := rec.RecordTags(); len(tags) > 0 {
		fmt.Printf("    %s\n", ui.Tags(tags))
	}
	fmt.Printf("    %s\n", ui.Muted(rec.RecordedTime().Format("2006-01-02")))
}

// runTagSearch prefers the query cache when one exists and is in step
// with the record files, falling back to scanning them otherwise.
func runTagSearch(k *kb.KB, tags []string) {
	if rows, ok := tagSearchFromCache(k, tags); ok {
		if len(rows) == 0 {
			fmt.Println(ui.Muted("No matches."))
			return
		}
		for _, row := range rows {
			fmt.Printf("%s  %s\n", ui.ID(row.ID), row.Title)
			fmt.Printf("    %s\n", ui.Tags(row.Tags))
		}
		return
	}

	kind := kb.KindBug
	if searchKind != "" {
		parsed, err := kb.ParseKind(searchKind)
		if err != nil {
			fatal(err)
		}
		kind = parsed
	}
	records, err := search.New(k).SearchByTags(kind, tags)
	if err != nil {
		fatal(err)
	}
	if len(records) == 0 {
		fmt.Println(ui.Muted("No matches."))
		return
	}
	for _, rec := range records {
		fmt.Printf("%s  %s\n", ui.ID(rec.RecordID()), rec.RecordTitle())
		fmt.Printf("    %s\n", ui.Tags(rec.RecordTags()))
	}
}

func tagSearchFromCache(k *kb.KB, tags []string) ([]querycache.Row, bool) {
	// Never create a cache as a side effect of searching.
	if _, err := os.Stat(k.CachePath()); err != nil {
		return nil, false
	}
	db, err := querycache.Open(k.CachePath())
	if err != nil {
		return nil, false
	}
	defer db.Close()

	ctx := context.Background()
	if fresh, err := db.Fresh(ctx, k); err != nil || !fresh {
		return nil, false
	}
	seen := make(map[string]bool)
	var rows []querycache.Row
	for _, tag := range tags {
		matched, err := db.ByTag(ctx, tag)
		if err != nil {
			return nil, false
		}
		for _, row := range matched {
			if !seen[row.ID] {
				seen[row.ID] = true
				rows = append(rows, row)
			}
		}
	}
	return rows, true
}

// parseSince resolves natural-language and YYYY-MM-DD dates.
func parseSince(input string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", input); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(input, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", input, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("cannot interpret date %q", input)
	}
	return result.Time, nil
}

func init() {
	searchCmd.Flags().StringVar(&searchKind, "kind", "", "restrict to bug, requirement, or decision")
	searchCmd.Flags().IntVar(&searchTop, "top", 0, "maximum results (default from config)")
	searchCmd.Flags().StringSliceVar(&searchTags, "tags", nil, "exact tag match instead of ranking")
	searchCmd.Flags().StringVar(&searchSince, "since", "", "only records newer than this date")
	searchCmd.Flags().BoolVar(&searchSemantic, "semantic", false, "re-rank results with a language model")
	rootCmd.AddCommand(searchCmd)
}
