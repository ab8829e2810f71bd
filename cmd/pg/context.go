package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/contextload"
	"github.com/project-guardian/guardian/internal/memcache"
)

var (
	contextFile    string
	contextQuery   string
	contextMinimal bool
)

var contextCmd = &cobra.Command{
	Use:     "context",
	GroupID: "query",
	Short:   "Assemble project context for a file or query",
	Long: `Assemble relevant project knowledge as JSON: core profile, tech
stack, conventions, and related records. --file scopes the context to
one source file's module; --query scopes it by keywords; --minimal
emits only the core files.`,
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		cfg := mustLoadConfig(k)

		cache := memcache.NewCache(cfg.CacheMaxSize)
		loader := contextload.New(k, cache)
		loader.WarmCache()

		var payload any
		switch {
		case contextMinimal:
			payload = loader.Minimal()
		case contextQuery != "":
			ctx, err := loader.ForQuery(contextQuery, contextFile)
			if err != nil {
				fatal(err)
			}
			payload = ctx
		case contextFile != "":
			ctx, err := loader.ForFile(contextFile)
			if err != nil {
				fatal(err)
			}
			payload = ctx
		default:
			fatal(fmt.Errorf("one of --file, --query, or --minimal is required"))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			fatal(err)
		}
	},
}

func init() {
	contextCmd.Flags().StringVar(&contextFile, "file", "", "assemble context for this source file")
	contextCmd.Flags().StringVar(&contextQuery, "query", "", "assemble context for this question")
	contextCmd.Flags().BoolVar(&contextMinimal, "minimal", false, "core files only")
	rootCmd.AddCommand(contextCmd)
}
