package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/contextload"
	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/memcache"
	"github.com/project-guardian/guardian/internal/querycache"
	"github.com/project-guardian/guardian/internal/ui"
)

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "sync",
	Short:   "Manage the SQLite query cache",
	Long: `The query cache mirrors record metadata into .project-ai/cache.db so
tag and status lookups avoid scanning JSON files. Record files stay the
source of truth; the cache can be rebuilt at any time.`,
}

var cacheSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the cache from the record files",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()

		db, err := querycache.Open(k.CachePath())
		if err != nil {
			fatal(err)
		}
		defer db.Close()

		stats, err := db.Sync(context.Background(), k)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s Cache synced: %d upserted, %d pruned\n", ui.Success("✓"), stats.Upserted, stats.Pruned)
	},
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache size and row counts",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()

		info, err := os.Stat(k.CachePath())
		if err != nil {
			fmt.Println(ui.Muted("No cache yet. Run 'pg cache sync' to build one."))
			return
		}

		db, err := querycache.Open(k.CachePath())
		if err != nil {
			fatal(err)
		}
		defer db.Close()

		counts, err := db.CountByKind(context.Background())
		if err != nil {
			fatal(err)
		}

		fmt.Println(ui.KeyValue("path", k.CachePath()))
		fmt.Println(ui.KeyValue("size", formatSize(info.Size())))
		fmt.Println(ui.KeyValue("bugs", fmt.Sprintf("%d", counts[kb.KindBug])))
		fmt.Println(ui.KeyValue("requirements", fmt.Sprintf("%d", counts[kb.KindRequirement])))
		fmt.Println(ui.KeyValue("decisions", fmt.Sprintf("%d", counts[kb.KindDecision])))
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show in-memory context cache behavior for this project",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		cfg := mustLoadConfig(k)

		cache := memcache.NewCache(cfg.CacheMaxSize)
		loader := contextload.New(k, cache)
		loader.WarmCache()
		// A second pass through the loader exercises the warm entries.
		loader.Minimal()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cache.Stats()); err != nil {
			fatal(err)
		}
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the on-disk query cache",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()

		if err := os.Remove(k.CachePath()); err != nil {
			if os.IsNotExist(err) {
				fmt.Println(ui.Muted("No cache to clear."))
				return
			}
			fatal(err)
		}
		fmt.Printf("%s Cache cleared\n", ui.Success("✓"))
	},
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func init() {
	cacheCmd.AddCommand(cacheSyncCmd)
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
