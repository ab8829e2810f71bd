package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/ui"
	"github.com/project-guardian/guardian/internal/vcsinfo"
)

var versionsCmd = &cobra.Command{
	Use:     "versions",
	GroupID: "kb",
	Short:   "Inspect knowledge base version history",
}

var versionsRecordCmd = &cobra.Command{
	Use:   "record [note]",
	Short: "Record a manual version entry",
	Args:  cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		cfg := mustLoadConfig(k)

		changes := map[string]any{}
		if note := strings.Join(args, " "); note != "" {
			changes["note"] = note
		}
		label, err := vcsinfo.New(k).Record(context.Background(), vcsinfo.UpdateManual, changes, cfg.LockOptions())
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s Version recorded: %s\n", ui.Success("✓"), label)
	},
}

var versionsCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current commit and latest version entry",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		tracker := vcsinfo.New(k)

		commit := tracker.CurrentCommit(context.Background())
		if commit == nil {
			fmt.Println(ui.Muted("Not a git repository (or no commits yet)."))
		} else {
			fmt.Println(ui.KeyValue("commit", fmt.Sprintf("%s (%s)", commit.ShortHash, commit.Branch)))
			fmt.Println(ui.KeyValue("message", commit.Message))
			fmt.Println(ui.KeyValue("author", commit.Author))
			fmt.Println(ui.KeyValue("date", commit.Date))
		}

		entries, err := tracker.History()
		if err != nil {
			fatal(err)
		}
		if len(entries) == 0 {
			fmt.Println(ui.Muted("No version history yet."))
			return
		}
		last := entries[len(entries)-1]
		fmt.Println(ui.KeyValue("version", fmt.Sprintf("v%d (%s, %s)", len(entries), last.UpdateType, last.Timestamp)))
	},
}

var versionsRecentLimit int

var versionsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recent version entries",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		tracker := vcsinfo.New(k)

		entries, err := tracker.Recent(versionsRecentLimit)
		if err != nil {
			fatal(err)
		}
		if len(entries) == 0 {
			fmt.Println(ui.Muted("No version history yet."))
			return
		}

		all, err := tracker.History()
		if err != nil {
			fatal(err)
		}
		base := len(all) - len(entries)
		for i, entry := range entries {
			label := fmt.Sprintf("v%d", base+i+1)
			detail := entry.UpdateType
			if entry.Git != nil {
				detail += " @ " + entry.Git.ShortHash
			}
			fmt.Printf("%s  %s  %s\n", ui.ID(label), entry.Timestamp, detail)
		}
	},
}

var changelogSince int

var versionsChangelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Render the version history as markdown",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()

		md, err := vcsinfo.New(k).Changelog(changelogSince)
		if err != nil {
			fatal(err)
		}
		fmt.Print(md)
	},
}

var (
	associateFixed      string
	associateIntroduced string
)

var versionsAssociateCmd = &cobra.Command{
	Use:   "associate <bug-id>",
	Short: "Associate a bug with the commits that introduced and fixed it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		cfg := mustLoadConfig(k)

		err := vcsinfo.New(k).AssociateBug(context.Background(), args[0], associateFixed, associateIntroduced, cfg.LockOptions())
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s Bug %s associated\n", ui.Success("✓"), ui.ID(args[0]))
	},
}

var bugsRangeEnd string

var versionsBugsCmd = &cobra.Command{
	Use:   "bugs-in-range <start>",
	Short: "List bug ids mentioned in commits between two revisions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()

		ids, err := vcsinfo.New(k).BugsInRange(context.Background(), args[0], bugsRangeEnd)
		if err != nil {
			fatal(err)
		}
		if len(ids) == 0 {
			fmt.Println(ui.Muted("No bug references found."))
			return
		}
		for _, id := range ids {
			fmt.Println(ui.ID(id))
		}
	},
}

func init() {
	versionsRecentCmd.Flags().IntVar(&versionsRecentLimit, "limit", 0, "entries to show (default 10)")
	versionsChangelogCmd.Flags().IntVar(&changelogSince, "since", 0, "skip this many leading versions")
	versionsAssociateCmd.Flags().StringVar(&associateFixed, "fixed-in", "", "commit that fixed the bug")
	versionsAssociateCmd.Flags().StringVar(&associateIntroduced, "introduced-in", "", "commit that introduced the bug")
	versionsBugsCmd.Flags().StringVar(&bugsRangeEnd, "end", "", "end revision (default HEAD)")

	versionsCmd.AddCommand(versionsRecordCmd)
	versionsCmd.AddCommand(versionsCurrentCmd)
	versionsCmd.AddCommand(versionsRecentCmd)
	versionsCmd.AddCommand(versionsChangelogCmd)
	versionsCmd.AddCommand(versionsAssociateCmd)
	versionsCmd.AddCommand(versionsBugsCmd)
	rootCmd.AddCommand(versionsCmd)
}
