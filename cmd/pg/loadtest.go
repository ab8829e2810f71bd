package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/loadtest"
	"github.com/project-guardian/guardian/internal/ui"
)

var (
	loadtestRecords int
	loadtestClients int
	loadtestQueries int
	loadtestWriters int
)

var loadtestCmd = &cobra.Command{
	Use:    "loadtest",
	Hidden: true,
	Short:  "Stress the lock and cache layers against a throwaway knowledge base",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig(nil)

		dir, err := os.MkdirTemp("", "pg-loadtest-*")
		if err != nil {
			fatal(err)
		}
		defer os.RemoveAll(dir)

		k, err := kb.Init(dir)
		if err != nil {
			fatal(err)
		}

		fmt.Printf("Seeding %d records...\n", loadtestRecords)
		fixture, err := loadtest.Seed(k, loadtestRecords)
		if err != nil {
			fatal(err)
		}
		defer fixture.Close()

		stats, err := fixture.RunConcurrentQueries(context.Background(), loadtestClients, loadtestQueries)
		if err != nil {
			fatal(err)
		}
		stats.Print(os.Stdout)

		fmt.Printf("Verifying lock serialization with %d writers...\n", loadtestWriters)
		if err := fixture.VerifyLockSerialization(loadtestWriters, 25, cfg.LockOptions()); err != nil {
			fatal(err)
		}
		fmt.Printf("%s No lost writes\n", ui.Success("✓"))
	},
}

func init() {
	loadtestCmd.Flags().IntVar(&loadtestRecords, "records", 500, "records to seed")
	loadtestCmd.Flags().IntVar(&loadtestClients, "clients", 20, "concurrent query clients")
	loadtestCmd.Flags().IntVar(&loadtestQueries, "queries", 50, "queries per client")
	loadtestCmd.Flags().IntVar(&loadtestWriters, "writers", 10, "concurrent lock writers")
	rootCmd.AddCommand(loadtestCmd)
}
