package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/config"
	"github.com/project-guardian/guardian/internal/dashboard"
	"github.com/project-guardian/guardian/internal/querycache"
	"github.com/project-guardian/guardian/internal/ui"
	"github.com/project-guardian/guardian/internal/watch"
)

var (
	watchInterval time.Duration
	watchServe    bool
	servePort     int
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Watch the project and keep the knowledge base current",
	Long: `Run a daemon that watches record files and project sources. Record
changes are mirrored into the query cache as they happen; source
changes trigger periodic incremental scans. With --serve, a dashboard
publishes updates to websocket clients.

Runs until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		runWatch(watchServe)
	},
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the watch daemon with the dashboard enabled",
	Run: func(cmd *cobra.Command, args []string) {
		runWatch(true)
	},
}

func runWatch(withDashboard bool) {
	k := mustFindKB()
	cfg := mustLoadConfig(k)

	logger := config.NewLogger(k, "[watch] ")

	db, err := querycache.Open(k.CachePath())
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	watchCfg := watch.DefaultConfig()
	watchCfg.Logger = logger
	if watchInterval > 0 {
		watchCfg.UpdateInterval = watchInterval
	} else if cfg.UpdateInterval > 0 {
		watchCfg.UpdateInterval = cfg.UpdateInterval
	}

	daemon, err := watch.New(k, db, watchCfg)
	if err != nil {
		fatal(err)
	}

	if withDashboard {
		port := cfg.DashboardPort
		if servePort > 0 {
			port = servePort
		}
		server := dashboard.NewServer(k, db, &dashboard.Config{Port: port, Logger: logger})
		if err := server.Start(); err != nil {
			fatal(err)
		}
		defer server.Stop()
		daemon.SetNotifier(server)
		fmt.Printf("Dashboard listening on http://%s\n", server.Addr())
	}

	fmt.Printf("Watching %s (update interval %s). Press Ctrl-C to stop.\n",
		ui.Muted(k.Root), watchCfg.UpdateInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.Start(ctx); err != nil && ctx.Err() == nil {
		fatal(err)
	}
	fmt.Println("Stopped.")
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "incremental update interval (default from config)")
	watchCmd.Flags().BoolVar(&watchServe, "serve", false, "also start the dashboard")
	watchCmd.Flags().IntVar(&servePort, "port", 0, "dashboard port (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "dashboard port (default from config)")
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}
