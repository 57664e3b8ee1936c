package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/nisab/internal/app"
	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/syncer"
)

var (
	syncTypes string
	syncFrom  string
	syncTo    string
	syncForce bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Backfill snapshots over a date range",
	Long: `Fetch every canonical snapshot date in [from, to] that is not cached yet.
With --force, cached entries are re-fetched and replaced. Ctrl-C stops
scheduling new items and lets in-flight fetches finish.`,
	RunE: runSync,
}

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Upload locally cached snapshots to the remote bucket",
	RunE:  runMirror,
}

func init() {
	for _, c := range []*cobra.Command{syncCmd, mirrorCmd} {
		c.Flags().StringVar(&syncTypes, "types", "", "comma-separated data types (default all)")
		c.Flags().StringVar(&syncFrom, "from", "", "start date YYYY-MM-DD (required)")
		c.Flags().StringVar(&syncTo, "to", "", "end date YYYY-MM-DD (default today)")
		c.MarkFlagRequired("from")
		rootCmd.AddCommand(c)
	}
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "re-fetch and replace cached snapshots")
}

func syncRequest() (syncer.Request, error) {
	today := core.Today(time.Now())
	types, err := core.ParseDataTypes(syncTypes)
	if err != nil {
		return syncer.Request{}, err
	}
	start, err := parseDateFlag("from", syncFrom, today)
	if err != nil {
		return syncer.Request{}, err
	}
	end, err := parseDateFlag("to", syncTo, today)
	if err != nil {
		return syncer.Request{}, err
	}
	if end.Before(start) {
		return syncer.Request{}, fmt.Errorf("--to must not be before --from")
	}
	return syncer.Request{Types: types, Start: start, End: end, Today: today}, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	req, err := syncRequest()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(a *app.App, log *zap.Logger) error {
		run := a.Syncer.SyncRange
		if syncForce {
			run = a.Syncer.ForceResync
		}
		report, err := run(ctx, req)
		if err != nil {
			return err
		}
		if err := printJSON(report); err != nil {
			return err
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d of %d items failed", report.Failed, report.Planned)
		}
		return nil
	})
}

func runMirror(cmd *cobra.Command, args []string) error {
	req, err := syncRequest()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(a *app.App, log *zap.Logger) error {
		report, err := a.Syncer.Mirror(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(report)
	})
}
