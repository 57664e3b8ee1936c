package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/nisab/internal/api/handler/api"
	"github.com/newthinker/nisab/internal/app"
	"github.com/newthinker/nisab/internal/cadence"
	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/repository"
)

var (
	snapshotType string
	snapshotDate string
	snapshotBase string
	cadenceDate  string
	cadenceToday string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the snapshot serving a date",
	RunE:  runSnapshot,
}

var cadenceCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Show which canonical date a requested date resolves to",
	RunE:  runCadence,
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotType, "type", "", "data type: fx, metals or crypto (required)")
	snapshotCmd.Flags().StringVar(&snapshotDate, "date", "", "date YYYY-MM-DD (default today)")
	snapshotCmd.Flags().StringVar(&snapshotBase, "base", core.StorageBase, "base currency for fx")
	snapshotCmd.MarkFlagRequired("type")

	cadenceCmd.Flags().StringVar(&cadenceDate, "date", "", "requested date YYYY-MM-DD (required)")
	cadenceCmd.Flags().StringVar(&cadenceToday, "today", "", "reference date YYYY-MM-DD (default today)")
	cadenceCmd.MarkFlagRequired("date")

	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(cadenceCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	dt, err := core.ParseDataType(snapshotType)
	if err != nil {
		return err
	}
	today := core.Today(time.Now())
	date, err := parseDateFlag("date", snapshotDate, today)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return withApp(ctx, func(a *app.App, log *zap.Logger) error {
		snap, err := a.Repository.Get(ctx, repository.Query{
			DataType: dt,
			Date:     date,
			Base:     snapshotBase,
			Today:    today,
		})
		if err != nil {
			return err
		}
		return printJSON(api.NewSnapshotView(snap))
	})
}

// runCadence needs only the configured policy, not the stores.
func runCadence(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	today, err := parseDateFlag("today", cadenceToday, core.Today(time.Now()))
	if err != nil {
		return err
	}
	date, err := parseDateFlag("date", cadenceDate, today)
	if err != nil {
		return err
	}

	policy := cadence.Policy{
		DailyWindowDays:  cfg.Cadence.DailyWindowDays,
		WeeklyWindowDays: cfg.Cadence.WeeklyWindowDays,
	}
	res := policy.Resolve(today, date)
	return printJSON(api.CadenceView{
		Requested:  core.FormatDate(res.Requested),
		Canonical:  core.FormatDate(res.Canonical),
		Cadence:    res.Cadence,
		AgeDays:    res.AgeDays,
		Boundaries: policy.Boundaries(today),
	})
}
