package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/nisab/internal/app"
	"github.com/newthinker/nisab/internal/core"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the provider fallback chains",
	RunE:  runProviders,
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Show cached snapshot coverage per data type",
	RunE:  runCoverage,
}

func init() {
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(coverageCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	return withApp(context.Background(), func(a *app.App, log *zap.Logger) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tPRIORITY\tPROVIDER\tCONFIGURED")
		for _, s := range a.Registry.Status() {
			fmt.Fprintf(w, "%s\t%d\t%s\t%t\n", s.DataType, s.Priority, s.ID, s.Configured)
		}
		return w.Flush()
	})
}

func runCoverage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	return withApp(ctx, func(a *app.App, log *zap.Logger) error {
		coverage, err := a.Syncer.Coverage(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tCOUNT\tEARLIEST\tLATEST")
		for _, c := range coverage {
			if c.Count == 0 {
				fmt.Fprintf(w, "%s\t0\t-\t-\n", c.DataType)
				continue
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", c.DataType, c.Count, core.FormatDate(c.Earliest), core.FormatDate(c.Latest))
		}
		return w.Flush()
	})
}
