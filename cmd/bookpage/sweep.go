package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/bookpage/svc/reconcile"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a reconciliation sweep once",
	Long: `Run one reconciliation sweep and exit. Useful from cron when the
server runs with --no-sweeps.

Examples:
  bookpage sweep grace
  bookpage sweep preview
`,
}

var sweepGraceCmd = &cobra.Command{
	Use:   "grace",
	Short: "Unpublish past-due profiles whose grace period has ended",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd, func(ctx context.Context, s *reconcile.Service) (reconcile.SweepReport, error) {
			return s.GraceSweep(ctx)
		})
	},
}

var sweepPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Close expired preview windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd, func(ctx context.Context, s *reconcile.Service) (reconcile.SweepReport, error) {
			return s.PreviewSweep(ctx)
		})
	},
}

func init() {
	sweepCmd.AddCommand(sweepGraceCmd)
	sweepCmd.AddCommand(sweepPreviewCmd)
}

func runSweep(cmd *cobra.Command, sweep func(context.Context, *reconcile.Service) (reconcile.SweepReport, error)) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, newLogger(cfg), false)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := sweep(ctx, a.reconcile)
	if err != nil {
		return err
	}
	printReport(cmd, report)
	return nil
}

func printReport(cmd *cobra.Command, r reconcile.SweepReport) {
	fmt.Fprintf(cmd.OutOrStdout(), "matched %d, changed %d, failed %d\n", r.Matched, r.Changed, r.Failed)
}
