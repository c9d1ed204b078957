package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/postcode-etl/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Regenerate report artifacts from the store",
	Long:  "Rebuilds the CSV export and text summary from persisted locations, without running the pipeline.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		locs, err := st.ListLocations(ctx)
		if err != nil {
			return eris.Wrap(err, "report: list locations")
		}

		if err := report.WriteCSV(locs, cfg.Report.CSVPath); err != nil {
			return err
		}

		stats := report.BuildStats(locs, 10)
		if err := report.WriteSummary(stats, cfg.Report.SummaryPath); err != nil {
			return err
		}

		fmt.Print(report.FormatSummary(stats))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
