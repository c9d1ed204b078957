package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/postcode-etl/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store statistics",
	Long:  "Display persisted location counts, postcode coverage, and the most frequent postcodes.",
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

		stats, err := st.Stats(ctx, 10)
		if err != nil {
			return eris.Wrap(err, "status: store stats")
		}

		fmt.Println("=== Store Status ===")
		fmt.Printf("Total locations:    %d\n", stats.Total)
		fmt.Printf("With postcode:      %d\n", stats.WithPostcode)
		fmt.Printf("Without postcode:   %d\n", stats.WithoutPostcode)
		fmt.Printf("Coverage:           %.2f%%\n", report.Coverage(stats.WithPostcode, stats.Total))

		if len(stats.TopPostcodes) > 0 {
			fmt.Println()
			fmt.Println("Top postcodes:")
			for _, pc := range stats.TopPostcodes {
				fmt.Printf("  %-12s %d\n", pc.Postcode, pc.Count)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
