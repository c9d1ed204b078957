package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/postcode-etl/internal/extract"
	"github.com/sells-group/postcode-etl/internal/pipeline"
	"github.com/sells-group/postcode-etl/pkg/postcodes"
)

var (
	runInput   string
	runLayout  string
	runWorkers int
	runDriver  string
	runDSN     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enrichment pipeline for an input dataset",
	Long:  "Extracts coordinates from a CSV or XLSX source (local path, HTTP, or FTP URL), enriches them with nearest postcodes, loads them into the store, and writes report artifacts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Flag overrides
		if runWorkers > 0 {
			cfg.Enrich.Workers = runWorkers
		}
		if runDriver != "" {
			cfg.Store.Driver = runDriver
		}
		if runDSN != "" {
			cfg.Store.DatabaseURL = runDSN
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var layout *extract.Layout
		if runLayout != "" {
			l, err := extract.LoadLayout(runLayout)
			if err != nil {
				return err
			}
			layout = l
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		client := postcodes.New(
			postcodes.WithBaseURL(cfg.API.BaseURL),
			postcodes.WithTimeout(time.Duration(cfg.API.TimeoutSecs)*time.Second),
			postcodes.WithRateLimit(cfg.API.RateLimit),
		)

		p := pipeline.New(cfg, st, client)
		result, err := p.Run(ctx, runInput, layout)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", result.RunID),
			zap.Int("total", result.Counts.Total),
			zap.Int64("inserted", result.Counts.Inserted),
		)

		fmt.Print(result.Summary)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "input dataset: local path, http(s), or ftp URL (required)")
	runCmd.Flags().StringVar(&runLayout, "layout", "", "YAML layout file mapping source columns to lat/lon")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "worker pool width (default from config)")
	runCmd.Flags().StringVar(&runDriver, "driver", "", "store driver: sqlite or postgres (default from config)")
	runCmd.Flags().StringVar(&runDSN, "dsn", "", "store DSN (default from config)")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
