package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/postcode-etl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "postcode-etl",
	Short: "Coordinate to nearest-postcode enrichment pipeline",
	Long:  "Reads coordinate datasets, enriches each point with its nearest postcode via postcodes.io, persists deduplicated results, and produces coverage reports.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
