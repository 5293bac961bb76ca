package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodprep/internal/config"
	"github.com/sells-group/floodprep/internal/pipeline"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "floodprep",
	Short: "Flood model boundary preparation",
	Long:  "Loads a study-area boundary, resolves its UTM projection, writes the normalised boundary and registers the run's parameters and metadata with the catalogue.",

	SilenceUsage: true,
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
		os.Exit(pipeline.ExitCode(err))
	}
}
