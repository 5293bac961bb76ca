package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Prepare the boundary of one location",
	Long:  "Loads <data>/inputs/boundary, resolves the projection, writes <data>/outputs/boundary and emits the parameter manifest and metadata documents.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runOpts.apply(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		p, m, err := newPipeline(cfg)
		if err != nil {
			return err
		}

		result, err := p.Run(ctx, runOpts.job(cfg))
		writeMetrics(cfg, m)
		if err != nil {
			// A catalogue failure still leaves a written boundary worth reporting.
			if result != nil && len(result.Boundary) > 0 {
				_ = printJSON(os.Stdout, result)
			}
			return err
		}

		zap.L().Info("boundary prepared",
			zap.String("location", result.Location),
			zap.String("epsg", result.Resolution.EPSG),
			zap.Int("metadata", len(result.Catalog.Metadata)),
		)
		return printJSON(os.Stdout, result)
	},
}

func init() {
	runOpts.register(runCmd)
	rootCmd.AddCommand(runCmd)
}
