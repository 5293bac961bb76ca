package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	resolveOpts runFlags
	resolveJSON bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the projection a run would use",
	Long:  "Loads the boundary and resolves PROJECTION exactly as run does, without writing any output.",
	RunE: func(cmd *cobra.Command, args []string) error {
		resolveOpts.apply(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		p, _, err := newPipeline(cfg)
		if err != nil {
			return err
		}

		result, err := p.Plan(cmd.Context(), resolveOpts.job(cfg))
		if err != nil {
			return err
		}
		if resolveJSON {
			return printJSON(os.Stdout, result.Resolution)
		}
		_, err = fmt.Fprintln(os.Stdout, result.Resolution.String())
		return err
	},
}

func init() {
	resolveOpts.register(resolveCmd)
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print the resolution as JSON")
	rootCmd.AddCommand(resolveCmd)
}
