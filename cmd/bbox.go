package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	bboxOpts    runFlags
	bboxGeoJSON bool
)

var bboxCmd = &cobra.Command{
	Use:   "bbox",
	Short: "Print the grid-snapped footprint of the boundary",
	RunE: func(cmd *cobra.Command, args []string) error {
		bboxOpts.apply(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		p, _, err := newPipeline(cfg)
		if err != nil {
			return err
		}

		result, err := p.Plan(cmd.Context(), bboxOpts.job(cfg))
		if err != nil {
			return err
		}
		if !bboxGeoJSON {
			return printJSON(os.Stdout, result.BBox)
		}
		g, err := result.BBox.GeoJSON()
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, g)
	},
}

func init() {
	bboxOpts.register(bboxCmd)
	bboxCmd.Flags().BoolVar(&bboxGeoJSON, "geojson", false, "print the footprint as a GeoJSON polygon")
	rootCmd.AddCommand(bboxCmd)
}
