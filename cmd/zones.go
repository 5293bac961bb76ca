package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodprep/internal/pipeline"
	"github.com/sells-group/floodprep/internal/utm"
	"github.com/sells-group/floodprep/internal/vector"
)

var zonesOut string

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Manage the UTM zone reference grid",
}

var zonesGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the regular UTM zone grid with ZONE and ROW_ attributes",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := zonesOut
		if out == "" {
			out = filepath.Join(pipeline.NewPaths(cfg.Data).ZonesIn, "utm_zones"+vector.ExtGeoPackage)
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return eris.Wrap(err, "zones: create output dir")
		}

		grid := utm.Grid()
		if err := vector.Write(out, utm.GridLayer(grid)); err != nil {
			return err
		}
		zap.L().Info("zone grid written", zap.String("path", out), zap.Int("cells", len(grid)))
		return nil
	},
}

func init() {
	zonesGenerateCmd.Flags().StringVar(&zonesOut, "out", "", "output file (default <data>/inputs/utm_zones/utm_zones.gpkg)")
	zonesCmd.AddCommand(zonesGenerateCmd)
	rootCmd.AddCommand(zonesCmd)
}
