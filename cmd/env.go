package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodprep/internal/config"
	"github.com/sells-group/floodprep/internal/crs"
	"github.com/sells-group/floodprep/internal/monitoring"
	"github.com/sells-group/floodprep/internal/pipeline"
	"github.com/sells-group/floodprep/internal/variant"
)

// runFlags overrides the workflow variables for a single run.
type runFlags struct {
	data       string
	country    string
	location   string
	projection string
	variant    string
	params     map[string]string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.data, "data", "", "data root (overrides DATA)")
	cmd.Flags().StringVar(&f.country, "country", "", "country (overrides COUNTRY)")
	cmd.Flags().StringVar(&f.location, "location", "", "location (overrides LOCATION)")
	cmd.Flags().StringVar(&f.projection, "projection", "", `EPSG code, or "0" to derive the UTM zone (overrides PROJECTION)`)
	cmd.Flags().StringVar(&f.variant, "variant", "", "pipeline variant (overrides VARIANT)")
	cmd.Flags().StringToStringVar(&f.params, "param", nil, "pass-through parameter NAME=VALUE, repeatable")
}

// apply copies every flag the user set onto c.
func (f *runFlags) apply(cmd *cobra.Command, c *config.Config) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("data", &c.Data, f.data)
	set("country", &c.Run.Country, f.country)
	set("location", &c.Run.Location, f.location)
	set("projection", &c.Run.Projection, f.projection)
	set("variant", &c.Run.Variant, f.variant)
}

// job builds the run job from config and any --param overrides.
func (f *runFlags) job(c *config.Config) pipeline.Job {
	job := pipeline.JobFromConfig(c)
	if len(f.params) > 0 {
		job.Params = make(map[string]string, len(f.params))
		for k, v := range f.params {
			job.Params[strings.ToUpper(k)] = v
		}
	}
	return job
}

// newPipeline wires the projection registry, variant registry and metrics
// shared by every run.
func newPipeline(c *config.Config) (*pipeline.Pipeline, *monitoring.Metrics, error) {
	reg, err := crs.NewRegistry(c.CRS.Definitions)
	if err != nil {
		return nil, nil, eris.Wrap(err, "init projection registry")
	}
	variants, err := variant.Builtin()
	if err != nil {
		return nil, nil, eris.Wrap(err, "load variants")
	}
	m := monitoring.NewMetrics()
	return pipeline.New(c, reg, variants, m), m, nil
}

// writeMetrics exports m when a textfile path is configured. Export failures
// never change the run outcome.
func writeMetrics(c *config.Config, m *monitoring.Metrics) {
	if c.Metrics.Textfile == "" || m == nil {
		return
	}
	if err := m.WriteTextfile(c.Metrics.Textfile); err != nil {
		zap.L().Warn("metrics textfile not written", zap.String("path", c.Metrics.Textfile), zap.Error(err))
		return
	}
	zap.L().Debug("metrics textfile written", zap.String("path", c.Metrics.Textfile))
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
