package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodprep/internal/config"
	"github.com/sells-group/floodprep/internal/crs"
	"github.com/sells-group/floodprep/internal/geometry"
	"github.com/sells-group/floodprep/internal/pipeline"
	"github.com/sells-group/floodprep/internal/utm"
	"github.com/sells-group/floodprep/internal/variant"
	"github.com/sells-group/floodprep/internal/vector"
)

// isolate runs the test from an empty directory with the workflow variables cleared.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, env := range []string{"DATA", "COUNTRY", "LOCATION", "PROJECTION", "VARIANT", "FLOODPREP_CONFIG"} {
		t.Setenv(env, "")
		require.NoError(t, os.Unsetenv(env))
	}

	oldCfg := cfg
	cfg = nil
	t.Cleanup(func() { cfg = oldCfg })
	return dir
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "batch", "resolve", "bbox", "variants", "zones"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "floodprep", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"data", "country", "location", "projection", "variant", "param"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
		assert.NotNil(t, resolveCmd.Flags().Lookup(name), "resolve should have --%s", name)
		assert.NotNil(t, bboxCmd.Flags().Lookup(name), "bbox should have --%s", name)
	}
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("file")
	require.NotNil(t, flag)
	flag = batchCmd.Flags().Lookup("concurrency")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestRootCmd_PersistentPreRunE_WithConfigFile(t *testing.T) {
	dir := isolate(t)
	content := `
data: /srv/flood
run:
  country: GBR
  location: Oxford
log:
  level: info
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "floodprep.yaml"), []byte(content), 0o644))

	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))
	require.NotNil(t, cfg)
	assert.Equal(t, "/srv/flood", cfg.Data)
	assert.Equal(t, "Oxford", cfg.Run.Location)
	assert.Equal(t, "udm", cfg.Run.Variant)
}

func TestRootCmd_PersistentPreRunE_BadLogLevel(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "floodprep.yaml"), []byte("log:\n  level: NOT_A_LEVEL\n"), 0o644))

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
	assert.Equal(t, pipeline.ExitConfig, pipeline.ExitCode(err))
}

func TestRunFlags_ApplyOnlyChanged(t *testing.T) {
	var f runFlags
	cmd := &cobra.Command{Use: "probe"}
	f.register(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--location", "Leeds", "--projection", "0", "--param", "total_depth=40"}))

	c := &config.Config{Data: "/data"}
	c.Run.Country = "GBR"
	c.Run.Location = "Oxford"
	c.Run.Variant = "citycat"
	f.apply(cmd, c)

	assert.Equal(t, "/data", c.Data)
	assert.Equal(t, "GBR", c.Run.Country)
	assert.Equal(t, "Leeds", c.Run.Location)
	assert.Equal(t, "0", c.Run.Projection)
	assert.Equal(t, "citycat", c.Run.Variant)

	job := f.job(c)
	assert.Equal(t, map[string]string{"TOTAL_DEPTH": "40"}, job.Params)
	assert.Equal(t, "Leeds", job.Run.Location)
}

func TestFormatBatch(t *testing.T) {
	outcomes := []pipeline.BatchOutcome{
		{
			Job:    pipeline.Job{Variant: "udm", Run: variant.Run{Location: "Oxford"}},
			Result: &pipeline.Result{Resolution: utm.Resolution{EPSG: "32630"}},
		},
		{
			Job: pipeline.Job{Variant: "udm", Run: variant.Run{Location: "Leeds"}},
			Err: vector.ErrMissingInput,
		},
	}

	var buf bytes.Buffer
	formatBatch(&buf, outcomes)
	out := buf.String()

	assert.Contains(t, out, "LOCATION")
	assert.Contains(t, out, "Oxford")
	assert.Contains(t, out, "32630")
	assert.Contains(t, out, "missing_input")
	assert.Contains(t, out, "3\n")
}

func TestFormatVariants(t *testing.T) {
	reg, err := variant.Builtin()
	require.NoError(t, err)

	var buf bytes.Buffer
	formatVariants(&buf, reg)
	out := buf.String()
	for _, want := range []string{"udm", "citycat", "impacts", "copy", "reproject"} {
		assert.Contains(t, out, want)
	}

	v, err := reg.Get("citycat")
	require.NoError(t, err)
	buf.Reset()
	formatFields(&buf, v)
	assert.Contains(t, buf.String(), "TOTAL_DEPTH")
	assert.Contains(t, buf.String(), "metadata_citycat")
}

func TestExecute_ZonesThenRun(t *testing.T) {
	dir := isolate(t)
	data := filepath.Join(dir, "data")
	t.Setenv("DATA", data)
	t.Setenv("COUNTRY", "GBR")
	t.Setenv("LOCATION", "Oxford")
	t.Setenv("PROJECTION", "0")
	t.Setenv("FLOODPREP_LOG_LEVEL", "error")

	boundaryDir := pipeline.NewPaths(data).BoundaryIn
	require.NoError(t, os.MkdirAll(boundaryDir, 0o755))
	require.NoError(t, vector.Write(filepath.Join(boundaryDir, "oxford.gpkg"), &vector.Layer{
		Name:   "oxford",
		EPSG:   crs.BritishGrid,
		Fields: []string{"name"},
		Features: []vector.Feature{{
			Geometry:   geometry.Rect(crs.BritishGrid, 445200, 200300, 455700, 210900).MultiPolygon(),
			Properties: map[string]any{"name": "Oxford"},
		}},
	}))

	rootCmd.SetArgs([]string{"zones", "generate"})
	require.NoError(t, rootCmd.Execute())
	assert.FileExists(t, filepath.Join(pipeline.NewPaths(data).ZonesIn, "utm_zones.gpkg"))

	rootCmd.SetArgs([]string{"run"})
	require.NoError(t, rootCmd.Execute())

	paths := pipeline.NewPaths(data)
	assert.FileExists(t, filepath.Join(paths.BoundaryOut, "Oxford.gpkg"))
	assert.FileExists(t, filepath.Join(paths.ParametersOut, "GBR-Oxford-parameters.csv"))
	assert.FileExists(t, filepath.Join(paths.MetadataOut, "metadata_inputs.json"))
}

func TestExecute_MissingBoundaryExitCode(t *testing.T) {
	dir := isolate(t)
	t.Setenv("DATA", filepath.Join(dir, "empty"))
	t.Setenv("COUNTRY", "GBR")
	t.Setenv("LOCATION", "Nowhere")
	t.Setenv("PROJECTION", "EPSG:27700")
	t.Setenv("FLOODPREP_LOG_LEVEL", "error")

	rootCmd.SetArgs([]string{"resolve"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, pipeline.ExitMissingInput, pipeline.ExitCode(err))
}
