package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/floodprep/internal/pipeline"
)

var (
	batchFile        string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Prepare several locations from a batch file",
	Long:  "Runs every entry of a YAML batch file concurrently. Each run needs its own data directory; a failed run never stops the others.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		jobs, concurrency, err := pipeline.LoadBatchFile(batchFile, cfg)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("concurrency") {
			concurrency = batchConcurrency
		}

		p, m, err := newPipeline(cfg)
		if err != nil {
			return err
		}

		outcomes, snap, err := p.RunBatch(ctx, jobs, concurrency)
		writeMetrics(cfg, m)
		if outcomes != nil {
			formatBatch(os.Stdout, outcomes)
		}
		if snap != nil {
			_, _ = fmt.Fprintf(os.Stderr, "%d/%d succeeded in %s\n", snap.Succeeded, snap.Total, snap.TotalTime)
		}
		return err
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "batch file (required)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max runs in flight (default batch.concurrency)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

func formatBatch(out io.Writer, outcomes []pipeline.BatchOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LOCATION\tVARIANT\tEPSG\tOUTCOME\tEXIT")
	_, _ = fmt.Fprintln(w, "--------\t-------\t----\t-------\t----")

	for _, o := range outcomes {
		epsg := ""
		if o.Result != nil {
			epsg = o.Result.Resolution.EPSG
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			o.Job.Run.Location,
			o.Job.Variant,
			epsg,
			pipeline.Outcome(o.Err),
			pipeline.ExitCode(o.Err),
		)
	}
	_ = w.Flush()
}
