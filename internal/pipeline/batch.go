package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/floodprep/internal/config"
	"github.com/sells-group/floodprep/internal/monitoring"
	"github.com/sells-group/floodprep/internal/variant"
)

// BatchOutcome pairs a job with what its run returned.
type BatchOutcome struct {
	Job    Job
	Result *Result
	Err    error
}

// RunBatch runs independent jobs with at most concurrency in flight. A failed
// job never cancels the others. Jobs sharing a data directory are rejected up
// front because their outputs would collide.
func (p *Pipeline) RunBatch(ctx context.Context, jobs []Job, concurrency int) ([]BatchOutcome, *monitoring.Snapshot, error) {
	if err := checkDistinctData(jobs); err != nil {
		return nil, nil, err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	log := zap.L().With(zap.String("component", "pipeline.batch"))
	log.Info("pipeline: starting batch", zap.Int("jobs", len(jobs)), zap.Int("concurrency", concurrency))

	outcomes := make([]BatchOutcome, len(jobs))
	summaries := make([]monitoring.RunSummary, len(jobs))

	g := &errgroup.Group{}
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			began := p.clock.Now()
			res, err := p.Run(ctx, job)
			outcomes[i] = BatchOutcome{Job: job, Result: res, Err: err}

			summaries[i] = monitoring.RunSummary{
				Location: job.Run.Location,
				Outcome:  Outcome(err),
				Duration: p.clock.Since(began),
			}
			if res != nil {
				summaries[i].EPSG = res.Resolution.EPSG
			}
			return nil
		})
	}
	_ = g.Wait()

	snap := monitoring.Summarize(summaries)
	log.Info("pipeline: batch complete",
		zap.Int("succeeded", snap.Succeeded),
		zap.Int("failed", snap.Failed),
		zap.Float64("fail_rate", snap.FailRate),
		zap.String("slowest", snap.Slowest),
	)

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return outcomes, snap, errors.Join(errs...)
}

func checkDistinctData(jobs []Job) error {
	seen := make(map[string]string, len(jobs))
	for _, j := range jobs {
		abs, err := filepath.Abs(j.Data)
		if err != nil {
			return eris.Wrapf(err, "pipeline: resolve data dir %s", j.Data)
		}
		if other, dup := seen[abs]; dup {
			return &config.ParseError{
				Field: "DATA",
				Value: abs,
				Err:   eris.Errorf("shared by %s and %s", other, j.Run.Location),
			}
		}
		seen[abs] = j.Run.Location
	}
	return nil
}

// BatchFile is the YAML document listing batch runs. Defaults fill any field a
// run leaves empty.
type BatchFile struct {
	Concurrency int          `yaml:"concurrency"`
	Defaults    BatchEntry   `yaml:"defaults"`
	Runs        []BatchEntry `yaml:"runs"`
}

// BatchEntry is one run in a batch file.
type BatchEntry struct {
	Data       string            `yaml:"data"`
	Country    string            `yaml:"country"`
	Location   string            `yaml:"location"`
	Projection string            `yaml:"projection"`
	Variant    string            `yaml:"variant"`
	Params     map[string]string `yaml:"params"`
}

// LoadBatchFile reads a batch file and turns it into jobs. Relative data
// directories resolve against the batch file's directory. Values missing from
// both the run and the defaults fall back to cfg.
func LoadBatchFile(path string, cfg *config.Config) ([]Job, int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "pipeline: read batch file %s", path)
	}
	var bf BatchFile
	if err := yaml.Unmarshal(b, &bf); err != nil {
		return nil, 0, &config.ParseError{Field: "batch file", Value: path, Err: err}
	}
	if len(bf.Runs) == 0 {
		return nil, 0, &config.ParseError{Field: "runs", Value: path, Err: eris.New("no runs listed")}
	}

	base := filepath.Dir(path)
	jobs := make([]Job, 0, len(bf.Runs))
	for _, r := range bf.Runs {
		data := first(r.Data, bf.Defaults.Data)
		if data != "" && !filepath.IsAbs(data) {
			data = filepath.Join(base, data)
		}

		params := make(map[string]string, len(bf.Defaults.Params)+len(r.Params))
		for k, v := range bf.Defaults.Params {
			params[strings.ToUpper(k)] = v
		}
		for k, v := range r.Params {
			params[strings.ToUpper(k)] = v
		}

		jobs = append(jobs, Job{
			ID:      uuid.NewString(),
			Data:    data,
			Variant: first(r.Variant, bf.Defaults.Variant, cfg.Run.Variant),
			Run: variant.Run{
				Country:    first(r.Country, bf.Defaults.Country, cfg.Run.Country),
				Location:   r.Location,
				Projection: strings.TrimSpace(first(r.Projection, bf.Defaults.Projection, cfg.Run.Projection)),
			},
			Params:   params,
			Fallback: cfg.Param,
		})
	}

	concurrency := bf.Concurrency
	if concurrency < 1 {
		concurrency = cfg.Batch.Concurrency
	}
	return jobs, concurrency, nil
}

func first(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
