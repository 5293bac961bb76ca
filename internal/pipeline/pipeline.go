// Package pipeline runs the boundary preparation stage end to end: load the
// boundary, resolve its projection, snap its footprint, write the normalised
// boundary and register everything with the catalogue.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodprep/internal/bbox"
	"github.com/sells-group/floodprep/internal/catalog"
	"github.com/sells-group/floodprep/internal/config"
	"github.com/sells-group/floodprep/internal/crs"
	"github.com/sells-group/floodprep/internal/geometry"
	"github.com/sells-group/floodprep/internal/monitoring"
	"github.com/sells-group/floodprep/internal/utm"
	"github.com/sells-group/floodprep/internal/variant"
	"github.com/sells-group/floodprep/internal/vector"
)

// Stage names, used in logs, errors and metrics.
const (
	StageConfig    = "config"
	StageLoad      = "load"
	StageBBox      = "bbox"
	StageResolve   = "resolve"
	StageReproject = "reproject"
	StageWrite     = "write"
	StageCatalog   = "catalog"
)

// Stage statuses.
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// StageResult records one stage of a run.
type StageResult struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result is everything a run produced.
type Result struct {
	RunID      string                  `json:"run_id"`
	Location   string                  `json:"location"`
	Variant    string                  `json:"variant"`
	InputEPSG  string                  `json:"input_epsg"`
	Resolution utm.Resolution          `json:"resolution"`
	BBox       bbox.Box                `json:"bbox"`
	Record     catalog.ParameterRecord `json:"-"`
	Boundary   []string                `json:"boundary"`
	Catalog    *catalog.Report         `json:"catalog,omitempty"`
	Stages     []StageResult           `json:"stages"`
}

// ZoneSourceFunc opens the zone grid source for a zone directory.
type ZoneSourceFunc func(dir string) utm.ZoneSource

// Pipeline runs preparation jobs against shared, read-only dependencies.
type Pipeline struct {
	cfg        *config.Config
	registry   *crs.Registry
	variants   *variant.Registry
	resolver   *utm.Resolver
	metrics    *monitoring.Metrics
	clock      clockwork.Clock
	zoneSource ZoneSourceFunc
}

// New creates a Pipeline. metrics may be nil.
func New(cfg *config.Config, registry *crs.Registry, variants *variant.Registry, metrics *monitoring.Metrics) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		registry: registry,
		variants: variants,
		resolver: utm.NewResolver(registry, cfg.CRS.WorkingEPSG),
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
		zoneSource: func(dir string) utm.ZoneSource {
			return utm.NewDirSource(dir)
		},
	}
}

// WithClock swaps the time source used for stage timings and catalogue timestamps.
func (p *Pipeline) WithClock(c clockwork.Clock) *Pipeline {
	p.clock = c
	return p
}

// WithZoneSource swaps how the zone grid is opened.
func (p *Pipeline) WithZoneSource(fn ZoneSourceFunc) *Pipeline {
	p.zoneSource = fn
	return p
}

// Run executes one job. Every fatal check (configuration, inputs, projection
// and in-memory reprojection) completes before the first output is written.
// A catalogue failure is returned alongside a complete Result.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Result, error) {
	log := zap.L().With(
		zap.String("run_id", job.ID),
		zap.String("location", job.Run.Location),
		zap.String("variant", job.Variant),
	)
	log.Info("pipeline: starting run")

	start := p.clock.Now()
	result := &Result{RunID: job.ID, Location: job.Run.Location, Variant: job.Variant}

	err := p.run(ctx, job, result, log, true)

	outcome := Outcome(err)
	if p.metrics != nil {
		p.metrics.RecordRun(job.Variant, outcome, p.clock.Now())
	}
	if err != nil {
		log.Error("pipeline: run failed", zap.String("outcome", outcome), zap.Error(err))
		return result, err
	}
	log.Info("pipeline: run complete",
		zap.String("epsg", result.Resolution.EPSG),
		zap.Duration("elapsed", p.clock.Since(start)),
	)
	return result, nil
}

// Plan runs the read-only stages of a job (configuration, boundary, footprint
// and projection) and returns what Run would produce without writing anything.
func (p *Pipeline) Plan(ctx context.Context, job Job) (*Result, error) {
	log := zap.L().With(
		zap.String("run_id", job.ID),
		zap.String("location", job.Run.Location),
		zap.String("component", "pipeline.plan"),
	)
	result := &Result{RunID: job.ID, Location: job.Run.Location, Variant: job.Variant}
	if err := p.run(ctx, job, result, log, false); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, job Job, result *Result, log *zap.Logger, write bool) error {
	track := func(name string, fn func() error) error {
		began := p.clock.Now()
		fnErr := fn()
		elapsed := p.clock.Since(began)

		sr := StageResult{Name: name, Status: StatusComplete, Duration: elapsed}
		if fnErr != nil {
			sr.Status = StatusFailed
			sr.Error = fnErr.Error()
			log.Error("pipeline: stage failed", zap.String("stage", name), zap.Duration("duration", elapsed), zap.Error(fnErr))
		} else {
			log.Info("pipeline: stage complete", zap.String("stage", name), zap.Duration("duration", elapsed))
		}
		if p.metrics != nil && write {
			p.metrics.ObserveStage(name, elapsed)
		}
		result.Stages = append(result.Stages, sr)
		return fnErr
	}

	paths := NewPaths(job.Data)

	// ===== Configuration =====
	var (
		v   *variant.Variant
		rec catalog.ParameterRecord
	)
	if err := track(StageConfig, func() error {
		if err := job.Validate(); err != nil {
			return err
		}
		var err error
		if v, err = p.variants.Get(job.Variant); err != nil {
			return err
		}
		rec, err = v.Resolve(job.Run, job.Lookup)
		return err
	}); err != nil {
		return eris.Wrapf(err, "pipeline: %s stage for %s", StageConfig, job.Run.Location)
	}

	// ===== Boundary =====
	var (
		inputPath string
		layer     *vector.Layer
		boundary  geometry.Geometry
	)
	if err := track(StageLoad, func() error {
		var err error
		if inputPath, err = vector.FindOne(paths.BoundaryIn, vector.SupportedExts...); err != nil {
			return err
		}
		if layer, err = vector.Read(inputPath); err != nil {
			return err
		}
		if layer.EPSG == "" {
			log.Warn("pipeline: boundary has no CRS, assuming default",
				zap.String("path", inputPath),
				zap.String("epsg", p.cfg.CRS.DefaultInput),
			)
			layer.EPSG = p.cfg.CRS.DefaultInput
		}
		boundary, err = layer.Dissolve()
		return err
	}); err != nil {
		return eris.Wrapf(err, "pipeline: %s stage for %s", StageLoad, paths.BoundaryIn)
	}
	result.InputEPSG = layer.EPSG

	// ===== Footprint, computed in the input CRS =====
	if err := track(StageBBox, func() error {
		var err error
		result.BBox, err = bbox.Compute(boundary, p.cfg.BBox.Grid)
		return err
	}); err != nil {
		return eris.Wrapf(err, "pipeline: %s stage for %s", StageBBox, inputPath)
	}

	// ===== Projection =====
	if err := track(StageResolve, func() error {
		res, err := p.resolver.Resolve(ctx, boundary, job.Run.Projection, p.zoneSource(paths.ZonesIn))
		if err != nil {
			return err
		}
		// explicit codes are recorded bare: EPSG:32632 becomes 32632
		if res.EPSG, err = crs.Normalize(res.EPSG); err != nil {
			return err
		}
		if err := p.registry.Validate(res.EPSG); err != nil {
			return err
		}
		result.Resolution = res
		return nil
	}); err != nil {
		return eris.Wrapf(err, "pipeline: %s stage for PROJECTION=%q", StageResolve, job.Run.Projection)
	}
	rec.Set(catalog.ParamProjection, result.Resolution.EPSG)
	result.Record = rec
	if !write {
		return nil
	}

	if p.metrics != nil {
		mode := "explicit"
		if result.Resolution.Derived {
			mode = "derived"
		}
		p.metrics.ZoneResolutions.WithLabelValues(mode).Inc()
	}

	var out *vector.Layer
	if err := track(StageReproject, func() error {
		var err error
		out, err = p.reprojectLayer(layer, result.Resolution.EPSG)
		return err
	}); err != nil {
		return eris.Wrapf(err, "pipeline: %s stage to EPSG:%s", StageReproject, result.Resolution.EPSG)
	}

	// ===== Outputs =====
	if err := track(StageWrite, func() error {
		if err := os.MkdirAll(paths.BoundaryOut, 0o755); err != nil {
			return eris.Wrap(err, "pipeline: create boundary output dir")
		}
		if v.Boundary == variant.BoundaryCopy {
			files, err := vector.CopyDataset(inputPath, paths.BoundaryOut, job.Run.Location)
			if err != nil {
				return err
			}
			footprint := filepath.Join(paths.BoundaryOut, job.Run.Location+"_footprint"+vector.ExtGeoJSON)
			if err := vector.Write(footprint, footprintLayer(result.BBox)); err != nil {
				return err
			}
			result.Boundary = append(files, footprint)
			return nil
		}
		path := filepath.Join(paths.BoundaryOut, job.Run.Location+"."+p.cfg.Output.Format)
		if err := vector.Write(path, out); err != nil {
			return err
		}
		result.Boundary = []string{path}
		return nil
	}); err != nil {
		return eris.Wrapf(err, "pipeline: %s stage for %s", StageWrite, paths.BoundaryOut)
	}

	// ===== Catalogue =====
	return track(StageCatalog, func() error {
		entries, err := v.RenderEntries(job.Run, result.BBox)
		if err != nil {
			return eris.Wrap(err, "pipeline: render catalogue entries")
		}
		emitter := p.emitter(paths, v)
		report, emitErr := emitter.Emit(ctx, rec, ManifestName(job.Run.Country, job.Run.Location), entries)
		result.Catalog = report
		if p.metrics != nil && report != nil {
			p.metrics.CatalogWrites.WithLabelValues("written").Add(float64(report.Written()))
			p.metrics.CatalogWrites.WithLabelValues("failed").Add(float64(len(report.Failed)))
		}
		if emitErr != nil {
			return eris.Wrapf(emitErr, "pipeline: %s stage for %s", StageCatalog, paths.Outputs)
		}
		return nil
	})
}

// reprojectLayer returns a copy of l with every feature in target. Attributes
// are carried over untouched.
func (p *Pipeline) reprojectLayer(l *vector.Layer, target string) (*vector.Layer, error) {
	out := &vector.Layer{
		Name:     l.Name,
		EPSG:     target,
		Fields:   append([]string(nil), l.Fields...),
		Features: make([]vector.Feature, 0, len(l.Features)),
	}
	for i, f := range l.Features {
		g, err := p.registry.Reproject(l.Feature(i), target)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: reproject feature %d", i)
		}
		out.Features = append(out.Features, vector.Feature{Geometry: g.MultiPolygon(), Properties: f.Properties})
	}
	return out, nil
}

func (p *Pipeline) emitter(paths Paths, v *variant.Variant) *catalog.Emitter {
	e := catalog.NewEmitter(paths.ParametersOut, paths.MetadataOut)
	e.XLSX = p.cfg.Output.XLSXManifest
	e.Clock = p.clock
	e.Boilerplate = catalog.Boilerplate{
		Language:     p.cfg.Catalog.Language,
		Keyword:      p.cfg.Catalog.Keyword,
		Subject:      p.cfg.Catalog.Subject,
		License:      p.cfg.Catalog.License,
		ContactName:  p.cfg.Catalog.ContactName,
		ContactEmail: p.cfg.Catalog.ContactEmail,
	}
	if v.Keyword != "" {
		e.Boilerplate.Keyword = v.Keyword
	}
	return e
}

func footprintLayer(b bbox.Box) *vector.Layer {
	return &vector.Layer{
		Name:   "footprint",
		EPSG:   b.EPSG,
		Fields: []string{"grid"},
		Features: []vector.Feature{{
			Geometry:   b.Geometry().MultiPolygon(),
			Properties: map[string]any{"grid": b.Grid},
		}},
	}
}
