package utm

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodprep/internal/crs"
	"github.com/sells-group/floodprep/internal/geometry"
)

// ZoneSource supplies the reference grid. It is only consulted when the
// projection has to be derived.
type ZoneSource interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

// Reprojector converts geometries between coordinate systems.
type Reprojector interface {
	Reproject(g geometry.Geometry, target string) (geometry.Geometry, error)
}

// Resolver picks the projection a boundary is normalised to.
type Resolver struct {
	reproj  Reprojector
	working string
}

// NewResolver returns a resolver comparing areas in the working CRS, typically
// web mercator.
func NewResolver(reproj Reprojector, working string) *Resolver {
	if working == "" {
		working = crs.WebMercator
	}
	return &Resolver{reproj: reproj, working: working}
}

// IsAuto reports whether explicit requests automatic resolution.
func IsAuto(explicit string) bool {
	e := strings.TrimSpace(explicit)
	return e == "" || e == AutoSentinel
}

// Resolve returns explicit unchanged unless it is empty or the auto sentinel, in
// which case the UTM cell sharing the largest area with boundary decides the zone.
// Equal areas are broken by lower zone number, then lower band letter.
func (r *Resolver) Resolve(ctx context.Context, boundary geometry.Geometry, explicit string, src ZoneSource) (Resolution, error) {
	if !IsAuto(explicit) {
		return Resolution{EPSG: explicit}, nil
	}

	log := zap.L().With(zap.String("component", "utm.resolver"))

	if src == nil {
		return Resolution{}, eris.Wrap(ErrMissingReferenceData, "utm: no zone source configured")
	}
	candidates, err := src.Candidates(ctx)
	if err != nil {
		if eris.Is(err, ErrMissingReferenceData) {
			return Resolution{}, err
		}
		return Resolution{}, eris.Wrapf(ErrMissingReferenceData, "utm: load candidates: %v", err)
	}

	work, err := r.reproj.Reproject(boundary, r.working)
	if err != nil {
		return Resolution{}, eris.Wrap(err, "utm: reproject boundary to working CRS")
	}

	best := make(map[int]Resolution)
	var considered int
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Resolution{}, eris.Wrap(err, "utm: resolve cancelled")
		}

		cell, err := r.reproj.Reproject(c.Geometry, r.working)
		if err != nil {
			return Resolution{}, eris.Wrapf(err, "utm: reproject zone %d%c", c.Zone, c.Row)
		}
		if !geometry.Overlaps(work, cell) {
			continue
		}
		considered++

		area, err := geometry.IntersectionArea(work, cell)
		if err != nil {
			return Resolution{}, eris.Wrapf(err, "utm: intersect zone %d%c", c.Zone, c.Row)
		}
		if area <= 0 {
			continue
		}

		hit := Resolution{Derived: true, Zone: c.Zone, Row: c.Row, Area: area}
		if cur, ok := best[c.Zone]; !ok || better(hit, cur) {
			best[c.Zone] = hit
		}
	}

	if len(best) == 0 {
		return Resolution{}, eris.Wrapf(ErrZoneResolution, "utm: none of %d reference cells intersect the boundary", len(candidates))
	}

	retained := make([]Resolution, 0, len(best))
	for _, hit := range best {
		retained = append(retained, hit)
	}
	sort.Slice(retained, func(i, j int) bool { return better(retained[i], retained[j]) })

	winner := retained[0]
	winner.EPSG = Code(winner.Zone, winner.Row)

	log.Info("resolved UTM zone",
		zap.Int("zone", winner.Zone),
		zap.String("row", string(winner.Row)),
		zap.String("epsg", winner.EPSG),
		zap.Float64("area", winner.Area),
		zap.Int("cells_considered", considered),
		zap.Int("zones_intersecting", len(retained)),
	)
	return winner, nil
}

// better orders hits by area descending, then zone ascending, then row ascending.
func better(a, b Resolution) bool {
	if a.Area != b.Area {
		return a.Area > b.Area
	}
	if a.Zone != b.Zone {
		return a.Zone < b.Zone
	}
	return a.Row < b.Row
}
