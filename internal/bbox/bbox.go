// Package bbox computes the grid-snapped rectangular footprint of a boundary.
package bbox

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/floodprep/internal/geometry"
)

// DefaultGrid is the snapping resolution in CRS units.
const DefaultGrid = 1000.0

// Box is a grid-snapped footprint. Every bound is a multiple of Grid.
type Box struct {
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Grid   float64 `json:"grid"`
	EPSG   string  `json:"epsg"`
}

// RoundDown floors v to the nearest multiple of grid at or below it.
func RoundDown(v, grid float64) float64 {
	return math.Floor(v/grid) * grid
}

// Compute snaps the extent of g onto grid in g's own CRS. All four bounds are
// rounded down, so the max side may sit inside the true extent.
func Compute(g geometry.Geometry, grid float64) (Box, error) {
	if grid <= 0 || math.IsNaN(grid) || math.IsInf(grid, 0) {
		return Box{}, eris.Errorf("bbox: grid must be positive, got %v", grid)
	}
	b, err := g.Bounds()
	if err != nil {
		return Box{}, eris.Wrap(err, "bbox: boundary extent")
	}
	return Box{
		Left:   RoundDown(b.Min(0), grid),
		Bottom: RoundDown(b.Min(1), grid),
		Right:  RoundDown(b.Max(0), grid),
		Top:    RoundDown(b.Max(1), grid),
		Grid:   grid,
		EPSG:   g.EPSG(),
	}, nil
}

// Ring returns the four footprint vertices: (left,top), (right,top),
// (right,bottom), (left,bottom). The ring is implicitly closed.
func (b Box) Ring() [4][2]float64 {
	return [4][2]float64{
		{b.Left, b.Top},
		{b.Right, b.Top},
		{b.Right, b.Bottom},
		{b.Left, b.Bottom},
	}
}

// Polygon returns the footprint as a single-ring polygon holding exactly the
// four Ring vertices.
func (b Box) Polygon() *geom.Polygon {
	ring := b.Ring()
	flat := make([]float64, 0, 8)
	for _, v := range ring {
		flat = append(flat, v[0], v[1])
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

// Geometry returns the closed footprint rectangle tagged with the box CRS.
func (b Box) Geometry() geometry.Geometry {
	return geometry.Rect(b.EPSG, b.Left, b.Bottom, b.Right, b.Top)
}

// GeoJSON encodes the footprint polygon as a GeoJSON geometry object.
func (b Box) GeoJSON() (*geojson.Geometry, error) {
	g, err := geojson.Encode(b.Polygon())
	if err != nil {
		return nil, eris.Wrap(err, "bbox: encode geojson")
	}
	return g, nil
}
