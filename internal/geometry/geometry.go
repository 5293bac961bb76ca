// Package geometry holds the immutable polygonal geometry value threaded through the
// boundary preparation pipeline. A Geometry always carries the EPSG code of the
// coordinate system its coordinates are expressed in.
package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrEmptyGeometry is returned when an operation needs at least one coordinate.
var ErrEmptyGeometry = eris.New("geometry: empty geometry")

// Geometry is one or more polygons tagged with a CRS. Values are never mutated in
// place: constructors and accessors clone the underlying coordinates.
type Geometry struct {
	mp   *geom.MultiPolygon
	epsg string
}

// New wraps a copy of mp tagged with epsg. A nil mp yields an empty geometry.
func New(mp *geom.MultiPolygon, epsg string) Geometry {
	if mp == nil {
		return Geometry{mp: geom.NewMultiPolygon(geom.XY), epsg: epsg}
	}
	return Geometry{mp: mp.Clone(), epsg: epsg}
}

// FromPolygons builds a Geometry from individual polygons.
func FromPolygons(epsg string, polys ...*geom.Polygon) (Geometry, error) {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, p := range polys {
		if p == nil {
			continue
		}
		if err := mp.Push(forceXY(p)); err != nil {
			return Geometry{}, eris.Wrap(err, "geometry: push polygon")
		}
	}
	return Geometry{mp: mp, epsg: epsg}, nil
}

// Rect returns an axis-aligned rectangle polygon. Handy for zone grid cells and tests.
func Rect(epsg string, minX, minY, maxX, maxY float64) Geometry {
	p := geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY,
		maxX, minY,
		maxX, maxY,
		minX, maxY,
		minX, minY,
	}, []int{10})
	g, _ := FromPolygons(epsg, p)
	return g
}

// EPSG returns the code of the coordinate system the geometry is expressed in.
func (g Geometry) EPSG() string { return g.epsg }

// MultiPolygon returns a copy of the underlying coordinates.
func (g Geometry) MultiPolygon() *geom.MultiPolygon {
	if g.mp == nil {
		return geom.NewMultiPolygon(geom.XY)
	}
	return g.mp.Clone()
}

// NumPolygons reports how many polygons make up the geometry.
func (g Geometry) NumPolygons() int {
	if g.mp == nil {
		return 0
	}
	return g.mp.NumPolygons()
}

// IsEmpty reports whether the geometry has no coordinates at all.
func (g Geometry) IsEmpty() bool {
	return g.mp == nil || g.mp.NumPolygons() == 0 || len(g.mp.FlatCoords()) == 0
}

// Bounds returns the minimal axis-aligned rectangle enclosing every coordinate.
func (g Geometry) Bounds() (*geom.Bounds, error) {
	if g.IsEmpty() {
		return nil, ErrEmptyGeometry
	}
	return g.mp.Bounds(), nil
}

// Area is the planar area in squared CRS units.
func (g Geometry) Area() float64 {
	if g.IsEmpty() {
		return 0
	}
	return g.mp.Area()
}

// MapCoords returns a new Geometry in epsg whose every XY pair went through fn.
// The receiver is left untouched.
func (g Geometry) MapCoords(epsg string, fn func(x, y float64) (float64, float64, error)) (Geometry, error) {
	if g.mp == nil {
		return New(nil, epsg), nil
	}
	src := g.mp
	stride := src.Stride()
	flat := append([]float64(nil), src.FlatCoords()...)
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := fn(flat[i], flat[i+1])
		if err != nil {
			return Geometry{}, eris.Wrapf(err, "geometry: transform coordinate %d", i/stride)
		}
		flat[i], flat[i+1] = x, y
	}
	endss := make([][]int, len(src.Endss()))
	for i, ends := range src.Endss() {
		endss[i] = append([]int(nil), ends...)
	}
	return Geometry{mp: geom.NewMultiPolygonFlat(src.Layout(), flat, endss), epsg: epsg}, nil
}

// Merge concatenates the polygons of several geometries sharing one CRS.
func Merge(epsg string, parts ...Geometry) (Geometry, error) {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, part := range parts {
		if part.epsg != epsg {
			return Geometry{}, eris.Errorf("geometry: merge %s into %s", part.epsg, epsg)
		}
		if part.mp == nil {
			continue
		}
		for i := 0; i < part.mp.NumPolygons(); i++ {
			if err := mp.Push(forceXY(part.mp.Polygon(i))); err != nil {
				return Geometry{}, eris.Wrap(err, "geometry: merge polygon")
			}
		}
	}
	return Geometry{mp: mp, epsg: epsg}, nil
}

// forceXY drops Z/M ordinates so every stored geometry shares the XY layout.
func forceXY(p *geom.Polygon) *geom.Polygon {
	if p.Layout() == geom.XY {
		return p.Clone()
	}
	stride := p.Stride()
	src := p.FlatCoords()
	flat := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		flat = append(flat, src[i], src[i+1])
	}
	ends := make([]int, len(p.Ends()))
	for i, e := range p.Ends() {
		ends[i] = e / stride * 2
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}
