package geometry

import (
	cgeom "github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// IntersectionArea returns the planar area shared by a and b. Both geometries must
// be expressed in the same CRS; the result is in squared CRS units.
func IntersectionArea(a, b Geometry) (float64, error) {
	if a.epsg != b.epsg {
		return 0, eris.Errorf("geometry: intersect %s with %s", a.epsg, b.epsg)
	}
	if a.IsEmpty() || b.IsEmpty() {
		return 0, nil
	}
	if !Overlaps(a, b) {
		return 0, nil
	}

	var area float64
	pb := toClip(b.mp)
	for _, pa := range toClip(a.mp) {
		for _, other := range pb {
			clipped := pa.Intersection(other)
			if clipped == nil {
				continue
			}
			area += clipped.Area()
		}
	}
	return area, nil
}

// Overlaps reports whether the bounding rectangles of a and b touch.
func Overlaps(a, b Geometry) bool {
	ba, err := a.Bounds()
	if err != nil {
		return false
	}
	bb, err := b.Bounds()
	if err != nil {
		return false
	}
	return ba.Overlaps(geom.XY, bb)
}

// toClip converts go-geom polygons into the ring representation used by the
// polygon clipper. Closing vertices are dropped.
func toClip(mp *geom.MultiPolygon) []cgeom.Polygon {
	out := make([]cgeom.Polygon, 0, mp.NumPolygons())
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		poly := make(cgeom.Polygon, 0, p.NumLinearRings())
		for j := 0; j < p.NumLinearRings(); j++ {
			coords := p.LinearRing(j).Coords()
			if n := len(coords); n > 1 && coords[0].Equal(geom.XY, coords[n-1]) {
				coords = coords[:n-1]
			}
			if len(coords) < 3 {
				continue
			}
			path := make(cgeom.Path, len(coords))
			for k, c := range coords {
				path[k] = cgeom.Point{X: c.X(), Y: c.Y()}
			}
			poly = append(poly, path)
		}
		if len(poly) > 0 {
			out = append(out, poly)
		}
	}
	return out
}
