package vector

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/floodprep/internal/crs"
)

// readShapefile reads the polygon records of a shapefile and its .prj sidecar.
func readShapefile(path string) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	l := &Layer{Fields: names, EPSG: prjEPSG(path)}
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		mp := shapeToMultiPolygon(shape)
		if mp == nil {
			skipped++
			continue
		}

		props := make(map[string]any, len(fields))
		for i, f := range fields {
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			props[names[i]] = dbfValue(f, raw)
		}
		l.Features = append(l.Features, Feature{Geometry: mp, Properties: props})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: scan %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("shapefile: skipped non-polygon records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return l, nil
}

// prjEPSG reads the EPSG code from the .prj sidecar of path, or "" when it is
// missing or unrecognised.
func prjEPSG(path string) string {
	prjPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	data, err := os.ReadFile(prjPath)
	if err != nil {
		zap.L().Debug("shapefile: no .prj sidecar", zap.String("path", prjPath))
		return ""
	}
	code, err := crs.FromWKT(string(data))
	if err != nil {
		zap.L().Warn("shapefile: unrecognised .prj", zap.String("path", prjPath), zap.Error(err))
		return ""
	}
	return code
}

// dbfValue converts a raw DBF attribute to int64, float64, string or nil.
func dbfValue(f shp.Field, raw string) any {
	if raw == "" {
		return nil
	}
	switch f.Fieldtype {
	case 'N':
		if f.Precision == 0 {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return n
			}
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	case 'F':
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return raw
}

// shapeToMultiPolygon converts a shapefile polygon into a multipolygon. Rings
// wound clockwise start a new polygon; counter-clockwise rings are holes of the
// preceding shell. Output rings follow the GeoJSON winding.
func shapeToMultiPolygon(shape shp.Shape) *geom.MultiPolygon {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon

	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 3 {
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		shell := signedArea(flat) <= 0 || current == nil
		if shell {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		// store shells counter-clockwise and holes clockwise, like the other formats
		if (shell && signedArea(flat) < 0) || (!shell && signedArea(flat) > 0) {
			reverseRing(flat)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if err := current.Push(ring); err != nil {
			zap.L().Debug("shapefile: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}

// writeShapefile writes l as a polygon shapefile plus .prj sidecar when the CRS
// has a known WKT rendering.
func writeShapefile(path string, l *Layer) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "shapefile: create %s", path)
	}

	fieldNames := orderedFields(l.Fields, l.Features)
	kinds := columnKinds(fieldNames, l.Features)
	dbfFields := make([]shp.Field, len(fieldNames))
	for i, name := range fieldNames {
		short := name
		if len(short) > 10 {
			short = short[:10]
		}
		switch kinds[i] {
		case kindInt:
			dbfFields[i] = shp.NumberField(short, 18)
		case kindFloat:
			dbfFields[i] = shp.FloatField(short, 24, 8)
		default:
			dbfFields[i] = shp.StringField(short, 254)
		}
	}
	if err := w.SetFields(dbfFields); err != nil {
		w.Close()
		return eris.Wrap(err, "shapefile: set fields")
	}

	for _, f := range l.Features {
		row := int(w.Write(multiPolygonToShape(f.Geometry)))
		for i, name := range fieldNames {
			v, ok := dbfAttribute(kinds[i], f.Properties[name])
			if !ok {
				continue
			}
			if err := w.WriteAttribute(row, i, v); err != nil {
				w.Close()
				return eris.Wrapf(err, "shapefile: write attribute %s", name)
			}
		}
	}
	w.Close()

	if wkt, ok := crs.WKT(l.EPSG); ok {
		prjPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
		if err := os.WriteFile(prjPath, []byte(wkt), 0o644); err != nil {
			return eris.Wrapf(err, "shapefile: write %s", prjPath)
		}
	} else {
		zap.L().Warn("shapefile: no WKT for CRS, .prj not written", zap.String("epsg", l.EPSG))
	}
	return nil
}

// dbfAttribute converts v to the int, float64 or string the DBF writer accepts
// for a column of kind k.
func dbfAttribute(k columnKind, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch k {
	case kindInt:
		if n, err := cast.ToInt64E(v); err == nil {
			return int(n), true
		}
	case kindFloat:
		if x, err := cast.ToFloat64E(v); err == nil {
			return x, true
		}
	}
	str, err := cast.ToStringE(v)
	if err != nil {
		return nil, false
	}
	return str, true
}

// multiPolygonToShape converts a multipolygon into a shapefile polygon with
// clockwise shells and counter-clockwise holes.
func multiPolygonToShape(mp *geom.MultiPolygon) *shp.Polygon {
	var parts [][]shp.Point
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for j := 0; j < poly.NumLinearRings(); j++ {
			flat := append([]float64(nil), poly.LinearRing(j).FlatCoords()...)
			shell := j == 0
			if (shell && signedArea(flat) > 0) || (!shell && signedArea(flat) < 0) {
				reverseRing(flat)
			}
			pts := make([]shp.Point, 0, len(flat)/2)
			for k := 0; k+1 < len(flat); k += 2 {
				pts = append(pts, shp.Point{X: flat[k], Y: flat[k+1]})
			}
			parts = append(parts, pts)
		}
	}
	pl := shp.NewPolyLine(parts)
	poly := shp.Polygon(*pl)
	return &poly
}

func reverseRing(flat []float64) {
	n := len(flat) / 2
	for i := 0; i < n/2; i++ {
		a, b := 2*i, 2*(n-1-i)
		flat[a], flat[b] = flat[b], flat[a]
		flat[a+1], flat[b+1] = flat[b+1], flat[a+1]
	}
}
