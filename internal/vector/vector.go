// Package vector reads and writes polygon datasets in the GIS formats the
// workflow exchanges: ESRI shapefiles, GeoPackages and GeoJSON.
package vector

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/floodprep/internal/geometry"
)

// ErrMissingInput is returned when an expected input file is absent, ambiguous or unreadable.
var ErrMissingInput = eris.New("vector: missing input")

// Supported primary file extensions, in lookup preference order.
const (
	ExtGeoPackage = ".gpkg"
	ExtShapefile  = ".shp"
	ExtGeoJSON    = ".geojson"
	ExtJSON       = ".json"
)

// SupportedExts lists every readable primary extension.
var SupportedExts = []string{ExtGeoPackage, ExtShapefile, ExtGeoJSON, ExtJSON}

// Feature is one polygonal record with its attributes.
type Feature struct {
	Geometry   *geom.MultiPolygon
	Properties map[string]any
}

// Layer is a loaded dataset. EPSG is empty when the source carried no usable
// CRS information.
type Layer struct {
	Name     string
	EPSG     string
	Fields   []string
	Features []Feature
}

// Dissolve merges the polygons of every feature into one Geometry in the layer CRS.
func (l *Layer) Dissolve() (geometry.Geometry, error) {
	parts := make([]geometry.Geometry, 0, len(l.Features))
	for _, f := range l.Features {
		parts = append(parts, geometry.New(f.Geometry, l.EPSG))
	}
	g, err := geometry.Merge(l.EPSG, parts...)
	if err != nil {
		return geometry.Geometry{}, eris.Wrapf(err, "vector: dissolve %s", l.Name)
	}
	if g.IsEmpty() {
		return geometry.Geometry{}, eris.Wrapf(geometry.ErrEmptyGeometry, "vector: layer %s has no polygons", l.Name)
	}
	return g, nil
}

// Field returns the stored spelling of the attribute matching name case-insensitively.
func (l *Layer) Field(name string) (string, bool) {
	for _, f := range l.Fields {
		if strings.EqualFold(f, name) {
			return f, true
		}
	}
	return "", false
}

// Feature returns the geometry of feature i tagged with the layer CRS.
func (l *Layer) Feature(i int) geometry.Geometry {
	return geometry.New(l.Features[i].Geometry, l.EPSG)
}

// FindOne returns the single file in dir whose extension is one of exts.
// Zero or several matches are both reported as ErrMissingInput.
func FindOne(dir string, exts ...string) (string, error) {
	if len(exts) == 0 {
		exts = SupportedExts
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrapf(ErrMissingInput, "vector: read directory %s: %v", dir, err)
	}

	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == want {
				matches = append(matches, filepath.Join(dir, e.Name()))
				break
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", eris.Wrapf(ErrMissingInput, "vector: no %s file in %s", strings.Join(exts, "/"), dir)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", eris.Wrapf(ErrMissingInput, "vector: %d candidate files in %s: %s", len(matches), dir, strings.Join(matches, ", "))
	}
}

// Read loads the polygon features of path, choosing the decoder by extension.
func Read(path string) (*Layer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(ErrMissingInput, "vector: stat %s: %v", path, err)
	}

	var (
		l   *Layer
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtShapefile:
		l, err = readShapefile(path)
	case ExtGeoPackage:
		l, err = readGeoPackage(path)
	case ExtGeoJSON, ExtJSON:
		l, err = readGeoJSON(path)
	default:
		return nil, eris.Wrapf(ErrMissingInput, "vector: unsupported format %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(ErrMissingInput, "vector: read %s: %v", path, err)
	}

	if l.Name == "" {
		l.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	zap.L().Debug("vector: layer loaded",
		zap.String("path", path),
		zap.String("epsg", l.EPSG),
		zap.Int("features", len(l.Features)),
	)
	return l, nil
}

// Write stores l at path, choosing the encoder by extension. Existing files are replaced.
func Write(path string, l *Layer) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtGeoPackage:
		err = writeGeoPackage(path, l)
	case ExtShapefile:
		err = writeShapefile(path, l)
	case ExtGeoJSON, ExtJSON:
		err = writeGeoJSON(path, l)
	default:
		return eris.Errorf("vector: unsupported output format %s", path)
	}
	if err != nil {
		return eris.Wrapf(err, "vector: write %s", path)
	}
	return nil
}

// polygons flattens a decoded geometry into its polygons. Other geometry types
// yield nothing.
func polygons(g geom.T) []*geom.Polygon {
	switch v := g.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{v}
	case *geom.MultiPolygon:
		out := make([]*geom.Polygon, 0, v.NumPolygons())
		for i := 0; i < v.NumPolygons(); i++ {
			out = append(out, v.Polygon(i))
		}
		return out
	case *geom.GeometryCollection:
		var out []*geom.Polygon
		for _, child := range v.Geoms() {
			out = append(out, polygons(child)...)
		}
		return out
	default:
		return nil
	}
}

// toMultiPolygon merges polygons into an XY multipolygon, or nil when there are none.
func toMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	polys := polygons(g)
	if len(polys) == 0 {
		return nil, nil
	}
	merged, err := geometry.FromPolygons("", polys...)
	if err != nil {
		return nil, err
	}
	return merged.MultiPolygon(), nil
}

// orderedFields returns the union of property keys, preferring the order in seed.
func orderedFields(seed []string, features []Feature) []string {
	seen := make(map[string]bool, len(seed))
	out := make([]string, 0, len(seed))
	for _, f := range seed {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	var extra []string
	for _, f := range features {
		for k := range f.Properties {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
