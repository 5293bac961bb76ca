package vector

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/floodprep/internal/crs"
)

var epsgURNRe = regexp.MustCompile(`(?i)EPSG:+(?:[\d.]*:)?(\d+)$`)

type namedCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type geoJSONEnvelope struct {
	Type string    `json:"type"`
	CRS  *namedCRS `json:"crs,omitempty"`
}

type featureCollection struct {
	Type     string             `json:"type"`
	Name     string             `json:"name,omitempty"`
	CRS      *namedCRS          `json:"crs,omitempty"`
	Features []*geojson.Feature `json:"features"`
}

// readGeoJSON reads a FeatureCollection, a single Feature or a bare geometry.
// Without a legacy "crs" member coordinates are taken as WGS 84.
func readGeoJSON(path string) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "geojson: read")
	}

	var env geoJSONEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, eris.Wrap(err, "geojson: decode")
	}

	l := &Layer{EPSG: crs.WGS84}
	if env.CRS != nil {
		code, err := crsFromName(env.CRS.Properties.Name)
		if err != nil {
			return nil, err
		}
		l.EPSG = code
	}

	var features []*geojson.Feature
	switch env.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrap(err, "geojson: decode feature collection")
		}
		features = fc.Features
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrap(err, "geojson: decode feature")
		}
		features = []*geojson.Feature{&f}
	default:
		var g geojson.Geometry
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrap(err, "geojson: decode geometry")
		}
		t, err := g.Decode()
		if err != nil {
			return nil, eris.Wrap(err, "geojson: decode geometry")
		}
		features = []*geojson.Feature{{Geometry: t}}
	}

	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		mp, err := toMultiPolygon(f.Geometry)
		if err != nil {
			return nil, err
		}
		if mp == nil {
			continue
		}
		props := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = normalizeValue(v)
		}
		l.Features = append(l.Features, Feature{Geometry: mp, Properties: props})
	}
	l.Fields = orderedFields(nil, l.Features)
	return l, nil
}

func crsFromName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if strings.HasSuffix(strings.ToUpper(n), "CRS84") {
		return crs.WGS84, nil
	}
	if m := epsgURNRe.FindStringSubmatch(n); m != nil {
		return crs.Normalize(m[1])
	}
	return "", eris.Wrapf(crs.ErrUnsupportedCRS, "geojson: crs name %q", name)
}

// writeGeoJSON writes l as a FeatureCollection, tagging non-WGS 84 output with a
// named crs member.
func writeGeoJSON(path string, l *Layer) error {
	fc := featureCollection{Type: "FeatureCollection", Name: l.Name}
	if l.EPSG != "" && l.EPSG != crs.WGS84 {
		fc.CRS = &namedCRS{Type: "name"}
		fc.CRS.Properties.Name = "urn:ogc:def:crs:EPSG::" + l.EPSG
	}
	for _, f := range l.Features {
		props := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = v
		}
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: f.Geometry, Properties: props})
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "geojson: encode")
	}
	return eris.Wrap(os.WriteFile(path, data, 0o644), "geojson: write")
}
