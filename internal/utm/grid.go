package utm

import (
	"strings"

	"github.com/sells-group/floodprep/internal/crs"
	"github.com/sells-group/floodprep/internal/geometry"
	"github.com/sells-group/floodprep/internal/vector"
)

// Bands lists the latitude band letters from south to north.
const Bands = "CDEFGHJKLMNPQRSTUVWX"

// BandBounds returns the southern and northern latitude of a band. Band X
// spans 12 degrees; every other band spans 8.
func BandBounds(row byte) (south, north float64, ok bool) {
	i := strings.IndexByte(Bands, row)
	if i < 0 {
		return 0, 0, false
	}
	south = -80 + float64(i)*8
	north = south + 8
	if row == 'X' {
		north = 84
	}
	return south, north, true
}

// Grid builds the regular 60 x 20 UTM reference grid in WGS 84. The Norway and
// Svalbard irregular zones are not modelled.
func Grid() []Candidate {
	out := make([]Candidate, 0, 60*len(Bands))
	for zone := 1; zone <= 60; zone++ {
		west := float64(zone-1)*6 - 180
		for i := 0; i < len(Bands); i++ {
			row := Bands[i]
			south, north, _ := BandBounds(row)
			out = append(out, Candidate{
				Zone:     zone,
				Row:      row,
				Geometry: geometry.Rect(crs.WGS84, west, south, west+6, north),
			})
		}
	}
	return out
}

// GridLayer renders candidates as a vector layer carrying ZONE and ROW_ attributes,
// ready to be written as a reference dataset.
func GridLayer(candidates []Candidate) *vector.Layer {
	l := &vector.Layer{Name: "utm_zones", EPSG: crs.WGS84, Fields: []string{FieldZone, FieldRow}}
	for _, c := range candidates {
		l.Features = append(l.Features, vector.Feature{
			Geometry: c.Geometry.MultiPolygon(),
			Properties: map[string]any{
				FieldZone: int64(c.Zone),
				FieldRow:  string(c.Row),
			},
		})
	}
	return l
}
