// Package utm derives the best-fit WGS 84 / UTM projection for a boundary by
// overlaying it on a reference grid of UTM zone cells.
package utm

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/floodprep/internal/crs"
	"github.com/sells-group/floodprep/internal/geometry"
)

// AutoSentinel is the projection value that requests automatic zone resolution.
const AutoSentinel = "0"

// northernFirstBand is the alphabetic position (A=1) of the first northern
// latitude band, N.
const northernFirstBand = 14

var (
	// ErrZoneResolution is returned when no reference cell intersects the boundary.
	ErrZoneResolution = eris.New("utm: no zone could be determined")
	// ErrMissingReferenceData is returned when the zone grid is absent or unreadable.
	ErrMissingReferenceData = eris.New("utm: zone reference data unavailable")
)

// Candidate is one cell of the UTM reference grid.
type Candidate struct {
	Zone     int
	Row      byte
	Geometry geometry.Geometry
}

// ValidZone reports whether zone is a UTM zone number.
func ValidZone(zone int) bool {
	return zone >= 1 && zone <= 60
}

// ValidRow reports whether row is a UTM latitude band letter: C to X without I and O.
func ValidRow(row byte) bool {
	return row >= 'C' && row <= 'X' && row != 'I' && row != 'O'
}

// IsNorthern maps a latitude band letter onto its hemisphere.
func IsNorthern(row byte) bool {
	return int(row-'A')+1 >= northernFirstBand
}

// Code returns the WGS 84 / UTM EPSG code for a zone and band.
func Code(zone int, row byte) string {
	return crs.UTMCode(zone, IsNorthern(row))
}

// Resolution is the outcome of zone resolution.
type Resolution struct {
	EPSG    string
	Derived bool
	Zone    int
	Row     byte
	Area    float64
}

func (r Resolution) String() string {
	if !r.Derived {
		return fmt.Sprintf("EPSG:%s (explicit)", r.EPSG)
	}
	return fmt.Sprintf("EPSG:%s (zone %d%c)", r.EPSG, r.Zone, r.Row)
}
