// Package crs resolves EPSG codes to projection definitions and reprojects
// geometries between them.
package crs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnsupportedCRS is returned for codes that are malformed or have no known definition.
var ErrUnsupportedCRS = eris.New("crs: unsupported coordinate reference system")

// Well-known codes used by the pipeline.
const (
	WGS84       = "4326"
	ETRS89      = "4258"
	WebMercator = "3857"
	BritishGrid = "27700"
	IrishTM     = "2157"
)

// Hemisphere prefixes for WGS 84 / UTM codes.
const (
	NorthPrefix = "326"
	SouthPrefix = "327"
)

const webMercatorProj4 = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"

var builtin = map[string]string{
	WGS84:       "+proj=longlat +datum=WGS84 +no_defs",
	ETRS89:      "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
	WebMercator: webMercatorProj4,
	"900913":    webMercatorProj4,
	BritishGrid: "+proj=tmerc +lat_0=49 +lon_0=-2 +k=0.9996012717 +x_0=400000 +y_0=-100000 +ellps=airy +towgs84=446.448,-125.157,542.06,0.15,0.247,0.842,-20.489 +units=m +no_defs",
	IrishTM:     "+proj=tmerc +lat_0=53.5 +lon_0=-8 +k=0.99982 +x_0=600000 +y_0=750000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
}

// Normalize strips an optional "EPSG:" authority prefix and checks the remainder
// is a positive integer.
func Normalize(code string) (string, error) {
	c := strings.TrimSpace(code)
	if i := strings.IndexByte(c, ':'); i >= 0 {
		if !strings.EqualFold(c[:i], "epsg") {
			return "", eris.Wrapf(ErrUnsupportedCRS, "crs: authority in %q", code)
		}
		c = c[i+1:]
	}
	n, err := strconv.Atoi(c)
	if err != nil || n <= 0 {
		return "", eris.Wrapf(ErrUnsupportedCRS, "crs: code %q", code)
	}
	return strconv.Itoa(n), nil
}

// UTMCode builds the WGS 84 / UTM EPSG code for a zone, zero-padding the zone number.
func UTMCode(zone int, north bool) string {
	prefix := SouthPrefix
	if north {
		prefix = NorthPrefix
	}
	return fmt.Sprintf("%s%02d", prefix, zone)
}

// ParseUTM reports the zone and hemisphere encoded in a WGS 84 / UTM code.
func ParseUTM(code string) (zone int, north bool, ok bool) {
	if len(code) != 5 {
		return 0, false, false
	}
	switch code[:3] {
	case NorthPrefix:
		north = true
	case SouthPrefix:
	default:
		return 0, false, false
	}
	zone, err := strconv.Atoi(code[3:])
	if err != nil || zone < 1 || zone > 60 {
		return 0, false, false
	}
	return zone, north, true
}

// centralMeridian of a UTM zone in degrees.
func centralMeridian(zone int) float64 {
	return float64(zone)*6 - 183
}

func utmProj4(zone int, north bool) string {
	falseNorthing := 0
	if !north {
		falseNorthing = 10000000
	}
	return fmt.Sprintf("+proj=tmerc +lat_0=0 +lon_0=%g +k=0.9996 +x_0=500000 +y_0=%d +datum=WGS84 +units=m +no_defs",
		centralMeridian(zone), falseNorthing)
}
