package crs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const gcsWGS84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

var esriWKT = map[string]string{
	WGS84: gcsWGS84,
	WebMercator: `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",` + gcsWGS84 +
		`,PROJECTION["Mercator_Auxiliary_Sphere"],PARAMETER["False_Easting",0.0],PARAMETER["False_Northing",0.0],` +
		`PARAMETER["Central_Meridian",0.0],PARAMETER["Standard_Parallel_1",0.0],PARAMETER["Auxiliary_Sphere_Type",0.0],UNIT["Meter",1.0]]`,
	BritishGrid: `PROJCS["British_National_Grid",GEOGCS["GCS_OSGB_1936",DATUM["D_OSGB_1936",SPHEROID["Airy_1830",6377563.396,299.3249646]],` +
		`PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",400000.0],` +
		`PARAMETER["False_Northing",-100000.0],PARAMETER["Central_Meridian",-2.0],PARAMETER["Scale_Factor",0.9996012717],` +
		`PARAMETER["Latitude_Of_Origin",49.0],UNIT["Meter",1.0]]`,
}

// WKT renders an ESRI-flavoured WKT definition for code, as written to shapefile
// .prj sidecars. The second result is false when no rendering is known.
func WKT(code string) (string, bool) {
	c, err := Normalize(code)
	if err != nil {
		return "", false
	}
	if w, ok := esriWKT[c]; ok {
		return w, true
	}
	zone, north, ok := ParseUTM(c)
	if !ok {
		return "", false
	}
	hemi, falseNorthing := "N", 0.0
	if !north {
		hemi, falseNorthing = "S", 10000000.0
	}
	return fmt.Sprintf(`PROJCS["WGS_1984_UTM_Zone_%d%s",%s,PROJECTION["Transverse_Mercator"],`+
		`PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",%.1f],PARAMETER["Central_Meridian",%.1f],`+
		`PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`,
		zone, hemi, gcsWGS84, falseNorthing, centralMeridian(zone)), true
}

var (
	authorityRe = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	utmNameRe   = regexp.MustCompile(`(?i)UTM[_ ]zone[_ ](\d{1,2})([NS])`)
)

// FromWKT extracts an EPSG code from WKT text such as a shapefile .prj sidecar.
// The outermost AUTHORITY tag wins; otherwise a handful of common ESRI names are
// recognised.
func FromWKT(wkt string) (string, error) {
	w := strings.TrimSpace(wkt)
	if w == "" {
		return "", eris.Wrap(ErrUnsupportedCRS, "crs: empty WKT")
	}

	if m := authorityRe.FindAllStringSubmatch(w, -1); len(m) > 0 {
		return Normalize(m[len(m)-1][1])
	}

	upper := strings.ToUpper(w)
	isProjected := strings.HasPrefix(upper, "PROJCS") || strings.HasPrefix(upper, "PROJCRS")

	if m := utmNameRe.FindStringSubmatch(w); m != nil && strings.Contains(upper, "WGS") {
		zone, _ := strconv.Atoi(m[1])
		if zone >= 1 && zone <= 60 {
			return UTMCode(zone, strings.EqualFold(m[2], "N")), nil
		}
	}

	switch {
	case strings.Contains(upper, "BRITISH_NATIONAL_GRID"), strings.Contains(upper, "BRITISH NATIONAL GRID"):
		return BritishGrid, nil
	case strings.Contains(upper, "WEB_MERCATOR"), strings.Contains(upper, "PSEUDO-MERCATOR"):
		return WebMercator, nil
	case strings.Contains(upper, "IRENET95") || strings.Contains(upper, "IRISH_TRANSVERSE_MERCATOR"):
		return IrishTM, nil
	case !isProjected && strings.Contains(upper, "ETRS"):
		return ETRS89, nil
	case !isProjected && (strings.Contains(upper, "WGS_1984") || strings.Contains(upper, "WGS 84")):
		return WGS84, nil
	}

	return "", eris.Wrapf(ErrUnsupportedCRS, "crs: unrecognised WKT %.60q", w)
}
