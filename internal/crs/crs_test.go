package crs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodprep/internal/geometry"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"32632", "32632", false},
		{"EPSG:27700", "27700", false},
		{"epsg:3857", "3857", false},
		{" 4326 ", "4326", false},
		{"ESRI:102100", "", true},
		{"abc", "", true},
		{"0", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnsupportedCRS))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUTMCode(t *testing.T) {
	assert.Equal(t, "32632", UTMCode(32, true))
	assert.Equal(t, "32705", UTMCode(5, false))
	assert.Equal(t, "32601", UTMCode(1, true))
}

func TestParseUTM(t *testing.T) {
	zone, north, ok := ParseUTM("32630")
	require.True(t, ok)
	assert.Equal(t, 30, zone)
	assert.True(t, north)

	zone, north, ok = ParseUTM("32760")
	require.True(t, ok)
	assert.Equal(t, 60, zone)
	assert.False(t, north)

	for _, bad := range []string{"27700", "32600", "32661", "3263"} {
		_, _, ok := ParseUTM(bad)
		assert.False(t, ok, bad)
	}
}

func TestRegistry_Definition(t *testing.T) {
	r, err := NewRegistry(map[string]string{"EPSG:2056": "+proj=somerc +lat_0=46.95 +lon_0=7.43 +k_0=1 +x_0=2600000 +y_0=1200000 +ellps=bessel +units=m +no_defs"})
	require.NoError(t, err)

	def, err := r.Definition("32631")
	require.NoError(t, err)
	assert.Contains(t, def, "+lon_0=3")
	assert.Contains(t, def, "+y_0=0")

	def, err = r.Definition("32731")
	require.NoError(t, err)
	assert.Contains(t, def, "+y_0=10000000")

	def, err = r.Definition("2056")
	require.NoError(t, err)
	assert.Contains(t, def, "somerc")

	_, err = r.Definition("99999")
	assert.True(t, errors.Is(err, ErrUnsupportedCRS))

	assert.Contains(t, r.Codes(), "2056")
}

func TestNewRegistry_RejectsBadExtraKey(t *testing.T) {
	_, err := NewRegistry(map[string]string{"nope": "+proj=longlat"})
	assert.Error(t, err)
}

func TestRegistry_ReprojectToWebMercator(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	g := geometry.Rect(WGS84, 0, 0, 1, 1)
	out, err := r.Reproject(g, "EPSG:3857")
	require.NoError(t, err)
	assert.Equal(t, WebMercator, out.EPSG())

	b, err := out.Bounds()
	require.NoError(t, err)
	assert.InDelta(t, 0, b.Min(0), 1e-6)
	assert.InDelta(t, 0, b.Min(1), 1e-6)
	assert.InDelta(t, 111319.49, b.Max(0), 1)
	assert.InDelta(t, 111325.14, b.Max(1), 1)

	// the caller's geometry stays in its own CRS
	assert.Equal(t, WGS84, g.EPSG())
}

func TestRegistry_ReprojectToUTMCentralMeridian(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	g := geometry.Rect(WGS84, 8.999, 0, 9.001, 0.001)
	out, err := r.Reproject(g, UTMCode(32, true))
	require.NoError(t, err)

	b, err := out.Bounds()
	require.NoError(t, err)
	assert.InDelta(t, 500000, (b.Min(0)+b.Max(0))/2, 1)
	assert.InDelta(t, 0, b.Min(1), 1)
}

func TestRegistry_ReprojectFromBritishGrid(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	g := geometry.Rect(BritishGrid, 430000, 433000, 431000, 434000)

	tests := []struct {
		target     string
		minX, maxX float64
		minY, maxY float64
	}{
		{WebMercator, -250000, -100000, 6.8e6, 7.1e6},
		{UTMCode(30, true), 550000, 650000, 5.8e6, 5.95e6},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			out, err := r.Reproject(g, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.target, out.EPSG())

			b, err := out.Bounds()
			require.NoError(t, err)
			assert.Greater(t, b.Min(0), tt.minX)
			assert.Less(t, b.Max(0), tt.maxX)
			assert.Greater(t, b.Min(1), tt.minY)
			assert.Less(t, b.Max(1), tt.maxY)

			// same answer as going through WGS 84 by hand
			geo, err := r.Reproject(g, WGS84)
			require.NoError(t, err)
			twoStep, err := r.Reproject(geo, tt.target)
			require.NoError(t, err)

			a := out.MultiPolygon().FlatCoords()
			c := twoStep.MultiPolygon().FlatCoords()
			require.Len(t, c, len(a))
			for i := range a {
				assert.InDelta(t, c[i], a[i], 1e-6)
			}
		})
	}
}

func TestRegistry_ReprojectIdempotent(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	g := geometry.Rect(WGS84, -3.2, 54.9, -2.9, 55.1)
	once, err := r.Reproject(g, BritishGrid)
	require.NoError(t, err)
	twice, err := r.Reproject(once, BritishGrid)
	require.NoError(t, err)

	a := once.MultiPolygon().FlatCoords()
	b := twice.MultiPolygon().FlatCoords()
	require.Len(t, b, len(a))
	for i := range a {
		assert.InDelta(t, a[i], b[i], 1e-9)
	}
}

func TestRegistry_ReprojectUnsupported(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	g := geometry.Rect(WGS84, 0, 0, 1, 1)

	_, err = r.Reproject(g, "12345678")
	assert.True(t, errors.Is(err, ErrUnsupportedCRS))

	_, err = r.Reproject(geometry.Rect("", 0, 0, 1, 1), WGS84)
	assert.True(t, errors.Is(err, ErrUnsupportedCRS))
}

func TestWKT_RoundTripsThroughFromWKT(t *testing.T) {
	for _, code := range []string{WGS84, WebMercator, BritishGrid, "32632", "32718"} {
		w, ok := WKT(code)
		require.True(t, ok, code)

		got, err := FromWKT(w)
		require.NoError(t, err, code)
		assert.Equal(t, code, got)
	}

	_, ok := WKT(IrishTM)
	assert.False(t, ok)
}

func TestFromWKT(t *testing.T) {
	tests := []struct {
		name string
		wkt  string
		want string
	}{
		{
			name: "authority tag",
			wkt:  `PROJCS["OSGB 1936 / British National Grid",GEOGCS["OSGB 1936",AUTHORITY["EPSG","4277"]],AUTHORITY["EPSG","27700"]]`,
			want: "27700",
		},
		{
			name: "ogc utm name",
			wkt:  `PROJCS["WGS 84 / UTM zone 30N",GEOGCS["WGS 84"]]`,
			want: "32630",
		},
		{
			name: "etrs geographic",
			wkt:  `GEOGCS["GCS_ETRS_1989",DATUM["D_ETRS_1989"]]`,
			want: "4258",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromWKT(tt.wkt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FromWKT(`PROJCS["Lambert_Conformal_Conic_2SP",GEOGCS["GCS_unnamed ellipse"]]`)
	assert.True(t, errors.Is(err, ErrUnsupportedCRS))
}
