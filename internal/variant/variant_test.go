package variant

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodprep/internal/bbox"
	"github.com/sells-group/floodprep/internal/catalog"
	"github.com/sells-group/floodprep/internal/config"
)

func mapLookup(m map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func mustBuiltin(t *testing.T, name string) *Variant {
	t.Helper()
	reg, err := Builtin()
	require.NoError(t, err)
	v, err := reg.Get(name)
	require.NoError(t, err)
	return v
}

var newcastle = Run{Country: "England", Location: "Newcastle", Projection: "0"}

func TestBuiltin(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)
	assert.Equal(t, []string{"udm", "citycat", "impacts"}, reg.Names())

	udm, err := reg.Get("UDM")
	require.NoError(t, err)
	assert.Equal(t, BoundaryReproject, udm.Boundary)
	assert.Len(t, udm.Entries, 9)
	assert.Empty(t, udm.Fields)

	citycat, err := reg.Get("citycat")
	require.NoError(t, err)
	assert.Equal(t, BoundaryCopy, citycat.Boundary)
}

func TestRegistry_UnknownVariant(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	_, err = reg.Get("lisflood")
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfigParse))
	assert.Contains(t, err.Error(), "udm")
}

func TestResolve_UDM(t *testing.T) {
	rec, err := mustBuiltin(t, "udm").Resolve(newcastle, nil)
	require.NoError(t, err)

	want := catalog.ParameterRecord{
		{Name: "COUNTRY", Value: "England"},
		{Name: "LOCATION", Value: "Newcastle"},
		{Name: "PROJECTION", Value: "0"},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_CityCAT(t *testing.T) {
	rec, err := mustBuiltin(t, "citycat").Resolve(newcastle, mapLookup(map[string]string{
		"TOTAL_DEPTH": " 40 ",
		"DURATION":    "60",
		"SIZE":        "",
		"DISCHARGE":   "2.5",
	}))
	require.NoError(t, err)

	want := catalog.ParameterRecord{
		{Name: "COUNTRY", Value: "England"},
		{Name: "LOCATION", Value: "Newcastle"},
		{Name: "PROJECTION", Value: "0"},
		{Name: "RAINFALL_MODE", Value: "return_period"},
		{Name: "TOTAL_DEPTH", Value: 40.0},
		{Name: "DURATION", Value: int64(60)},
		{Name: "POST_EVENT_DURATION", Value: int64(0)},
		{Name: "RETURN_PERIOD", Value: nil},
		{Name: "SIZE", Value: 20.0},
		{Name: "OUTPUT_INTERVAL", Value: int64(600)},
		{Name: "DISCHARGE", Value: 2.5},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"missing required", map[string]string{"DURATION": "60"}, "TOTAL_DEPTH"},
		{"blank required", map[string]string{"TOTAL_DEPTH": "  ", "DURATION": "60"}, "TOTAL_DEPTH"},
		{"bad float", map[string]string{"TOTAL_DEPTH": "deep", "DURATION": "60"}, "TOTAL_DEPTH"},
		{"nan float", map[string]string{"TOTAL_DEPTH": "NaN", "DURATION": "60"}, "TOTAL_DEPTH"},
		{"bad int", map[string]string{"TOTAL_DEPTH": "40", "DURATION": "an hour"}, "DURATION"},
		{"fractional int", map[string]string{"TOTAL_DEPTH": "40", "DURATION": "60.5"}, "DURATION"},
		{"hex int", map[string]string{"TOTAL_DEPTH": "40", "DURATION": "0x3C"}, "DURATION"},
	}

	v := mustBuiltin(t, "citycat")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Resolve(newcastle, mapLookup(tt.env))
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrConfigParse))

			var pe *config.ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.field, pe.Field)
		})
	}
}

func TestResolve_IntegersAreDecimal(t *testing.T) {
	v := mustBuiltin(t, "citycat")
	rec, err := v.Resolve(newcastle, mapLookup(map[string]string{"TOTAL_DEPTH": "40", "DURATION": "010"}))
	require.NoError(t, err)

	got, ok := rec.Get("DURATION")
	require.True(t, ok)
	assert.Equal(t, int64(10), got)
}

func TestManifestRoundTrip(t *testing.T) {
	for _, name := range []string{"udm", "citycat", "impacts"} {
		t.Run(name, func(t *testing.T) {
			v := mustBuiltin(t, name)
			rec, err := v.Resolve(Run{Country: "Wales", Location: "Cardiff", Projection: "32630"}, mapLookup(map[string]string{
				"TOTAL_DEPTH": "40.25",
				"DURATION":    "90",
				"THRESHOLD":   "0.15",
			}))
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, catalog.WriteManifest(&buf, rec))
			read, err := catalog.ReadManifest(&buf)
			require.NoError(t, err)

			got, err := v.ParseManifest(read)
			require.NoError(t, err)
			if diff := cmp.Diff(rec, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseManifest_MissingField(t *testing.T) {
	v := mustBuiltin(t, "impacts")
	_, err := v.ParseManifest(catalog.ParameterRecord{
		{Name: "COUNTRY", Value: "Wales"},
		{Name: "LOCATION", Value: "Cardiff"},
		{Name: "PROJECTION", Value: "32630"},
	})
	var pe *config.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "THRESHOLD", pe.Field)
}

func TestEntries_UDM(t *testing.T) {
	box := bbox.Box{Left: 1000, Bottom: 2000, Right: 3000, Top: 4000, Grid: 1000, EPSG: "27700"}
	entries, err := mustBuiltin(t, "udm").RenderEntries(newcastle, box)
	require.NoError(t, err)
	require.Len(t, entries, 9)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
		assert.Equal(t, box, e.Footprint)
	}
	assert.Equal(t, []string{
		"metadata_inputs", "metadata_ufg", "metadata_green_areas", "metadata_buildings", "metadata_dtm",
		"metadata_udm_citycat", "metadata_citycat", "metadata_impact", "metadata_visualisation",
	}, names)

	assert.Equal(t, "Newcastle input_model", entries[0].Title)
	assert.Equal(t,
		"This csv includes all the parameters used to run the Urban Flooding Impact Assessment Workflow for Newcastle.",
		entries[0].Description,
	)
	assert.Equal(t, "Newcastle existing greenspaces", entries[2].Title)
	assert.Equal(t, "Greenspace data for Newcastle based on the current (2017) urban form.", entries[2].Description)
	assert.Equal(t, "Newcastle maps", entries[8].Title)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "variants: [oops"},
		{"empty", "variants: []"},
		{"unnamed", "variants:\n  - boundary: copy\n"},
		{"bad mode", "variants:\n  - name: a\n    boundary: melt\n"},
		{"duplicate", "variants:\n  - name: a\n  - name: A\n"},
		{"reserved field", "variants:\n  - name: a\n    fields:\n      - name: location\n"},
		{"bad kind", "variants:\n  - name: a\n    fields:\n      - name: x\n        kind: date\n"},
		{"bad default", "variants:\n  - name: a\n    fields:\n      - name: x\n        kind: int\n        default: ten\n"},
		{"entry with path", "variants:\n  - name: a\n    entries:\n      - name: ../x\n"},
		{"bad template", "variants:\n  - name: a\n    entries:\n      - name: x\n        title: \"{{.Location\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	reg, err := Parse([]byte("variants:\n  - name: custom\n    fields:\n      - name: note\n"))
	require.NoError(t, err)
	v, err := reg.Get("custom")
	require.NoError(t, err)

	assert.Equal(t, BoundaryReproject, v.Boundary)
	require.Len(t, v.Fields, 1)
	assert.Equal(t, "NOTE", v.Fields[0].Name)
	assert.Equal(t, KindString, v.Fields[0].Kind)
	assert.Equal(t, []string{"NOTE"}, v.FieldNames())
}
