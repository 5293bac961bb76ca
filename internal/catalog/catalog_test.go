package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodprep/internal/bbox"
)

var fixedTime = time.Date(2024, time.March, 5, 9, 30, 15, 123456000, time.UTC)

// tickingClock advances one second every time it is read.
type tickingClock struct {
	*clockwork.FakeClock
}

func (c tickingClock) Now() time.Time {
	t := c.FakeClock.Now()
	c.Advance(time.Second)
	return t
}

func sampleBox() bbox.Box {
	return bbox.Box{Left: 123000, Bottom: 654000, Right: 129000, Top: 660000, Grid: 1000, EPSG: "27700"}
}

func sampleRecord() ParameterRecord {
	return ParameterRecord{
		{Name: ParamCountry, Value: "England"},
		{Name: ParamLocation, Value: "Newcastle"},
		{Name: ParamProjection, Value: "32630"},
		{Name: "DURATION", Value: int64(60)},
		{Name: "TOTAL_DEPTH", Value: 40.5},
		{Name: "OPTIONAL", Value: nil},
	}
}

func TestParameterRecord_SetAndGet(t *testing.T) {
	rec := ParameterRecord{{Name: ParamCountry, Value: "Wales"}, {Name: ParamProjection, Value: "0"}}

	rec.Set("projection", "32630")
	rec.Set("EXTRA", int64(3))

	assert.Equal(t, []string{ParamCountry, ParamProjection, "EXTRA"}, rec.Names())
	assert.Equal(t, "32630", rec.String(ParamProjection))
	v, ok := rec.Get("extra")
	require.True(t, ok)
	assert.Equal(t, int64(3), v)

	_, ok = rec.Get("MISSING")
	assert.False(t, ok)
	assert.Equal(t, "", rec.String("MISSING"))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{int64(42), "42"},
		{40.5, "40.5"},
		{0.1, "0.1"},
		{1e6, "1000000"},
		{float64(3), "3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in), "%v", tt.in)
	}
}

func TestWriteManifest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteManifest(&buf, sampleRecord()))

	want := "PARAMETER,VALUE\n" +
		"COUNTRY,England\n" +
		"LOCATION,Newcastle\n" +
		"PROJECTION,32630\n" +
		"DURATION,60\n" +
		"TOTAL_DEPTH,40.5\n" +
		"OPTIONAL,\n"
	assert.Equal(t, want, buf.String())
}

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "England-Newcastle-parameters.csv")
	require.NoError(t, WriteManifestFile(path, sampleRecord()))

	got, err := ReadManifestFile(path)
	require.NoError(t, err)

	want := ParameterRecord{
		{Name: ParamCountry, Value: "England"},
		{Name: ParamLocation, Value: "Newcastle"},
		{Name: ParamProjection, Value: "32630"},
		{Name: "DURATION", Value: "60"},
		{Name: "TOTAL_DEPTH", Value: "40.5"},
		{Name: "OPTIONAL", Value: nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestReadManifest_QuotedValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteManifest(&buf, ParameterRecord{{Name: "LOCATION", Value: "Bath, Somerset"}}))

	got, err := ReadManifest(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Bath, Somerset", got.String("LOCATION"))
}

func TestReadManifest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"wrong header", "NAME,VALUE\nA,1\n"},
		{"three columns", "PARAMETER,VALUE\nA,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadManifest(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestManifestXLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.xlsx")
	require.NoError(t, WriteManifestXLSX(path, sampleRecord()))

	got, err := ReadManifestXLSX(path)
	require.NoError(t, err)
	require.Len(t, got, len(sampleRecord()))
	assert.Equal(t, "Newcastle", got.String(ParamLocation))
	assert.Equal(t, "60", got.String("DURATION"))
	assert.Equal(t, "40.5", got.String("TOTAL_DEPTH"))
	v, _ := got.Get("OPTIONAL")
	assert.Nil(t, v)
}

func TestNewDocument(t *testing.T) {
	entry := Entry{
		Name:        "metadata_dtm",
		Title:       "Newcastle digital terrain data",
		Description: "The digital terrain data for Newcastle.",
		Footprint:   sampleBox(),
	}
	doc, err := NewDocument(entry, DefaultBoilerplate(), fixedTime)
	require.NoError(t, err)

	b, err := doc.Marshal()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, []any{"metadata-v1"}, got["@context"])
	assert.Equal(t, "dcat:Dataset", got["@type"])
	assert.Equal(t, "Newcastle digital terrain data", got["dct:title"])
	assert.Equal(t, []any{"UDM"}, got["dcat:keyword"])
	assert.Equal(t, "2024-03-05T09:30:15.123456Z", got["dct:created"])
	assert.Equal(t, "created", got["dafni_version_note"])

	license := got["dct:license"].(map[string]any)
	assert.Equal(t, "https://creativecommons.org/licences/by/4.0/", license["@id"])
	assert.Contains(t, license, "rdfs:label")
	assert.Nil(t, license["rdfs:label"])

	contact := got["dcat:contactPoint"].(map[string]any)
	assert.Equal(t, "DAFNI", contact["vcard:fn"])
	assert.Equal(t, "support@dafni.ac.uk", contact["vcard:hasEmail"])

	period := got["dct:PeriodOfTime"].(map[string]any)
	assert.Nil(t, period["time:hasBeginning"])
	assert.Nil(t, period["time:hasEnd"])

	footprint := got["geojson"].(map[string]any)
	assert.Equal(t, "Polygon", footprint["type"])
	ring := footprint["coordinates"].([]any)[0].([]any)
	require.Len(t, ring, 4)
	assert.Equal(t, []any{123000.0, 660000.0}, ring[0])
	assert.Equal(t, []any{129000.0, 660000.0}, ring[1])
	assert.Equal(t, []any{129000.0, 654000.0}, ring[2])
	assert.Equal(t, []any{123000.0, 654000.0}, ring[3])
}

func TestDocumentKeyOrder(t *testing.T) {
	doc, err := NewDocument(Entry{Name: "x", Footprint: sampleBox()}, DefaultBoilerplate(), fixedTime)
	require.NoError(t, err)
	b, err := doc.Marshal()
	require.NoError(t, err)

	keys := []string{
		`"@context"`, `"@type"`, `"dct:language"`, `"dct:title"`, `"dct:description"`,
		`"dcat:keyword"`, `"dct:subject"`, `"dct:license"`, `"dct:creator"`,
		`"dcat:contactPoint"`, `"dct:created"`, `"dct:PeriodOfTime"`,
		`"dafni_version_note"`, `"dct:spatial"`, `"geojson"`,
	}
	last := -1
	for _, k := range keys {
		idx := bytes.Index(b, []byte(k))
		require.GreaterOrEqual(t, idx, 0, k)
		assert.Greater(t, idx, last, k)
		last = idx
	}
}

func newTestEmitter(t *testing.T, clock clockwork.Clock) (*Emitter, string) {
	t.Helper()
	out := t.TempDir()
	e := NewEmitter(filepath.Join(out, "parameters"), filepath.Join(out, "metadata"))
	e.Clock = clock
	return e, out
}

func sampleEntries() []Entry {
	return []Entry{
		{Name: "metadata_inputs", Title: "A", Description: "a", Footprint: sampleBox()},
		{Name: "metadata_ufg", Title: "B", Description: "b", Footprint: sampleBox()},
		{Name: "metadata_dtm", Title: "C", Description: "c", Footprint: sampleBox()},
	}
}

func TestEmit(t *testing.T) {
	clock := tickingClock{clockwork.NewFakeClockAt(fixedTime)}
	e, out := newTestEmitter(t, clock)
	e.XLSX = true

	report, err := e.Emit(context.Background(), sampleRecord(), "England-Newcastle-parameters.csv", sampleEntries())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, "parameters", "England-Newcastle-parameters.csv"), report.Manifest)
	assert.Equal(t, filepath.Join(out, "parameters", "England-Newcastle-parameters.xlsx"), report.Workbook)
	require.Len(t, report.Metadata, 3)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 5, report.Written())

	// each document carries its own emission time
	var created []string
	for _, p := range report.Metadata {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		var doc Document
		require.NoError(t, json.Unmarshal(b, &doc))
		created = append(created, doc.Created)
	}
	assert.Equal(t, []string{
		"2024-03-05T09:30:15.123456Z",
		"2024-03-05T09:30:16.123456Z",
		"2024-03-05T09:30:17.123456Z",
	}, created)

	rec, err := ReadManifestFile(report.Manifest)
	require.NoError(t, err)
	assert.Equal(t, "32630", rec.String(ParamProjection))
}

func TestEmit_ContinuesPastFailures(t *testing.T) {
	e, out := newTestEmitter(t, clockwork.NewFakeClockAt(fixedTime))

	// a directory squatting on one document path makes that write fail
	require.NoError(t, os.MkdirAll(e.MetadataDir, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(e.MetadataDir, "metadata_ufg.json"), 0o755))

	report, err := e.Emit(context.Background(), sampleRecord(), "m.csv", sampleEntries())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCatalogWrite))

	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, "metadata_ufg", we.Entry)

	assert.Equal(t, filepath.Join(out, "parameters", "m.csv"), report.Manifest)
	assert.Len(t, report.Metadata, 2)
	require.Len(t, report.Failed, 1)
	assert.FileExists(t, filepath.Join(e.MetadataDir, "metadata_dtm.json"))
}

func TestEmit_UnwritableDirectories(t *testing.T) {
	e, out := newTestEmitter(t, clockwork.NewFakeClockAt(fixedTime))
	blocker := filepath.Join(out, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	e.ParametersDir = filepath.Join(blocker, "parameters")
	e.MetadataDir = filepath.Join(blocker, "metadata")

	report, err := e.Emit(context.Background(), sampleRecord(), "m.csv", sampleEntries())
	require.Error(t, err)
	assert.Len(t, report.Failed, 4)
	assert.Equal(t, 0, report.Written())
}

func TestEmit_BoilerplateSharedAcrossDocuments(t *testing.T) {
	e, _ := newTestEmitter(t, clockwork.NewFakeClockAt(fixedTime))
	e.Boilerplate.Keyword = "CityCAT"
	e.Boilerplate.ContactEmail = "ops@example.org"

	report, err := e.Emit(context.Background(), sampleRecord(), "m.csv", sampleEntries())
	require.NoError(t, err)

	for _, p := range report.Metadata {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		var doc Document
		require.NoError(t, json.Unmarshal(b, &doc))
		assert.Equal(t, []string{"CityCAT"}, doc.Keyword)
		assert.Equal(t, "ops@example.org", doc.ContactPoint.Email)
	}
}
