// Package variant describes the pipeline variants as data: which parameters
// are passed through to the manifest and which catalogue entries are emitted.
package variant

import (
	_ "embed"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/floodprep/internal/bbox"
	"github.com/sells-group/floodprep/internal/catalog"
	"github.com/sells-group/floodprep/internal/config"
)

//go:embed variants.yaml
var builtinYAML []byte

// Kind is the declared type of a pass-through field.
type Kind string

// Field kinds.
const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
)

// BoundaryMode selects how the boundary is written.
type BoundaryMode string

// Boundary modes.
const (
	// BoundaryReproject writes the boundary in the resolved projection.
	BoundaryReproject BoundaryMode = "reproject"
	// BoundaryCopy copies the input files verbatim.
	BoundaryCopy BoundaryMode = "copy"
)

// Field is one pass-through parameter.
type Field struct {
	Name     string  `yaml:"name"`
	Kind     Kind    `yaml:"kind"`
	Required bool    `yaml:"required"`
	Default  *string `yaml:"default"`
}

// EntryTemplate renders one catalogue entry. Title and Description are
// text/template strings over {{.Location}} and {{.Country}}.
type EntryTemplate struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`

	title       *template.Template
	description *template.Template
}

// Variant is one pipeline flavour.
type Variant struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Boundary    BoundaryMode    `yaml:"boundary"`
	Keyword     string          `yaml:"keyword"`
	Fields      []Field         `yaml:"fields"`
	Entries     []EntryTemplate `yaml:"entries"`
}

// Run carries the values every variant records ahead of its own fields.
type Run struct {
	Country    string
	Location   string
	Projection string
}

// Lookup returns the raw configured value of a field.
type Lookup func(name string) (string, bool)

// Registry holds parsed variants by name.
type Registry struct {
	variants map[string]*Variant
	order    []string
}

type document struct {
	Variants []*Variant `yaml:"variants"`
}

var reserved = map[string]bool{
	catalog.ParamCountry:    true,
	catalog.ParamLocation:   true,
	catalog.ParamProjection: true,
}

// Parse reads a variants document.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "variant: parse definitions")
	}
	if len(doc.Variants) == 0 {
		return nil, eris.New("variant: no variants defined")
	}

	r := &Registry{variants: make(map[string]*Variant, len(doc.Variants))}
	for _, v := range doc.Variants {
		if err := v.compile(); err != nil {
			return nil, err
		}
		key := strings.ToLower(v.Name)
		if _, dup := r.variants[key]; dup {
			return nil, eris.Errorf("variant: %q defined twice", v.Name)
		}
		r.variants[key] = v
		r.order = append(r.order, v.Name)
	}
	return r, nil
}

var builtin = sync.OnceValues(func() (*Registry, error) {
	return Parse(builtinYAML)
})

// Builtin returns the variants compiled into the binary.
func Builtin() (*Registry, error) {
	return builtin()
}

// Get returns the named variant, matched case-insensitively.
func (r *Registry) Get(name string) (*Variant, error) {
	v, ok := r.variants[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, &config.ParseError{
			Field: "VARIANT",
			Value: name,
			Kind:  "variant (" + strings.Join(r.Names(), ", ") + ")",
		}
	}
	return v, nil
}

// Names lists variant names in definition order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (v *Variant) compile() error {
	if strings.TrimSpace(v.Name) == "" {
		return eris.New("variant: unnamed variant")
	}
	switch v.Boundary {
	case BoundaryReproject, BoundaryCopy:
	case "":
		v.Boundary = BoundaryReproject
	default:
		return eris.Errorf("variant %s: unknown boundary mode %q", v.Name, v.Boundary)
	}

	seen := make(map[string]bool)
	for i := range v.Fields {
		f := &v.Fields[i]
		f.Name = strings.ToUpper(strings.TrimSpace(f.Name))
		if f.Name == "" || reserved[f.Name] || seen[f.Name] {
			return eris.Errorf("variant %s: invalid or duplicate field %q", v.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Kind == "" {
			f.Kind = KindString
		}
		switch f.Kind {
		case KindString, KindInt, KindFloat:
		default:
			return eris.Errorf("variant %s: field %s has unknown kind %q", v.Name, f.Name, f.Kind)
		}
		if f.Default != nil {
			if _, err := coerce(*f, *f.Default); err != nil {
				return eris.Wrapf(err, "variant %s: default of %s", v.Name, f.Name)
			}
		}
	}

	entries := make(map[string]bool)
	for i := range v.Entries {
		e := &v.Entries[i]
		if e.Name == "" || strings.ContainsAny(e.Name, `/\`) || entries[e.Name] {
			return eris.Errorf("variant %s: invalid or duplicate entry %q", v.Name, e.Name)
		}
		entries[e.Name] = true

		var err error
		if e.title, err = template.New(e.Name + ".title").Option("missingkey=error").Parse(e.Title); err != nil {
			return eris.Wrapf(err, "variant %s: title of %s", v.Name, e.Name)
		}
		if e.description, err = template.New(e.Name + ".description").Option("missingkey=error").Parse(e.Description); err != nil {
			return eris.Wrapf(err, "variant %s: description of %s", v.Name, e.Name)
		}
	}
	return nil
}

// Resolve builds the parameter record for a run: COUNTRY, LOCATION and
// PROJECTION first, then every declared field in order. A required field
// without a value or a value that does not parse as its kind fails with a
// config.ParseError.
func (v *Variant) Resolve(run Run, lookup Lookup) (catalog.ParameterRecord, error) {
	rec := catalog.ParameterRecord{
		{Name: catalog.ParamCountry, Value: run.Country},
		{Name: catalog.ParamLocation, Value: run.Location},
		{Name: catalog.ParamProjection, Value: run.Projection},
	}
	for _, f := range v.Fields {
		var raw string
		var ok bool
		if lookup != nil {
			raw, ok = lookup(f.Name)
		}
		val, err := f.value(raw, ok)
		if err != nil {
			return nil, err
		}
		rec = append(rec, catalog.Param{Name: f.Name, Value: val})
	}
	return rec, nil
}

func (f Field) value(raw string, ok bool) (any, error) {
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		switch {
		case f.Default != nil:
			return coerce(f, *f.Default)
		case f.Required:
			return nil, &config.ParseError{Field: f.Name}
		default:
			return nil, nil
		}
	}
	return coerce(f, raw)
}

func coerce(f Field, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch f.Kind {
	case KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &config.ParseError{Field: f.Name, Value: raw, Kind: string(f.Kind), Err: err}
		}
		return n, nil
	case KindFloat:
		x, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, &config.ParseError{Field: f.Name, Value: raw, Kind: string(f.Kind), Err: err}
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, &config.ParseError{Field: f.Name, Value: raw, Kind: "finite " + string(f.Kind)}
		}
		return x, nil
	default:
		return raw, nil
	}
}

// ParseManifest coerces a manifest read back from disk to the declared field
// kinds, so that it compares equal to the record Resolve produced.
func (v *Variant) ParseManifest(rec catalog.ParameterRecord) (catalog.ParameterRecord, error) {
	out := make(catalog.ParameterRecord, 0, len(rec))
	for _, name := range []string{catalog.ParamCountry, catalog.ParamLocation, catalog.ParamProjection} {
		val, ok := rec.Get(name)
		if !ok {
			return nil, &config.ParseError{Field: name}
		}
		out = append(out, catalog.Param{Name: name, Value: stringOrEmpty(val)})
	}
	for _, f := range v.Fields {
		val, ok := rec.Get(f.Name)
		if !ok {
			return nil, &config.ParseError{Field: f.Name}
		}
		if val == nil {
			out = append(out, catalog.Param{Name: f.Name})
			continue
		}
		coerced, err := coerce(f, catalog.FormatValue(val))
		if err != nil {
			return nil, err
		}
		out = append(out, catalog.Param{Name: f.Name, Value: coerced})
	}
	return out, nil
}

func stringOrEmpty(v any) string {
	if v == nil {
		return ""
	}
	return catalog.FormatValue(v)
}

// RenderEntries renders the catalogue entries of the variant for a location, each
// carrying footprint.
func (v *Variant) RenderEntries(run Run, footprint bbox.Box) ([]catalog.Entry, error) {
	data := struct {
		Country  string
		Location string
	}{run.Country, run.Location}

	out := make([]catalog.Entry, 0, len(v.Entries))
	for _, e := range v.Entries {
		var title, desc strings.Builder
		if err := e.title.Execute(&title, data); err != nil {
			return nil, eris.Wrapf(err, "variant %s: render title of %s", v.Name, e.Name)
		}
		if err := e.description.Execute(&desc, data); err != nil {
			return nil, eris.Wrapf(err, "variant %s: render description of %s", v.Name, e.Name)
		}
		out = append(out, catalog.Entry{
			Name:        e.Name,
			Title:       title.String(),
			Description: desc.String(),
			Footprint:   footprint,
		})
	}
	return out, nil
}

// FieldNames returns the declared field names sorted alphabetically.
func (v *Variant) FieldNames() []string {
	names := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		names[i] = f.Name
	}
	sort.Strings(names)
	return names
}
