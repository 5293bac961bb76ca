// Package catalog writes the parameter manifest and per-artifact metadata
// documents that register a run's outputs with the cataloguing platform.
package catalog

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/sells-group/floodprep/internal/bbox"
)

// Well-known parameter names every variant records first.
const (
	ParamCountry    = "COUNTRY"
	ParamLocation   = "LOCATION"
	ParamProjection = "PROJECTION"
)

// Param is one named manifest value: string, int64, float64 or nil.
type Param struct {
	Name  string
	Value any
}

// ParameterRecord is an ordered set of parameters. Order is the manifest row order.
type ParameterRecord []Param

// Get returns the value stored under name, matched case-insensitively.
func (r ParameterRecord) Get(name string) (any, bool) {
	for _, p := range r {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return nil, false
}

// String returns the formatted manifest value of name.
func (r ParameterRecord) String(name string) string {
	v, _ := r.Get(name)
	return FormatValue(v)
}

// Set replaces the value of an existing parameter in place or appends a new one.
func (r *ParameterRecord) Set(name string, value any) {
	for i, p := range *r {
		if strings.EqualFold(p.Name, name) {
			(*r)[i].Value = value
			return
		}
	}
	*r = append(*r, Param{Name: name, Value: value})
}

// Names returns the parameter names in record order.
func (r ParameterRecord) Names() []string {
	out := make([]string, len(r))
	for i, p := range r {
		out[i] = p.Name
	}
	return out
}

// FormatValue renders a manifest value. nil becomes the empty string and
// floats use the shortest representation that parses back to the same value.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

// Entry describes one downstream artifact to register.
type Entry struct {
	Name        string
	Title       string
	Description string
	Footprint   bbox.Box
}
