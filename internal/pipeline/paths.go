package pipeline

import (
	"fmt"
	"path/filepath"
)

// Paths is the directory layout of one data root.
type Paths struct {
	Data          string
	BoundaryIn    string
	ZonesIn       string
	Outputs       string
	BoundaryOut   string
	ParametersOut string
	MetadataOut   string
}

// NewPaths derives the standard layout under data.
func NewPaths(data string) Paths {
	data = filepath.Clean(data)
	inputs := filepath.Join(data, "inputs")
	outputs := filepath.Join(data, "outputs")
	return Paths{
		Data:          data,
		BoundaryIn:    filepath.Join(inputs, "boundary"),
		ZonesIn:       filepath.Join(inputs, "utm_zones"),
		Outputs:       outputs,
		BoundaryOut:   filepath.Join(outputs, "boundary"),
		ParametersOut: filepath.Join(outputs, "parameters"),
		MetadataOut:   filepath.Join(outputs, "metadata"),
	}
}

// ManifestName is the parameter manifest file name of a run.
func ManifestName(country, location string) string {
	return fmt.Sprintf("%s-%s-parameters.csv", country, location)
}
