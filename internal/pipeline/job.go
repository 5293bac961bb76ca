package pipeline

import (
	"strings"

	"github.com/google/uuid"

	"github.com/sells-group/floodprep/internal/config"
	"github.com/sells-group/floodprep/internal/variant"
)

// Job is the immutable description of one preparation run.
type Job struct {
	ID      string
	Data    string
	Variant string
	Run     variant.Run
	// Params holds explicit pass-through values; Fallback is consulted for
	// anything not listed.
	Params   map[string]string
	Fallback variant.Lookup
}

// JobFromConfig builds the single job a plain invocation runs.
func JobFromConfig(cfg *config.Config) Job {
	return Job{
		ID:      uuid.NewString(),
		Data:    cfg.Data,
		Variant: cfg.Run.Variant,
		Run: variant.Run{
			Country:    cfg.Run.Country,
			Location:   cfg.Run.Location,
			Projection: strings.TrimSpace(cfg.Run.Projection),
		},
		Fallback: cfg.Param,
	}
}

// Lookup resolves a pass-through value, explicit Params first.
func (j Job) Lookup(name string) (string, bool) {
	for k, v := range j.Params {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	if j.Fallback != nil {
		return j.Fallback(name)
	}
	return "", false
}

// Validate checks the identifying fields before anything touches disk.
func (j Job) Validate() error {
	switch {
	case strings.TrimSpace(j.Data) == "":
		return &config.ParseError{Field: "DATA"}
	case strings.TrimSpace(j.Run.Country) == "":
		return &config.ParseError{Field: "COUNTRY"}
	case strings.TrimSpace(j.Run.Location) == "":
		return &config.ParseError{Field: "LOCATION"}
	case strings.ContainsAny(j.Run.Location, `/\`):
		return &config.ParseError{Field: "LOCATION", Value: j.Run.Location, Kind: "file name"}
	case strings.ContainsAny(j.Run.Country, `/\`):
		return &config.ParseError{Field: "COUNTRY", Value: j.Run.Country, Kind: "file name"}
	}
	return nil
}
