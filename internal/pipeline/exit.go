package pipeline

import (
	"errors"

	"github.com/sells-group/floodprep/internal/catalog"
	"github.com/sells-group/floodprep/internal/config"
	"github.com/sells-group/floodprep/internal/crs"
	"github.com/sells-group/floodprep/internal/geometry"
	"github.com/sells-group/floodprep/internal/monitoring"
	"github.com/sells-group/floodprep/internal/utm"
	"github.com/sells-group/floodprep/internal/vector"
)

// Process exit codes.
const (
	ExitOK             = 0
	ExitError          = 1
	ExitConfig         = 2
	ExitMissingInput   = 3
	ExitZone           = 4
	ExitUnsupportedCRS = 5
	ExitEmptyGeometry  = 6
	ExitCatalog        = 7
)

var classes = []struct {
	target  error
	code    int
	outcome string
}{
	{config.ErrConfigParse, ExitConfig, monitoring.OutcomeConfig},
	{vector.ErrMissingInput, ExitMissingInput, monitoring.OutcomeMissingInput},
	{utm.ErrMissingReferenceData, ExitMissingInput, monitoring.OutcomeMissingInput},
	{utm.ErrZoneResolution, ExitZone, monitoring.OutcomeZone},
	{crs.ErrUnsupportedCRS, ExitUnsupportedCRS, monitoring.OutcomeUnsupported},
	{geometry.ErrEmptyGeometry, ExitEmptyGeometry, monitoring.OutcomeEmptyGeometry},
	{catalog.ErrCatalogWrite, ExitCatalog, monitoring.OutcomeCatalog},
}

// ExitCode maps an error onto the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, c := range classes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	return ExitError
}

// Outcome maps an error onto the metrics outcome label.
func Outcome(err error) string {
	if err == nil {
		return monitoring.OutcomeOK
	}
	for _, c := range classes {
		if errors.Is(err, c.target) {
			return c.outcome
		}
	}
	return monitoring.OutcomeError
}
