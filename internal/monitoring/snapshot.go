package monitoring

import (
	"sort"
	"time"
)

// Run outcomes used as the outcome label.
const (
	OutcomeOK            = "ok"
	OutcomeConfig        = "config"
	OutcomeMissingInput  = "missing_input"
	OutcomeZone          = "zone_resolution"
	OutcomeUnsupported   = "unsupported_crs"
	OutcomeEmptyGeometry = "empty_geometry"
	OutcomeCatalog       = "catalog_write"
	OutcomeError         = "error"
)

// RunSummary is the outcome of one run inside a batch.
type RunSummary struct {
	Location string        `json:"location"`
	Outcome  string        `json:"outcome"`
	EPSG     string        `json:"epsg,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Snapshot is a point-in-time view of a batch.
type Snapshot struct {
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	FailRate   float64        `json:"fail_rate"`
	ByOutcome  map[string]int `json:"by_outcome"`
	Slowest    string         `json:"slowest,omitempty"`
	TotalTime  time.Duration  `json:"total_time"`
	FailedRuns []string       `json:"failed_runs,omitempty"`
}

// Summarize folds run summaries into a snapshot.
func Summarize(runs []RunSummary) *Snapshot {
	snap := &Snapshot{Total: len(runs), ByOutcome: make(map[string]int)}

	var slowest time.Duration
	for _, r := range runs {
		snap.ByOutcome[r.Outcome]++
		snap.TotalTime += r.Duration
		if r.Outcome == OutcomeOK {
			snap.Succeeded++
		} else {
			snap.Failed++
			snap.FailedRuns = append(snap.FailedRuns, r.Location)
		}
		if r.Duration > slowest {
			slowest = r.Duration
			snap.Slowest = r.Location
		}
	}
	if snap.Total > 0 {
		snap.FailRate = float64(snap.Failed) / float64(snap.Total)
	}
	sort.Strings(snap.FailedRuns)
	return snap
}
