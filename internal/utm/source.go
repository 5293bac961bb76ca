package utm

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodprep/internal/vector"
)

// Attribute names of the reference grid.
const (
	FieldZone = "ZONE"
	FieldRow  = "ROW_"
)

// DirSource loads the reference grid from the single vector file in a directory.
// The file is read on first use only.
type DirSource struct {
	Dir string

	once       sync.Once
	candidates []Candidate
	err        error
}

// NewDirSource returns a lazily loaded source over dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// Candidates implements ZoneSource.
func (s *DirSource) Candidates(_ context.Context) ([]Candidate, error) {
	s.once.Do(func() {
		path, err := vector.FindOne(s.Dir, vector.ExtGeoPackage, vector.ExtShapefile, vector.ExtGeoJSON)
		if err != nil {
			s.err = eris.Wrapf(ErrMissingReferenceData, "utm: locate zone grid: %v", err)
			return
		}
		layer, err := vector.Read(path)
		if err != nil {
			s.err = eris.Wrapf(ErrMissingReferenceData, "utm: read zone grid %s: %v", path, err)
			return
		}
		s.candidates, s.err = FromLayer(layer)
	})
	return s.candidates, s.err
}

// FromLayer extracts candidates from a zone grid layer. Records with a zone
// outside 1-60 or a band letter outside C-X (I and O excluded) are skipped.
func FromLayer(l *vector.Layer) ([]Candidate, error) {
	zoneField, ok := l.Field(FieldZone)
	if !ok {
		return nil, eris.Wrapf(ErrMissingReferenceData, "utm: zone grid %s has no %s attribute", l.Name, FieldZone)
	}
	rowField, ok := l.Field(FieldRow)
	if !ok {
		return nil, eris.Wrapf(ErrMissingReferenceData, "utm: zone grid %s has no %s attribute", l.Name, FieldRow)
	}
	if l.EPSG == "" {
		return nil, eris.Wrapf(ErrMissingReferenceData, "utm: zone grid %s has no CRS", l.Name)
	}

	out := make([]Candidate, 0, len(l.Features))
	var skipped int
	for i, f := range l.Features {
		zone, ok := vector.IntProperty(f.Properties, zoneField)
		if !ok || !ValidZone(int(zone)) {
			skipped++
			continue
		}
		rowStr, _ := vector.StringProperty(f.Properties, rowField)
		rowStr = strings.ToUpper(strings.TrimSpace(rowStr))
		if len(rowStr) != 1 || !ValidRow(rowStr[0]) {
			skipped++
			continue
		}
		out = append(out, Candidate{Zone: int(zone), Row: rowStr[0], Geometry: l.Feature(i)})
	}

	if skipped > 0 {
		zap.L().Debug("utm: skipped invalid zone grid records",
			zap.String("layer", l.Name),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

// StaticSource serves a fixed candidate list.
type StaticSource []Candidate

// Candidates implements ZoneSource.
func (s StaticSource) Candidates(context.Context) ([]Candidate, error) {
	return s, nil
}
