package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCatalogWrite marks a manifest or metadata document that could not be written.
var ErrCatalogWrite = eris.New("catalog: write failed")

// WriteError records one failed catalog write.
type WriteError struct {
	Path  string
	Entry string
	Err   error
}

func (e *WriteError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("catalog: write %s (%s): %v", e.Path, e.Entry, e.Err)
	}
	return fmt.Sprintf("catalog: write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is makes every WriteError match ErrCatalogWrite.
func (e *WriteError) Is(target error) bool { return target == ErrCatalogWrite }

// Report lists what an Emit call produced.
type Report struct {
	Manifest string
	Workbook string
	Metadata []string
	Failed   []*WriteError
}

// Written counts the files successfully written.
func (r *Report) Written() int {
	n := len(r.Metadata)
	if r.Manifest != "" {
		n++
	}
	if r.Workbook != "" {
		n++
	}
	return n
}

// Emitter writes catalog records under a parameters and a metadata directory.
type Emitter struct {
	ParametersDir string
	MetadataDir   string
	// XLSX also writes the manifest as a workbook next to the CSV.
	XLSX        bool
	Boilerplate Boilerplate
	// Clock stamps dct:created; nil means the real clock.
	Clock clockwork.Clock
}

// NewEmitter returns an emitter with the default boilerplate and real clock.
func NewEmitter(parametersDir, metadataDir string) *Emitter {
	return &Emitter{
		ParametersDir: parametersDir,
		MetadataDir:   metadataDir,
		Boilerplate:   DefaultBoilerplate(),
		Clock:         clockwork.NewRealClock(),
	}
}

// Emit writes the manifest and one metadata document per entry. Every write is
// attempted; failures are collected and returned together as WriteErrors once
// all writes have run. The creation time of each document is read from the
// clock as that document is produced.
func (e *Emitter) Emit(ctx context.Context, rec ParameterRecord, manifestName string, entries []Entry) (*Report, error) {
	log := zap.L().With(zap.String("component", "catalog.emitter"))
	clock := e.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	report := &Report{}
	fail := func(path, entry string, err error) {
		we := &WriteError{Path: path, Entry: entry, Err: err}
		report.Failed = append(report.Failed, we)
		log.Error("catalog write failed",
			zap.String("path", path),
			zap.String("entry", entry),
			zap.Error(err),
		)
	}

	manifestPath := filepath.Join(e.ParametersDir, manifestName)
	if err := os.MkdirAll(e.ParametersDir, 0o755); err != nil {
		fail(manifestPath, "", eris.Wrap(err, "catalog: create parameters dir"))
	} else {
		if err := WriteManifestFile(manifestPath, rec); err != nil {
			fail(manifestPath, "", err)
		} else {
			report.Manifest = manifestPath
		}

		if e.XLSX {
			bookPath := strings.TrimSuffix(manifestPath, filepath.Ext(manifestPath)) + ".xlsx"
			if err := WriteManifestXLSX(bookPath, rec); err != nil {
				fail(bookPath, "", err)
			} else {
				report.Workbook = bookPath
			}
		}
	}

	dirErr := os.MkdirAll(e.MetadataDir, 0o755)
	for _, entry := range entries {
		path := filepath.Join(e.MetadataDir, entry.Name+".json")
		if err := ctx.Err(); err != nil {
			fail(path, entry.Name, eris.Wrap(err, "catalog: emit cancelled"))
			continue
		}
		if dirErr != nil {
			fail(path, entry.Name, eris.Wrap(dirErr, "catalog: create metadata dir"))
			continue
		}
		if err := e.writeDocument(path, entry, clock); err != nil {
			fail(path, entry.Name, err)
			continue
		}
		report.Metadata = append(report.Metadata, path)
	}

	log.Info("catalog emitted",
		zap.Int("written", report.Written()),
		zap.Int("failed", len(report.Failed)),
	)

	if len(report.Failed) == 0 {
		return report, nil
	}
	errs := make([]error, len(report.Failed))
	for i, we := range report.Failed {
		errs[i] = we
	}
	return report, errors.Join(errs...)
}

func (e *Emitter) writeDocument(path string, entry Entry, clock clockwork.Clock) error {
	doc, err := NewDocument(entry, e.Boilerplate, clock.Now())
	if err != nil {
		return err
	}
	b, err := doc.Marshal()
	if err != nil {
		return err
	}
	return eris.Wrap(os.WriteFile(path, b, 0o644), "catalog: write metadata")
}
