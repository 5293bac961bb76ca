package catalog

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Manifest column headers.
const (
	HeaderParameter = "PARAMETER"
	HeaderValue     = "VALUE"
)

const manifestSheet = "parameters"

// WriteManifest writes rec as a two-column CSV with a PARAMETER,VALUE header.
func WriteManifest(w io.Writer, rec ParameterRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{HeaderParameter, HeaderValue}); err != nil {
		return eris.Wrap(err, "catalog: write manifest header")
	}
	for _, p := range rec {
		if err := cw.Write([]string{p.Name, FormatValue(p.Value)}); err != nil {
			return eris.Wrapf(err, "catalog: write manifest row %s", p.Name)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "catalog: flush manifest")
}

// WriteManifestFile writes the CSV manifest to path.
func WriteManifestFile(path string, rec ParameterRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "catalog: create manifest")
	}
	if err := WriteManifest(f, rec); err != nil {
		f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "catalog: close manifest")
}

// ReadManifest parses a manifest back into a record of string values. Empty
// values come back as nil.
func ReadManifest(r io.Reader) (ParameterRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read manifest header")
	}
	if !strings.EqualFold(header[0], HeaderParameter) || !strings.EqualFold(header[1], HeaderValue) {
		return nil, eris.Errorf("catalog: unexpected manifest header %q", strings.Join(header, ","))
	}

	var rec ParameterRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "catalog: read manifest row")
		}
		rec = append(rec, Param{Name: row[0], Value: manifestValue(row[1])})
	}
	return rec, nil
}

// ReadManifestFile parses the CSV manifest at path.
func ReadManifestFile(path string) (ParameterRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open manifest")
	}
	defer f.Close()
	return ReadManifest(f)
}

// WriteManifestXLSX writes the same two columns to a single-sheet workbook.
func WriteManifestXLSX(path string, rec ParameterRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(manifestSheet)
	if err != nil {
		return eris.Wrap(err, "catalog: add manifest sheet")
	}

	header := sheet.AddRow()
	header.AddCell().SetString(HeaderParameter)
	header.AddCell().SetString(HeaderValue)

	for _, p := range rec {
		row := sheet.AddRow()
		row.AddCell().SetString(p.Name)
		cell := row.AddCell()
		switch v := p.Value.(type) {
		case int64:
			cell.SetInt64(v)
		case float64:
			cell.SetFloat(v)
		default:
			cell.SetString(FormatValue(v))
		}
	}

	return eris.Wrap(f.Save(path), "catalog: save manifest workbook")
}

// ReadManifestXLSX reads a workbook written by WriteManifestXLSX.
func ReadManifestXLSX(path string) (ParameterRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open manifest workbook")
	}
	sheet, ok := f.Sheet[manifestSheet]
	if !ok {
		return nil, eris.Errorf("catalog: workbook has no %q sheet", manifestSheet)
	}

	var rec ParameterRecord
	for i, row := range sheet.Rows {
		if i == 0 || len(row.Cells) == 0 {
			continue
		}
		var value string
		if len(row.Cells) > 1 {
			value = row.Cells[1].String()
		}
		rec = append(rec, Param{Name: row.Cells[0].String(), Value: manifestValue(value)})
	}
	return rec, nil
}

func manifestValue(s string) any {
	if s == "" {
		return nil
	}
	return s
}
