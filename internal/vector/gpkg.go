package vector

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/floodprep/internal/crs"
)

const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 10300
	gpkgGeomColumn    = "geom"
	gpkgFIDColumn     = "fid"
)

// readGeoPackage reads the first feature table of a GeoPackage.
func readGeoPackage(path string) (*Layer, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: open")
	}
	defer db.Close() //nolint:errcheck

	var (
		table, column string
		srsID         int64
	)
	err = db.QueryRow(`
		SELECT g.table_name, g.column_name, g.srs_id
		FROM gpkg_geometry_columns g
		JOIN gpkg_contents c ON c.table_name = g.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.rowid
		LIMIT 1`).Scan(&table, &column, &srsID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("gpkg: %s has no feature tables", path)
	}
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: query geometry columns")
	}

	l := &Layer{Name: table, EPSG: gpkgEPSG(db, srsID)}

	rows, err := db.Query(`SELECT * FROM ` + quoteIdent(table))
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: select %s", table)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: columns")
	}
	geomIdx := -1
	for i, c := range cols {
		if strings.EqualFold(c, column) {
			geomIdx = i
			continue
		}
		l.Fields = append(l.Fields, c)
	}
	if geomIdx < 0 {
		return nil, eris.Errorf("gpkg: geometry column %s not found in %s", column, table)
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "gpkg: scan")
		}
		blob, _ := vals[geomIdx].([]byte)
		g, err := decodeGeoPackageBinary(blob)
		if err != nil {
			return nil, eris.Wrapf(err, "gpkg: decode geometry in %s", table)
		}
		mp, err := toMultiPolygon(g)
		if err != nil {
			return nil, err
		}
		if mp == nil {
			continue
		}

		props := make(map[string]any, len(cols)-1)
		for i, c := range cols {
			if i == geomIdx {
				continue
			}
			props[c] = normalizeValue(vals[i])
		}
		l.Features = append(l.Features, Feature{Geometry: mp, Properties: props})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "gpkg: rows")
	}
	return l, nil
}

// gpkgEPSG maps a GeoPackage srs_id onto an EPSG code.
func gpkgEPSG(db *sql.DB, srsID int64) string {
	var (
		org   string
		orgID int64
	)
	err := db.QueryRow(`SELECT organization, organization_coordsys_id FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, srsID).Scan(&org, &orgID)
	if err == nil && strings.EqualFold(org, "EPSG") && orgID > 0 {
		return strconv.FormatInt(orgID, 10)
	}
	if srsID > 0 {
		return strconv.FormatInt(srsID, 10)
	}
	return ""
}

// decodeGeoPackageBinary strips the GeoPackage binary header and decodes the WKB payload.
func decodeGeoPackageBinary(b []byte) (geom.T, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, eris.New("gpkg: not a GeoPackage geometry blob")
	}
	flags := b[3]
	if flags&0x10 != 0 {
		return nil, nil
	}
	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, eris.Errorf("gpkg: invalid envelope indicator in flags %#x", flags)
	}
	off := 8 + envelope
	if len(b) < off {
		return nil, eris.New("gpkg: truncated geometry header")
	}
	g, err := wkb.Unmarshal(b[off:])
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: unmarshal wkb")
	}
	return g, nil
}

// encodeGeoPackageBinary wraps mp in a little-endian GeoPackage header with an XY envelope.
func encodeGeoPackageBinary(mp *geom.MultiPolygon, srsID int32) ([]byte, error) {
	payload, err := wkb.Marshal(mp, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: marshal wkb")
	}

	var buf bytes.Buffer
	buf.Write([]byte{'G', 'P', 0})
	if mp.NumPolygons() == 0 {
		buf.WriteByte(0x01 | 0x10)
		_ = binary.Write(&buf, binary.LittleEndian, srsID)
	} else {
		buf.WriteByte(0x01 | 0x02)
		_ = binary.Write(&buf, binary.LittleEndian, srsID)
		b := mp.Bounds()
		for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
			_ = binary.Write(&buf, binary.LittleEndian, v)
		}
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

const gpkgSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER NOT NULL PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system');
`

// writeGeoPackage writes l as a single feature table named after the file stem.
// A "fid" attribute becomes the integer primary key.
func writeGeoPackage(path string, l *Layer) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "gpkg: remove existing %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "gpkg: open")
	}
	defer db.Close() //nolint:errcheck

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA application_id = %d", gpkgApplicationID),
		fmt.Sprintf("PRAGMA user_version = %d", gpkgUserVersion),
	} {
		if _, err := db.Exec(pragma); err != nil {
			return eris.Wrapf(err, "gpkg: exec %s", pragma)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return eris.Wrap(err, "gpkg: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(gpkgSchema); err != nil {
		return eris.Wrap(err, "gpkg: create schema")
	}

	srsID := int32(-1)
	for _, code := range []string{crs.WGS84, l.EPSG} {
		id, err := insertSRS(tx, code)
		if err != nil {
			return err
		}
		if code == l.EPSG {
			srsID = id
		}
	}

	table := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	fields := make([]string, 0, len(l.Fields))
	for _, f := range orderedFields(l.Fields, l.Features) {
		if strings.EqualFold(f, gpkgFIDColumn) || strings.EqualFold(f, gpkgGeomColumn) {
			continue
		}
		fields = append(fields, f)
	}
	kinds := columnKinds(fields, l.Features)

	ddl := []string{
		quoteIdent(gpkgFIDColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL",
		quoteIdent(gpkgGeomColumn) + " MULTIPOLYGON",
	}
	for i, f := range fields {
		ddl = append(ddl, quoteIdent(f)+" "+sqliteType(kinds[i]))
	}
	if _, err := tx.Exec(`CREATE TABLE ` + quoteIdent(table) + ` (` + strings.Join(ddl, ", ") + `)`); err != nil {
		return eris.Wrapf(err, "gpkg: create table %s", table)
	}

	cols := []string{quoteIdent(gpkgFIDColumn), quoteIdent(gpkgGeomColumn)}
	marks := []string{"?", "?"}
	for _, f := range fields {
		cols = append(cols, quoteIdent(f))
		marks = append(marks, "?")
	}
	stmt, err := tx.Prepare(`INSERT INTO ` + quoteIdent(table) + ` (` + strings.Join(cols, ", ") + `) VALUES (` + strings.Join(marks, ", ") + `)`)
	if err != nil {
		return eris.Wrap(err, "gpkg: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, f := range l.Features {
		blob, err := encodeGeoPackageBinary(f.Geometry, srsID)
		if err != nil {
			return err
		}
		if f.Geometry.NumPolygons() > 0 {
			b := f.Geometry.Bounds()
			minX, minY = math.Min(minX, b.Min(0)), math.Min(minY, b.Min(1))
			maxX, maxY = math.Max(maxX, b.Max(0)), math.Max(maxY, b.Max(1))
		}

		args := make([]any, 0, len(cols))
		if fid, ok := fidValue(f.Properties); ok {
			args = append(args, fid)
		} else {
			args = append(args, nil)
		}
		args = append(args, blob)
		for _, name := range fields {
			args = append(args, f.Properties[name])
		}
		if _, err := stmt.Exec(args...); err != nil {
			return eris.Wrapf(err, "gpkg: insert into %s", table)
		}
	}

	var bounds []any
	if math.IsInf(minX, 1) {
		bounds = []any{nil, nil, nil, nil}
	} else {
		bounds = []any{minX, minY, maxX, maxY}
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		append(append([]any{table, table}, bounds...), srsID)...); err != nil {
		return eris.Wrap(err, "gpkg: insert contents")
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_geometry_columns VALUES (?, ?, 'MULTIPOLYGON', ?, 0, 0)`,
		table, gpkgGeomColumn, srsID); err != nil {
		return eris.Wrap(err, "gpkg: insert geometry column")
	}

	return eris.Wrap(tx.Commit(), "gpkg: commit")
}

// insertSRS registers code in gpkg_spatial_ref_sys and returns its srs_id.
// Unknown or non-numeric codes map onto the undefined cartesian SRS.
func insertSRS(tx *sql.Tx, code string) (int32, error) {
	c, err := crs.Normalize(code)
	if err != nil {
		return -1, nil
	}
	id, err := strconv.ParseInt(c, 10, 32)
	if err != nil {
		return -1, nil
	}
	def, ok := crs.WKT(c)
	if !ok {
		def = "undefined"
	}
	_, err = tx.Exec(`INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES (?, ?, 'EPSG', ?, ?, NULL)`,
		"EPSG:"+c, id, id, def)
	if err != nil {
		return -1, eris.Wrapf(err, "gpkg: insert srs %s", c)
	}
	return int32(id), nil
}

func fidValue(props map[string]any) (int64, bool) {
	for k := range props {
		if strings.EqualFold(k, gpkgFIDColumn) {
			return IntProperty(props, k)
		}
	}
	return 0, false
}

func sqliteType(k columnKind) string {
	switch k {
	case kindInt:
		return "INTEGER"
	case kindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
