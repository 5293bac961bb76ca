package catalog

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// TimeFormat is the creation timestamp layout: ISO-8601 in UTC with a Z suffix.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// Boilerplate holds the fixed licence and contact block shared by every
// document of a run.
type Boilerplate struct {
	Language     string
	Keyword      string
	Subject      string
	License      string
	ContactName  string
	ContactEmail string
}

// DefaultBoilerplate returns the standard catalogue boilerplate.
func DefaultBoilerplate() Boilerplate {
	return Boilerplate{
		Language:     "en",
		Keyword:      "UDM",
		Subject:      "Environment",
		License:      "https://creativecommons.org/licences/by/4.0/",
		ContactName:  "DAFNI",
		ContactEmail: "support@dafni.ac.uk",
	}
}

// Document is a metadata-v1 dataset description. Field order matches the
// serialised key order.
type Document struct {
	Context      []string          `json:"@context"`
	Type         string            `json:"@type"`
	Language     string            `json:"dct:language"`
	Title        string            `json:"dct:title"`
	Description  string            `json:"dct:description"`
	Keyword      []string          `json:"dcat:keyword"`
	Subject      string            `json:"dct:subject"`
	License      License           `json:"dct:license"`
	Creator      []TypedNode       `json:"dct:creator"`
	ContactPoint ContactPoint      `json:"dcat:contactPoint"`
	Created      string            `json:"dct:created"`
	PeriodOfTime PeriodOfTime      `json:"dct:PeriodOfTime"`
	VersionNote  string            `json:"dafni_version_note"`
	Spatial      Spatial           `json:"dct:spatial"`
	GeoJSON      *geojson.Geometry `json:"geojson"`
}

// License is the dct:license block.
type License struct {
	Type  string  `json:"@type"`
	ID    string  `json:"@id"`
	Label *string `json:"rdfs:label"`
}

// TypedNode is a bare JSON-LD node carrying only its type.
type TypedNode struct {
	Type string `json:"@type"`
}

// ContactPoint is the dcat:contactPoint block.
type ContactPoint struct {
	Type  string `json:"@type"`
	Name  string `json:"vcard:fn"`
	Email string `json:"vcard:hasEmail"`
}

// PeriodOfTime is the dct:PeriodOfTime block. Both ends stay null.
type PeriodOfTime struct {
	Type      string  `json:"type"`
	Beginning *string `json:"time:hasBeginning"`
	End       *string `json:"time:hasEnd"`
}

// Spatial is the dct:spatial block.
type Spatial struct {
	Type  string  `json:"@type"`
	Label *string `json:"rdfs:label"`
}

// NewDocument fills a document for entry, stamped with created.
func NewDocument(entry Entry, bp Boilerplate, created time.Time) (*Document, error) {
	footprint, err := entry.Footprint.GeoJSON()
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: footprint for %s", entry.Name)
	}
	return &Document{
		Context:     []string{"metadata-v1"},
		Type:        "dcat:Dataset",
		Language:    bp.Language,
		Title:       entry.Title,
		Description: entry.Description,
		Keyword:     []string{bp.Keyword},
		Subject:     bp.Subject,
		License: License{
			Type: "LicenseDocument",
			ID:   bp.License,
		},
		Creator: []TypedNode{{Type: "foaf:Organization"}},
		ContactPoint: ContactPoint{
			Type:  "vcard:Organization",
			Name:  bp.ContactName,
			Email: bp.ContactEmail,
		},
		Created:      created.UTC().Format(TimeFormat),
		PeriodOfTime: PeriodOfTime{Type: "dct:PeriodOfTime"},
		VersionNote:  "created",
		Spatial:      Spatial{Type: "dct:Location"},
		GeoJSON:      footprint,
	}, nil
}

// Marshal renders the document as indented JSON.
func (d *Document) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "catalog: marshal metadata")
	}
	return append(b, '\n'), nil
}
