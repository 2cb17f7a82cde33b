// Package models provides the data shapes shared by the extractors, the
// orchestrator and the persistence backends.
//
// Upstream records have no fixed schema: every domain returns its own
// field set, so a Record is an open field mapping. DomainData tags a set of
// records with the domain that produced them.
package models

import (
	"fmt"
	"strings"

	jsonpool "github.com/ajitpratap0/ghlexport/pkg/json"
)

// Record is one upstream entity as an open field mapping.
type Record map[string]interface{}

// displayFields is the lookup order used by DisplayName.
var displayFields = []string{"name", "label", "title", "firstName", "contactName", "email", "id"}

// DisplayName returns the best human-readable label for the record,
// trying name, label, title, first name (joined with last name when
// present), contact name, email and finally the identifier.
func (r Record) DisplayName() string {
	for _, field := range displayFields {
		v := r.String(field)
		if v == "" {
			continue
		}
		if field == "firstName" {
			if last := r.String("lastName"); last != "" {
				return v + " " + last
			}
		}
		return v
	}
	return ""
}

// String returns the field as a string. Numbers and booleans are
// formatted; other types yield "".
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64, int, int64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

// ID returns the record identifier.
func (r Record) ID() string {
	return r.String("id")
}

// RecordsFrom converts decoded JSON objects to records.
func RecordsFrom(items []map[string]interface{}) []Record {
	out := make([]Record, len(items))
	for i, item := range items {
		out[i] = Record(item)
	}
	return out
}

// DomainData is the payload produced by one domain. List domains carry
// Records; composite domains carry named Sections (for example a location
// with its custom fields and tags). It serialises as a JSON array or a
// JSON object respectively.
type DomainData struct {
	Domain   string
	Records  []Record
	Sections map[string]interface{}
}

// NewRecordData wraps a record list.
func NewRecordData(domain string, records []Record) DomainData {
	if records == nil {
		records = []Record{}
	}
	return DomainData{Domain: domain, Records: records}
}

// NewSectionData wraps named sections.
func NewSectionData(domain string, sections map[string]interface{}) DomainData {
	return DomainData{Domain: domain, Sections: sections}
}

// IsSections reports whether the payload is a composite object.
func (d DomainData) IsSections() bool {
	return d.Sections != nil
}

// Value returns the payload as a plain JSON-ready value.
func (d DomainData) Value() interface{} {
	if d.Sections != nil {
		return d.Sections
	}
	if d.Records == nil {
		return []Record{}
	}
	return d.Records
}

// MarshalJSON implements json.Marshaler.
func (d DomainData) MarshalJSON() ([]byte, error) {
	return jsonpool.Marshal(d.Value())
}

// Count applies the manifest count rule to the payload.
func (d DomainData) Count() int {
	return CountRecords(d.Value())
}

// CountRecords is the record count used in manifests: the length of a
// list, the length of an "opportunities" list inside an object, otherwise
// the number of keys of an object.
func CountRecords(data interface{}) int {
	switch v := data.(type) {
	case nil:
		return 0
	case []Record:
		return len(v)
	case []map[string]interface{}:
		return len(v)
	case []interface{}:
		return len(v)
	case DomainData:
		return v.Count()
	case map[string]interface{}:
		if opps, ok := v["opportunities"]; ok {
			if n, ok := listLen(opps); ok {
				return n
			}
		}
		return len(v)
	case Record:
		return len(v)
	default:
		return 0
	}
}

func listLen(v interface{}) (int, bool) {
	switch t := v.(type) {
	case []interface{}:
		return len(t), true
	case []Record:
		return len(t), true
	case []map[string]interface{}:
		return len(t), true
	default:
		return 0, false
	}
}
