package models

import (
	"strings"
	"time"
)

// AuthoritativeRecord is one row in the verified-identity registry for a
// document type. Records are read-only to the matching pipeline; writes go
// through the registry ingest path or the authoritative-claim upsert.
type AuthoritativeRecord struct {
	ID           string `json:"id" db:"id"`
	DocumentType string `json:"document_type" db:"document_type" validate:"required"`

	// LookupKey is the normalized primary identifier (whitespace stripped,
	// uppercased). IDHash is the hex SHA-256 digest of exactly that value and
	// is unique per document type.
	LookupKey string `json:"lookup_key" db:"lookup_key"`
	IDHash    string `json:"id_hash" db:"id_hash"`

	// IDMasked is the masked display form of the identifier
	// (e.g. "XXXX-XXXX-1234"). Empty for types that never mask.
	IDMasked string `json:"id_masked,omitempty" db:"id_masked"`

	CanonicalName string `json:"canonical_name" db:"canonical_name"`

	// DateOfBirthOrIssue holds the document-bound date in YYYY-MM-DD form:
	// birth date for person documents, issue/registration date otherwise.
	DateOfBirthOrIssue string `json:"date_of_birth_or_issue,omitempty" db:"date_of_birth_or_issue"`

	Address string `json:"address,omitempty" db:"address"`

	// Attributes carries type-specific secondary fields (father_name,
	// vehicle_class, gstin_state, ...) as a flat string map.
	Attributes map[string]string `json:"attributes,omitempty" db:"attributes"`

	Source string `json:"source" db:"source"`

	// Fingerprint is the change-detection digest of the record content.
	// Upserts skip the write when it is unchanged.
	Fingerprint string `json:"-" db:"fingerprint"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Rule-addressable record columns. Rule sets reference these by name in
// record_field, alongside attributes.<key> paths.
const (
	recordFieldLookupKey = "lookup_key"
	recordFieldIDMasked  = "id_masked"
	recordFieldName      = "canonical_name"
	recordFieldDate      = "date_of_birth_or_issue"
	recordFieldAddress   = "address"
	recordFieldSource    = "source"

	attributePrefix = "attributes."
)

// FieldValue resolves a rule record_field path: a known column name or an
// attributes.<key> path. Unknown paths resolve empty.
func (r *AuthoritativeRecord) FieldValue(field string) string {
	if key, ok := strings.CutPrefix(field, attributePrefix); ok {
		return r.Attributes[key]
	}
	switch field {
	case recordFieldLookupKey:
		return r.LookupKey
	case recordFieldIDMasked:
		return r.IDMasked
	case recordFieldName:
		return r.CanonicalName
	case recordFieldDate:
		return r.DateOfBirthOrIssue
	case recordFieldAddress:
		return r.Address
	case recordFieldSource:
		return r.Source
	}
	return ""
}

// SetFieldValue writes through a rule record_field path. Unknown columns are
// ignored; lookup_key and id_masked are not writable this way because they
// derive from the identifier.
func (r *AuthoritativeRecord) SetFieldValue(field, value string) {
	if key, ok := strings.CutPrefix(field, attributePrefix); ok {
		if r.Attributes == nil {
			r.Attributes = make(map[string]string)
		}
		r.Attributes[key] = value
		return
	}
	switch field {
	case recordFieldName:
		r.CanonicalName = value
	case recordFieldDate:
		r.DateOfBirthOrIssue = value
	case recordFieldAddress:
		r.Address = value
	case recordFieldSource:
		r.Source = value
	}
}

// UpsertRecordRequest is the request body for ingesting an authoritative
// record. The identifier arrives raw; normalization, hashing and masking
// happen server-side.
type UpsertRecordRequest struct {
	DocumentType       string            `json:"document_type" validate:"required"`
	IDNumber           string            `json:"id_number" validate:"required"`
	Name               string            `json:"name" validate:"required"`
	DateOfBirthOrIssue string            `json:"date_of_birth_or_issue,omitempty"`
	Address            string            `json:"address,omitempty"`
	Attributes         map[string]string `json:"attributes,omitempty"`
	Source             string            `json:"source" validate:"required"`
}

// RecordListResponse is the API response for listing authoritative records
type RecordListResponse struct {
	Items      []AuthoritativeRecord `json:"items"`
	TotalCount int                   `json:"total_count"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
}

// RecordFilter narrows a fuzzy candidate page. Zero value means no filter.
type RecordFilter struct {
	// BirthYear filters on the year prefix of date_of_birth_or_issue.
	BirthYear string

	// AttributeKey/AttributeValue filter on one attributes entry.
	AttributeKey   string
	AttributeValue string
}

// IsZero reports whether the filter narrows anything.
func (f RecordFilter) IsZero() bool {
	return f.BirthYear == "" && f.AttributeKey == ""
}
