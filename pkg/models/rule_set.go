package models

import (
	"time"
)

// Comparator selects the similarity function for one rule field
type Comparator string

const (
	ComparatorExact         Comparator = "exact"
	ComparatorLevenshtein   Comparator = "levenshtein"
	ComparatorJaroWinkler   Comparator = "jaro_winkler"
	ComparatorPhonetic      Comparator = "phonetic"
	ComparatorDateProximity Comparator = "date_proximity"
)

// Check-digit schemes for IdentifierSpec.Checksum
const (
	ChecksumLuhn     = "luhn"
	ChecksumVerhoeff = "verhoeff"
)

// RuleSet is the per-document-type matching configuration. One generic
// pipeline runs every document type; the rule set is the only thing that
// differs between types.
type RuleSet struct {
	ID           string `json:"id" db:"id"`
	DocumentType string `json:"document_type" db:"document_type" validate:"required"`
	DisplayName  string `json:"display_name,omitempty" db:"display_name"`

	Identifier IdentifierSpec `json:"identifier" db:"identifier"`
	Fuzzy      FuzzySpec      `json:"fuzzy" db:"fuzzy"`

	// Weights overrides the global confidence weights for this type.
	// Nil means use the configured defaults.
	Weights *ScoreWeights `json:"weights,omitempty" db:"weights"`

	// AllowRecordUpsert lets claims flagged authoritative_source write
	// through to the registry before matching.
	AllowRecordUpsert bool `json:"allow_record_upsert" db:"allow_record_upsert"`

	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IdentifierSpec describes where the primary identifier lives on a claim and
// how its format is checked.
type IdentifierSpec struct {
	// Fields are the claim fields that may carry the raw identifier, in
	// priority order (some types split the id across parts upstream).
	Fields []string `json:"fields"`

	// DigestField names a claim field carrying a precomputed hex digest of
	// the normalized identifier. Checked before raw fields.
	DigestField string `json:"digest_field,omitempty"`

	// MaskedField names a claim field carrying the masked display form,
	// used as the last exact-match resort.
	MaskedField string `json:"masked_field,omitempty"`

	// Pattern validates the normalized identifier's format. Empty pattern
	// means the format check is satisfied by any non-empty identifier.
	Pattern string `json:"pattern,omitempty"`

	// Checksum optionally names a check-digit scheme ("luhn" or "verhoeff")
	// applied after the pattern.
	Checksum string `json:"checksum,omitempty"`
}

// FuzzySpec configures the fuzzy fallback for a document type.
type FuzzySpec struct {
	Enabled bool `json:"enabled"`

	// Fields are scored per candidate; weights must sum to 1.
	Fields []RuleField `json:"fields,omitempty"`

	// Boosts add flat bonuses on exact concordance of secondary fields.
	// The boosted score is clamped at 1.
	Boosts []Boost `json:"boosts,omitempty"`

	// Threshold is the minimum boosted score to accept a fuzzy match.
	Threshold float64 `json:"threshold,omitempty"`

	// PrefilterField names a claim field used to cheaply narrow the
	// candidate page (birth year, postal district). An empty filtered page
	// falls back to an unfiltered one.
	PrefilterField string `json:"prefilter_field,omitempty"`
}

// RuleField pairs a claim field with a record field under a comparator.
// RecordField is a top-level column name or an attributes.<key> path.
type RuleField struct {
	ClaimField  string     `json:"claim_field"`
	RecordField string     `json:"record_field"`
	Comparator  Comparator `json:"comparator"`
	Normalizer  string     `json:"normalizer,omitempty"`
	Weight      float64    `json:"weight"`

	// Required gates matching: when the claim is missing this field no
	// candidate can fuzzy-match.
	Required bool `json:"required,omitempty"`
}

// Boost adds Bonus to the weighted score when the normalized claim and
// record values are exactly equal.
type Boost struct {
	ClaimField  string  `json:"claim_field"`
	RecordField string  `json:"record_field"`
	Normalizer  string  `json:"normalizer,omitempty"`
	Bonus       float64 `json:"bonus"`
}

// ScoreWeights are the confidence blend weights. They must sum to 1.
type ScoreWeights struct {
	DBMatch    float64 `json:"db_match"`
	Format     float64 `json:"format"`
	Extraction float64 `json:"extraction"`
}

// CreateRuleSetRequest is the request body for registering a rule set.
type CreateRuleSetRequest struct {
	DocumentType      string         `json:"document_type" validate:"required"`
	DisplayName       string         `json:"display_name,omitempty"`
	Identifier        IdentifierSpec `json:"identifier" validate:"required"`
	Fuzzy             FuzzySpec      `json:"fuzzy"`
	Weights           *ScoreWeights  `json:"weights,omitempty"`
	AllowRecordUpsert bool           `json:"allow_record_upsert,omitempty"`
}

// UpdateRuleSetRequest is the request body for updating a rule set.
type UpdateRuleSetRequest struct {
	DisplayName       *string         `json:"display_name,omitempty"`
	Identifier        *IdentifierSpec `json:"identifier,omitempty"`
	Fuzzy             *FuzzySpec      `json:"fuzzy,omitempty"`
	Weights           *ScoreWeights   `json:"weights,omitempty"`
	AllowRecordUpsert *bool           `json:"allow_record_upsert,omitempty"`
	IsActive          *bool           `json:"is_active,omitempty"`
}

// RuleSetListResponse is the API response for listing rule sets
type RuleSetListResponse struct {
	Items []RuleSet `json:"items"`
	Count int       `json:"count"`
}
