package models

import (
	"time"
)

// VerificationStatus is the final disposition of a verification
type VerificationStatus string

const (
	VerificationStatusVerified     VerificationStatus = "VERIFIED"
	VerificationStatusManualReview VerificationStatus = "MANUAL_REVIEW"
	VerificationStatusRejected     VerificationStatus = "REJECTED"
)

// MatchType records how the claim was matched against the registry
type MatchType string

const (
	// MatchTypeExactHash: digest of the normalized identifier hit a record
	MatchTypeExactHash MatchType = "exact_hash"
	// MatchTypeExactMasked: only the masked display form matched
	MatchTypeExactMasked MatchType = "exact_masked"
	// MatchTypeFuzzy: best weighted-similarity candidate cleared the threshold
	MatchTypeFuzzy MatchType = "fuzzy"
	// MatchTypeNone: no record matched
	MatchTypeNone MatchType = "none"
)

// Check names used as keys of Verification.Checks.
const (
	CheckDBMatchScore         = "db_match_score"
	CheckFormat               = "format_check"
	CheckExtractionConfidence = "extraction_confidence"

	// CheckFuzzyBestScore is recorded when fuzzy matching ran but the best
	// candidate stayed below the threshold, so reviewers can see how close
	// it came.
	CheckFuzzyBestScore = "fuzzy_best_score"
)

// Reason codes accumulated by the pipeline, in stage order.
const (
	ReasonExactIDHashMatch         = "exact_id_hash_match"
	ReasonMaskedIdentifierEquality = "masked_identifier_equality"
	ReasonFuzzyMatch               = "fuzzy_match"
	ReasonFuzzyBelowThreshold      = "fuzzy_match_below_threshold"
	ReasonNoAuthoritativeMatch     = "no_authoritative_match"
	ReasonNoUsableIdentifier       = "no_usable_identifier"
	ReasonIDFormatInvalid          = "id_format_invalid"
	ReasonLowExtractionConfidence  = "low_extraction_confidence"
	ReasonRecordUpserted           = "authoritative_record_upserted"
)

// MatchOutcome is the result of the matching stages for one claim.
type MatchOutcome struct {
	Matched   bool                 `json:"matched"`
	MatchType MatchType            `json:"match_type"`
	Score     float64              `json:"score"`
	Record    *AuthoritativeRecord `json:"record,omitempty"`

	// FieldScores holds the per-field similarity contributions from fuzzy
	// matching, for diagnostics. Empty for exact matches.
	FieldScores map[string]float64 `json:"field_scores,omitempty"`
}

// Verification is the persisted outcome of one pipeline run. Rows are
// append-only except for the single review transition out of MANUAL_REVIEW.
type Verification struct {
	ID           string `json:"verification_id" db:"id"`
	RequestID    string `json:"request_id" db:"request_id"`
	DocumentType string `json:"document_type" db:"document_type"`
	SubmittedBy  string `json:"submitted_by,omitempty" db:"submitted_by"`

	// Extracted is the claim's extracted fields as received.
	Extracted map[string]string `json:"extracted" db:"extracted"`

	// Checks holds the named signals that fed the final score
	// (db_match_score, format_check, extraction_confidence, plus per-field
	// fuzzy contributions prefixed "field:").
	Checks map[string]float64 `json:"checks" db:"checks"`

	MatchedRecordID *string   `json:"matched_record_id,omitempty" db:"matched_record_id"`
	MatchType       MatchType `json:"match_type" db:"match_type"`

	FinalConfidence float64            `json:"final_confidence" db:"final_confidence"`
	Status          VerificationStatus `json:"status" db:"status"`
	Reasons         []string           `json:"reasons" db:"reasons"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ReviewedBy *string    `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
}

// ReviewRequest resolves a MANUAL_REVIEW verification.
type ReviewRequest struct {
	ReviewedBy string `json:"reviewed_by" validate:"required"`
	Note       string `json:"note,omitempty"`
}

// VerificationSummary is the list-row projection of a verification, without
// the extracted fields and check breakdown.
type VerificationSummary struct {
	ID              string             `json:"verification_id"`
	RequestID       string             `json:"request_id"`
	DocumentType    string             `json:"document_type"`
	Status          VerificationStatus `json:"status"`
	MatchType       MatchType          `json:"match_type"`
	FinalConfidence float64            `json:"final_confidence"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Summary returns the list-row projection of v.
func (v Verification) Summary() VerificationSummary {
	return VerificationSummary{
		ID:              v.ID,
		RequestID:       v.RequestID,
		DocumentType:    v.DocumentType,
		Status:          v.Status,
		MatchType:       v.MatchType,
		FinalConfidence: v.FinalConfidence,
		CreatedAt:       v.CreatedAt,
	}
}

// VerificationListResponse is the API response for listing verifications
type VerificationListResponse struct {
	Items []VerificationSummary `json:"items"`
	Count int                   `json:"count"`
}
