package pipeline

import (
	"github.com/Ramsey-B/laurel/pkg/fingerprint"
	"github.com/Ramsey-B/laurel/pkg/matching"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/normalizers"
)

// fallbackSource labels upserted records when the claim names no principal.
const fallbackSource = "authoritative_claim"

// buildRecord assembles the registry row an authoritative claim writes
// through. Returns nil when the claim carries no usable raw identifier;
// records are keyed by identifier and an unkeyed row could never be found
// again.
func buildRecord(set *models.RuleSet, claim *models.VerificationClaim) *models.AuthoritativeRecord {
	id := matching.NormalizedIdentifier(set, claim)
	if id == "" {
		return nil
	}

	record := &models.AuthoritativeRecord{
		DocumentType: set.DocumentType,
		LookupKey:    id,
		IDHash:       fingerprint.Identifier(id),
	}

	if set.Identifier.MaskedField != "" {
		if masked, ok := claim.Field(set.Identifier.MaskedField); ok {
			record.IDMasked = normalizers.Identifier(masked)
		}
	}
	if record.IDMasked == "" {
		record.IDMasked = normalizers.MaskIdentifier(id)
	}

	// The rule set's field mappings double as the write-through schema: the
	// same claim fields the matcher scores are the ones worth persisting.
	for _, field := range set.Fuzzy.Fields {
		if raw, ok := claim.Field(field.ClaimField); ok {
			record.SetFieldValue(field.RecordField, normalizers.Apply(raw, field.Normalizer))
		}
	}
	for _, boost := range set.Fuzzy.Boosts {
		if record.FieldValue(boost.RecordField) != "" {
			continue
		}
		if raw, ok := claim.Field(boost.ClaimField); ok {
			record.SetFieldValue(boost.RecordField, normalizers.Apply(raw, boost.Normalizer))
		}
	}

	if record.DateOfBirthOrIssue != "" {
		record.DateOfBirthOrIssue = normalizers.Date(record.DateOfBirthOrIssue)
	}

	record.Source = claim.SubmittedBy
	if record.Source == "" {
		record.Source = fallbackSource
	}

	return record
}
