package record

import (
	"github.com/Ramsey-B/laurel/pkg/fingerprint"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/normalizers"
)

// FromRequest normalizes an ingest request into the stored record shape.
// Attribute values normalize like names so rule-set boosts comparing
// normalized claim values line up.
func FromRequest(req *models.UpsertRecordRequest) *models.AuthoritativeRecord {
	id := normalizers.Identifier(req.IDNumber)

	rec := &models.AuthoritativeRecord{
		DocumentType:       req.DocumentType,
		LookupKey:          id,
		IDHash:             fingerprint.Identifier(id),
		IDMasked:           normalizers.MaskIdentifier(id),
		CanonicalName:      normalizers.Name(req.Name),
		DateOfBirthOrIssue: normalizers.Date(req.DateOfBirthOrIssue),
		Address:            normalizers.Address(req.Address),
		Source:             req.Source,
	}

	if len(req.Attributes) > 0 {
		rec.Attributes = make(map[string]string, len(req.Attributes))
		for key, value := range req.Attributes {
			rec.Attributes[key] = normalizers.Name(value)
		}
	}

	return rec
}
