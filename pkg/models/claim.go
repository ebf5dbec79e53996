package models

// VerificationClaim is one verification request: the fields an upstream
// extraction service pulled off a submitted document, plus routing metadata.
// Claims are processed statelessly; two identical claims are two requests.
type VerificationClaim struct {
	DocumentType string `json:"document_type" validate:"required"`

	// RequestID is the caller's correlation id. It is stored verbatim and
	// never deduplicated on.
	RequestID string `json:"request_id" validate:"required"`

	// SubmittedBy is an opaque principal string from the caller.
	SubmittedBy string `json:"submitted_by,omitempty"`

	// Extracted holds the document fields by name (id_number, name,
	// date_of_birth, address_line, ...). Field names vary by document type;
	// the rule set for the type decides which ones matter.
	Extracted map[string]string `json:"extracted" validate:"required"`

	// ExtractionConfidence is the upstream OCR confidence in [0,1].
	// Nil means the extractor did not report one and scores as 0.
	ExtractionConfidence *float64 `json:"extraction_confidence,omitempty"`

	// AuthoritativeSource marks claims from source systems trusted to seed
	// the registry. Only honored for document types configured with
	// allow_record_upsert.
	AuthoritativeSource bool `json:"authoritative_source,omitempty"`
}

// Field returns the named extracted field. A missing key and an empty value
// are the same thing to the pipeline.
func (c VerificationClaim) Field(name string) (string, bool) {
	if c.Extracted == nil {
		return "", false
	}
	v, ok := c.Extracted[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ConfidenceOrZero returns the reported extraction confidence, 0 when absent.
func (c VerificationClaim) ConfidenceOrZero() float64 {
	if c.ExtractionConfidence == nil {
		return 0
	}
	return *c.ExtractionConfidence
}
