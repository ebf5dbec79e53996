package matching

import (
	"context"

	"github.com/Ramsey-B/laurel/pkg/models"
)

// Store is the registry surface the matchers read. A clean miss returns
// (nil, nil); a non-nil error means the store itself failed and the caller
// must abort rather than treat the claim as unmatched.
type Store interface {
	// FindByIDHash looks up a record by the digest of its normalized
	// identifier.
	FindByIDHash(ctx context.Context, documentType, idHash string) (*models.AuthoritativeRecord, error)

	// FindByMasked looks up a record by its masked identifier form.
	FindByMasked(ctx context.Context, documentType, masked string) (*models.AuthoritativeRecord, error)

	// Candidates returns up to limit records of a document type for fuzzy
	// scoring. A zero filter returns an unfiltered page.
	Candidates(ctx context.Context, documentType string, filter models.RecordFilter, limit int) ([]models.AuthoritativeRecord, error)
}
