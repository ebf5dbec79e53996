package matching

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/laurel/pkg/fingerprint"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/normalizers"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// ExactMatcher resolves claims against the registry by identifier digest
// first, then by masked-form equality. First hit wins at score 1.0.
type ExactMatcher struct {
	store  Store
	logger ectologger.Logger
}

// NewExactMatcher creates a new exact matcher
func NewExactMatcher(store Store, logger ectologger.Logger) *ExactMatcher {
	return &ExactMatcher{
		store:  store,
		logger: logger,
	}
}

// Match runs the exact stages in precedence order: precomputed digest, digest
// of the normalized raw identifier, masked equality. A claim with no usable
// identifier field skips the digest stages. A miss is not an error.
func (m *ExactMatcher) Match(ctx context.Context, set *models.RuleSet, claim *models.VerificationClaim) (*models.MatchOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.ExactMatcher.Match")
	defer span.End()

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"document_type": set.DocumentType,
		"request_id":    claim.RequestID,
	})

	if set.Identifier.DigestField != "" {
		if digest, ok := claim.Field(set.Identifier.DigestField); ok {
			digest = strings.ToLower(strings.TrimSpace(digest))
			record, err := m.store.FindByIDHash(ctx, set.DocumentType, digest)
			if err != nil {
				return nil, err
			}
			if record != nil {
				log.Debug("Matched on precomputed identifier digest")
				return exactOutcome(models.MatchTypeExactHash, record), nil
			}
		}
	}

	if id := NormalizedIdentifier(set, claim); id != "" {
		record, err := m.store.FindByIDHash(ctx, set.DocumentType, fingerprint.Identifier(id))
		if err != nil {
			return nil, err
		}
		if record != nil {
			log.Debug("Matched on normalized identifier digest")
			return exactOutcome(models.MatchTypeExactHash, record), nil
		}
	}

	if set.Identifier.MaskedField != "" {
		if masked, ok := claim.Field(set.Identifier.MaskedField); ok {
			record, err := m.store.FindByMasked(ctx, set.DocumentType, normalizers.Identifier(masked))
			if err != nil {
				return nil, err
			}
			if record != nil {
				log.Debug("Matched on masked identifier form")
				return exactOutcome(models.MatchTypeExactMasked, record), nil
			}
		}
	}

	return &models.MatchOutcome{MatchType: models.MatchTypeNone}, nil
}

func exactOutcome(matchType models.MatchType, record *models.AuthoritativeRecord) *models.MatchOutcome {
	return &models.MatchOutcome{
		Matched:   true,
		MatchType: matchType,
		Score:     1.0,
		Record:    record,
	}
}

// NormalizedIdentifier returns the first identifier field present on the
// claim, normalized. The same value feeds the digest lookup and the format
// check, so the two can never disagree about which field was used.
func NormalizedIdentifier(set *models.RuleSet, claim *models.VerificationClaim) string {
	for _, field := range set.Identifier.Fields {
		if raw, ok := claim.Field(field); ok {
			if id := normalizers.Identifier(raw); id != "" {
				return id
			}
		}
	}
	return ""
}
