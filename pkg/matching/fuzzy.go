package matching

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/laurel/pkg/metrics"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/normalizers"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// FuzzyMatcher scores a bounded candidate page against the claim when exact
// matching misses. The rule set supplies the fields, comparators, weights,
// boosts and acceptance threshold.
type FuzzyMatcher struct {
	store  Store
	scorer *Scorer
	logger ectologger.Logger
	cfg    Config
}

// NewFuzzyMatcher creates a new fuzzy matcher
func NewFuzzyMatcher(store Store, logger ectologger.Logger, cfg Config) *FuzzyMatcher {
	return &FuzzyMatcher{
		store:  store,
		scorer: NewScorer(),
		logger: logger,
		cfg:    cfg,
	}
}

// Match scores candidates and returns the best one. Matched is set only when
// the boosted score clears the rule set's threshold; otherwise the best score
// and its field breakdown are returned for diagnostics with MatchType none.
func (m *FuzzyMatcher) Match(ctx context.Context, set *models.RuleSet, claim *models.VerificationClaim) (*models.MatchOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.FuzzyMatcher.Match")
	defer span.End()

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"document_type": set.DocumentType,
		"request_id":    claim.RequestID,
	})

	spec := set.Fuzzy

	// A required field missing on the claim makes every candidate
	// unmatchable, so skip the store round-trip.
	for _, field := range spec.Fields {
		if !field.Required {
			continue
		}
		if _, ok := claim.Field(field.ClaimField); !ok {
			log.WithFields(map[string]any{"claim_field": field.ClaimField}).Debug("Required fuzzy field missing on claim")
			return &models.MatchOutcome{MatchType: models.MatchTypeNone}, nil
		}
	}

	claimValues := make([]string, len(spec.Fields))
	for i, field := range spec.Fields {
		raw, _ := claim.Field(field.ClaimField)
		claimValues[i] = normalizers.Apply(raw, field.Normalizer)
	}

	candidates, err := m.candidates(ctx, set, claim)
	if err != nil {
		return nil, err
	}
	metrics.RecordFuzzyCandidates(set.DocumentType, len(candidates))
	if len(candidates) == 0 {
		return &models.MatchOutcome{MatchType: models.MatchTypeNone}, nil
	}

	var best *models.AuthoritativeRecord
	var bestScore float64
	var bestFields map[string]float64

	for i := range candidates {
		candidate := &candidates[i]
		score, fieldScores := m.scoreCandidate(spec, claim, claimValues, candidate)
		if betterCandidate(score, candidate, bestScore, best) {
			best = candidate
			bestScore = score
			bestFields = fieldScores
		}
	}

	if best == nil || bestScore <= 0 {
		return &models.MatchOutcome{MatchType: models.MatchTypeNone}, nil
	}

	if bestScore < spec.Threshold {
		log.WithFields(map[string]any{
			"best_score": bestScore,
			"threshold":  spec.Threshold,
			"candidates": len(candidates),
		}).Debug("Best fuzzy candidate below threshold")
		return &models.MatchOutcome{
			MatchType:   models.MatchTypeNone,
			Score:       bestScore,
			FieldScores: bestFields,
		}, nil
	}

	log.WithFields(map[string]any{
		"record_id":  best.ID,
		"score":      bestScore,
		"candidates": len(candidates),
	}).Debug("Accepted fuzzy match")

	return &models.MatchOutcome{
		Matched:     true,
		MatchType:   models.MatchTypeFuzzy,
		Score:       bestScore,
		Record:      best,
		FieldScores: bestFields,
	}, nil
}

// candidates fetches the scoring page, prefiltered when the rule set names a
// prefilter field. An empty filtered page falls back to an unfiltered one so
// a mistyped filter value degrades accuracy, not recall.
func (m *FuzzyMatcher) candidates(ctx context.Context, set *models.RuleSet, claim *models.VerificationClaim) ([]models.AuthoritativeRecord, error) {
	filter := m.prefilter(set, claim)

	records, err := m.store.Candidates(ctx, set.DocumentType, filter, m.cfg.CandidateCap)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 && !filter.IsZero() {
		records, err = m.store.Candidates(ctx, set.DocumentType, models.RecordFilter{}, m.cfg.CandidateCap)
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

// prefilter derives a cheap store-side filter from the prefilter claim field.
// The field must be mapped by a rule field or boost so we know which record
// column it narrows; otherwise no filter is applied.
func (m *FuzzyMatcher) prefilter(set *models.RuleSet, claim *models.VerificationClaim) models.RecordFilter {
	spec := set.Fuzzy
	if spec.PrefilterField == "" {
		return models.RecordFilter{}
	}
	raw, ok := claim.Field(spec.PrefilterField)
	if !ok {
		return models.RecordFilter{}
	}

	recordField, normalizer := "", ""
	for _, field := range spec.Fields {
		if field.ClaimField == spec.PrefilterField {
			recordField, normalizer = field.RecordField, field.Normalizer
			break
		}
	}
	if recordField == "" {
		for _, boost := range spec.Boosts {
			if boost.ClaimField == spec.PrefilterField {
				recordField, normalizer = boost.RecordField, boost.Normalizer
				break
			}
		}
	}
	if recordField == "" {
		return models.RecordFilter{}
	}

	value := normalizers.Apply(raw, normalizer)
	if value == "" {
		return models.RecordFilter{}
	}

	if recordField == "date_of_birth_or_issue" {
		year := normalizers.BirthYear(normalizers.Date(value))
		if year == "" {
			return models.RecordFilter{}
		}
		return models.RecordFilter{BirthYear: year}
	}
	if key, ok := strings.CutPrefix(recordField, "attributes."); ok {
		return models.RecordFilter{AttributeKey: key, AttributeValue: value}
	}
	return models.RecordFilter{}
}

// scoreCandidate computes the weighted field similarity plus boosts, clamped
// at 1. Fields missing on either side score 0 but keep their weight in the
// denominator.
func (m *FuzzyMatcher) scoreCandidate(spec models.FuzzySpec, claim *models.VerificationClaim, claimValues []string, record *models.AuthoritativeRecord) (float64, map[string]float64) {
	scores := make(map[string]float64, len(spec.Fields))
	weights := make(map[string]float64, len(spec.Fields))

	for i, field := range spec.Fields {
		weights[field.ClaimField] = field.Weight

		claimValue := claimValues[i]
		recordVal := normalizers.Apply(record.FieldValue(field.RecordField), field.Normalizer)
		if claimValue == "" || recordVal == "" {
			scores[field.ClaimField] = 0
			continue
		}
		scores[field.ClaimField] = m.scorer.Similarity(field.Comparator, claimValue, recordVal)
	}

	total := m.scorer.WeightedScore(scores, weights)

	for _, boost := range spec.Boosts {
		raw, ok := claim.Field(boost.ClaimField)
		if !ok {
			continue
		}
		claimValue := normalizers.Apply(raw, boost.Normalizer)
		recordVal := normalizers.Apply(record.FieldValue(boost.RecordField), boost.Normalizer)
		if claimValue != "" && claimValue == recordVal {
			total += boost.Bonus
		}
	}

	if total > 1.0 {
		total = 1.0
	}

	return total, scores
}

// betterCandidate implements the stable winner order: higher score, then
// earlier created_at, then smaller id. Ties cannot flap between runs.
func betterCandidate(score float64, record *models.AuthoritativeRecord, bestScore float64, best *models.AuthoritativeRecord) bool {
	if best == nil {
		return true
	}
	if score != bestScore {
		return score > bestScore
	}
	if !record.CreatedAt.Equal(best.CreatedAt) {
		return record.CreatedAt.Before(best.CreatedAt)
	}
	return record.ID < best.ID
}
