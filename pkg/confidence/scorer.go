// Package confidence blends the pipeline's check signals into one score and
// maps it to a disposition.
package confidence

import (
	"github.com/Ramsey-B/laurel/pkg/models"
)

// Config holds the global blend weights and disposition cutoffs.
type Config struct {
	Weights         models.ScoreWeights
	VerifyThreshold float64 // final >= this is VERIFIED (default: 0.85)
	ReviewThreshold float64 // final >= this is MANUAL_REVIEW (default: 0.6)
}

// DefaultConfig returns the standard blend: the database match carries half
// the weight, format and extraction a quarter each.
func DefaultConfig() Config {
	return Config{
		Weights:         models.ScoreWeights{DBMatch: 0.5, Format: 0.25, Extraction: 0.25},
		VerifyThreshold: 0.85,
		ReviewThreshold: 0.6,
	}
}

// Scorer computes final confidence scores. Rule sets may override the blend
// weights per document type; the disposition cutoffs are global.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer, filling unset config fields from the defaults
func NewScorer(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.Weights == (models.ScoreWeights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.VerifyThreshold == 0 {
		cfg.VerifyThreshold = def.VerifyThreshold
	}
	if cfg.ReviewThreshold == 0 {
		cfg.ReviewThreshold = def.ReviewThreshold
	}
	return &Scorer{cfg: cfg}
}

// Final blends the three checks under the rule set's weights (or the global
// defaults). Each component lives in [0,1], weights sum to 1, so the result
// is in [0,1] and raising any single check can only raise it.
func (s *Scorer) Final(set *models.RuleSet, dbMatchScore float64, formatValid bool, extraction float64) float64 {
	weights := s.cfg.Weights
	if set != nil && set.Weights != nil {
		weights = *set.Weights
	}

	format := 0.0
	if formatValid {
		format = 1.0
	}

	return weights.DBMatch*clamp01(dbMatchScore) +
		weights.Format*format +
		weights.Extraction*clamp01(extraction)
}

// Disposition maps a final score to its verification status
func (s *Scorer) Disposition(final float64) models.VerificationStatus {
	switch {
	case final >= s.cfg.VerifyThreshold:
		return models.VerificationStatusVerified
	case final >= s.cfg.ReviewThreshold:
		return models.VerificationStatusManualReview
	default:
		return models.VerificationStatusRejected
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
