package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/laurel/pkg/models"
)

func TestFinal(t *testing.T) {
	s := NewScorer(Config{})

	t.Run("blends with default weights", func(t *testing.T) {
		got := s.Final(nil, 1.0, true, 0.9)
		assert.InDelta(t, 0.5+0.25+0.225, got, 1e-9)
	})

	t.Run("no match zeroes the db component", func(t *testing.T) {
		got := s.Final(nil, 0, true, 0.9)
		assert.InDelta(t, 0.475, got, 1e-9)
	})

	t.Run("invalid format zeroes the format component", func(t *testing.T) {
		got := s.Final(nil, 1.0, false, 1.0)
		assert.InDelta(t, 0.75, got, 1e-9)
	})

	t.Run("extraction confidence is clamped", func(t *testing.T) {
		assert.InDelta(t, s.Final(nil, 1.0, true, 1.0), s.Final(nil, 1.0, true, 1.7), 1e-9)
		assert.InDelta(t, s.Final(nil, 1.0, true, 0.0), s.Final(nil, 1.0, true, -0.3), 1e-9)
	})

	t.Run("rule set weights override the defaults", func(t *testing.T) {
		set := &models.RuleSet{
			DocumentType: "passport",
			Weights:      &models.ScoreWeights{DBMatch: 0.8, Format: 0.1, Extraction: 0.1},
		}
		got := s.Final(set, 1.0, false, 0.5)
		assert.InDelta(t, 0.8+0+0.05, got, 1e-9)
	})

	t.Run("raising any check never lowers the score", func(t *testing.T) {
		steps := []float64{0, 0.25, 0.5, 0.75, 1}
		for _, db := range steps {
			for _, ocr := range steps {
				assert.GreaterOrEqual(t, s.Final(nil, db, true, ocr), s.Final(nil, db, false, ocr))
				if db < 1 {
					assert.GreaterOrEqual(t, s.Final(nil, db+0.25, true, ocr), s.Final(nil, db, true, ocr))
				}
				if ocr < 1 {
					assert.GreaterOrEqual(t, s.Final(nil, db, true, ocr+0.25), s.Final(nil, db, true, ocr))
				}
			}
		}
	})
}

func TestDisposition(t *testing.T) {
	s := NewScorer(Config{})

	t.Run("thresholds are inclusive", func(t *testing.T) {
		assert.Equal(t, models.VerificationStatusVerified, s.Disposition(0.85))
		assert.Equal(t, models.VerificationStatusManualReview, s.Disposition(0.6))
	})

	t.Run("bands map to statuses", func(t *testing.T) {
		assert.Equal(t, models.VerificationStatusVerified, s.Disposition(0.97))
		assert.Equal(t, models.VerificationStatusManualReview, s.Disposition(0.7))
		assert.Equal(t, models.VerificationStatusRejected, s.Disposition(0.59))
		assert.Equal(t, models.VerificationStatusRejected, s.Disposition(0))
	})

	t.Run("custom cutoffs", func(t *testing.T) {
		custom := NewScorer(Config{VerifyThreshold: 0.9, ReviewThreshold: 0.5})
		assert.Equal(t, models.VerificationStatusManualReview, custom.Disposition(0.85))
		assert.Equal(t, models.VerificationStatusManualReview, custom.Disposition(0.5))
		assert.Equal(t, models.VerificationStatusRejected, custom.Disposition(0.49))
	})
}
