package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/laurel/pkg/models"
)

func TestExactMatcher(t *testing.T) {
	ctx := context.Background()

	newMatcher := func(records ...models.AuthoritativeRecord) (*ExactMatcher, *fakeStore) {
		store := &fakeStore{records: records}
		return NewExactMatcher(store, testLogger()), store
	}

	t.Run("matches on precomputed digest", func(t *testing.T) {
		record := sharmaRecord()
		matcher, _ := newMatcher(record)

		claim := &models.VerificationClaim{
			DocumentType: "national_id",
			RequestID:    "req-1",
			Extracted:    map[string]string{"id_hash": record.IDHash},
		}

		outcome, err := matcher.Match(ctx, testRuleSet(), claim)
		require.NoError(t, err)
		assert.True(t, outcome.Matched)
		assert.Equal(t, models.MatchTypeExactHash, outcome.MatchType)
		assert.Equal(t, 1.0, outcome.Score)
		require.NotNil(t, outcome.Record)
		assert.Equal(t, record.ID, outcome.Record.ID)
	})

	t.Run("digest of raw identifier survives formatting noise", func(t *testing.T) {
		matcher, _ := newMatcher(sharmaRecord())

		claim := &models.VerificationClaim{
			DocumentType: "national_id",
			RequestID:    "req-2",
			Extracted:    map[string]string{"id_number": " 1234-5678-9012 "},
		}

		// Identifier normalization strips whitespace but keeps hyphens, so
		// this variant only matches when the raw digits were submitted.
		outcome, err := matcher.Match(ctx, testRuleSet(), claim)
		require.NoError(t, err)
		assert.False(t, outcome.Matched)

		claim.Extracted["id_number"] = " 1234 5678 9012 "
		outcome, err = matcher.Match(ctx, testRuleSet(), claim)
		require.NoError(t, err)
		assert.True(t, outcome.Matched)
		assert.Equal(t, models.MatchTypeExactHash, outcome.MatchType)
	})

	t.Run("masked equality is the last resort", func(t *testing.T) {
		matcher, _ := newMatcher(sharmaRecord())

		claim := &models.VerificationClaim{
			DocumentType: "national_id",
			RequestID:    "req-3",
			Extracted:    map[string]string{"id_masked": "xxxxxxxx9012"},
		}

		outcome, err := matcher.Match(ctx, testRuleSet(), claim)
		require.NoError(t, err)
		assert.True(t, outcome.Matched)
		assert.Equal(t, models.MatchTypeExactMasked, outcome.MatchType)
		assert.Equal(t, 1.0, outcome.Score)
	})

	t.Run("digest hit wins over masked", func(t *testing.T) {
		digestTarget := sharmaRecord()
		maskedTarget := sharmaRecord()
		maskedTarget.ID = "rec-other"
		maskedTarget.IDHash = "unreachable"
		matcher, _ := newMatcher(digestTarget, maskedTarget)

		claim := &models.VerificationClaim{
			DocumentType: "national_id",
			RequestID:    "req-4",
			Extracted: map[string]string{
				"id_number": "123456789012",
				"id_masked": "XXXXXXXX9012",
			},
		}

		outcome, err := matcher.Match(ctx, testRuleSet(), claim)
		require.NoError(t, err)
		require.True(t, outcome.Matched)
		assert.Equal(t, models.MatchTypeExactHash, outcome.MatchType)
		assert.Equal(t, digestTarget.ID, outcome.Record.ID)
	})

	t.Run("no usable identifier returns none without error", func(t *testing.T) {
		matcher, _ := newMatcher(sharmaRecord())

		claim := &models.VerificationClaim{
			DocumentType: "national_id",
			RequestID:    "req-5",
			Extracted:    map[string]string{"full_name": "Priya Sharma"},
		}

		outcome, err := matcher.Match(ctx, testRuleSet(), claim)
		require.NoError(t, err)
		assert.False(t, outcome.Matched)
		assert.Equal(t, models.MatchTypeNone, outcome.MatchType)
		assert.Zero(t, outcome.Score)
	})

	t.Run("wrong document type misses", func(t *testing.T) {
		matcher, _ := newMatcher(sharmaRecord())

		set := testRuleSet()
		set.DocumentType = "passport"
		claim := &models.VerificationClaim{
			DocumentType: "passport",
			RequestID:    "req-6",
			Extracted:    map[string]string{"id_number": "123456789012"},
		}

		outcome, err := matcher.Match(ctx, set, claim)
		require.NoError(t, err)
		assert.False(t, outcome.Matched)
	})
}
