package matching

import (
	"testing"

	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	s := NewScorer()

	t.Run("identical strings score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, s.Levenshtein("priya sharma", "priya sharma"))
	})

	t.Run("classic kitten sitting", func(t *testing.T) {
		// distance 3 over max length 7
		assert.InDelta(t, 1.0-3.0/7.0, s.Levenshtein("kitten", "sitting"), 1e-9)
	})

	t.Run("single substitution", func(t *testing.T) {
		assert.InDelta(t, 0.75, s.Levenshtein("jose", "josa"), 1e-9)
	})

	t.Run("both empty score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, s.Levenshtein("", ""))
	})

	t.Run("one empty scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, s.Levenshtein("abc", ""))
		assert.Equal(t, 0.0, s.Levenshtein("", "abc"))
	})

	t.Run("measures runes not bytes", func(t *testing.T) {
		// one rune substitution in a 4-rune string
		assert.InDelta(t, 0.75, s.Levenshtein("josé", "jose"), 1e-9)
	})
}

func TestJaroWinkler(t *testing.T) {
	s := NewScorer()

	t.Run("identical strings score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, s.JaroWinkler("martha", "martha"))
	})

	t.Run("transposed pair with common prefix", func(t *testing.T) {
		assert.InDelta(t, 0.9611, s.JaroWinkler("martha", "marhta"), 0.001)
	})

	t.Run("empty versus non-empty scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, s.JaroWinkler("", "martha"))
	})

	t.Run("prefix boost favors shared starts", func(t *testing.T) {
		assert.Greater(t, s.JaroWinkler("sharma", "sharmaa"), s.Jaro("sharma", "sharmaa"))
	})
}

func TestPhonetic(t *testing.T) {
	s := NewScorer()

	t.Run("soundex equivalent surnames", func(t *testing.T) {
		assert.Equal(t, "R163", s.Soundex("Robert"))
		assert.Equal(t, 1.0, s.SoundexMatch("robert", "rupert"))
	})

	t.Run("metaphone equivalent spellings", func(t *testing.T) {
		assert.Equal(t, 1.0, s.MetaphoneMatch("smith", "smyth"))
	})

	t.Run("different names do not collide", func(t *testing.T) {
		assert.Equal(t, 0.0, s.SoundexMatch("sharma", "okafor"))
	})

	t.Run("empty input scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, s.SoundexMatch("", "robert"))
		assert.Equal(t, 0.0, s.MetaphoneMatch("smith", ""))
	})
}

func TestDateProximity(t *testing.T) {
	s := NewScorer()

	t.Run("same day scores 1", func(t *testing.T) {
		assert.Equal(t, 1.0, s.DateProximity("1990-04-12", "1990-04-12", 365))
	})

	t.Run("decays linearly inside the window", func(t *testing.T) {
		got := s.DateProximity("1990-01-01", "1990-01-11", 100)
		assert.InDelta(t, 0.9, got, 1e-9)
	})

	t.Run("outside the window scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, s.DateProximity("1990-01-01", "1995-01-01", 365))
	})

	t.Run("unparseable date scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, s.DateProximity("12-04-1990", "1990-04-12", 365))
		assert.Equal(t, 0.0, s.DateProximity("", "1990-04-12", 365))
	})
}

func TestSimilarity(t *testing.T) {
	s := NewScorer()

	t.Run("exact comparator ignores case", func(t *testing.T) {
		assert.Equal(t, 1.0, s.Similarity(models.ComparatorExact, "AB12", "ab12"))
		assert.Equal(t, 0.0, s.Similarity(models.ComparatorExact, "AB12", "AB13"))
	})

	t.Run("jaro winkler comparator", func(t *testing.T) {
		assert.InDelta(t, 0.9611, s.Similarity(models.ComparatorJaroWinkler, "martha", "marhta"), 0.001)
	})

	t.Run("phonetic comparator takes the better of soundex and metaphone", func(t *testing.T) {
		assert.Equal(t, 1.0, s.Similarity(models.ComparatorPhonetic, "smith", "smyth"))
	})

	t.Run("date proximity comparator uses the default window", func(t *testing.T) {
		assert.Equal(t, 1.0, s.Similarity(models.ComparatorDateProximity, "1990-04-12", "1990-04-12"))
		assert.Equal(t, 0.0, s.Similarity(models.ComparatorDateProximity, "1990-04-12", "1996-04-12"))
	})

	t.Run("unknown comparator falls back to levenshtein", func(t *testing.T) {
		assert.InDelta(t, 1.0-3.0/7.0, s.Similarity(models.Comparator("nope"), "kitten", "sitting"), 1e-9)
	})
}

func TestWeightedScore(t *testing.T) {
	s := NewScorer()

	t.Run("weights are applied", func(t *testing.T) {
		scores := map[string]float64{"name": 1.0, "dob": 0.5}
		weights := map[string]float64{"name": 0.6, "dob": 0.4}
		assert.InDelta(t, 0.8, s.WeightedScore(scores, weights), 1e-9)
	})

	t.Run("missing weight defaults to 1", func(t *testing.T) {
		scores := map[string]float64{"name": 1.0, "dob": 0.0}
		assert.InDelta(t, 0.5, s.WeightedScore(scores, nil), 1e-9)
	})

	t.Run("empty scores map scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, s.WeightedScore(nil, nil))
	})
}
