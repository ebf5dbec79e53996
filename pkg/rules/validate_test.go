package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/laurel/pkg/models"
)

func validRuleSet() models.RuleSet {
	return models.RuleSet{
		ID:           "rs-1",
		DocumentType: "national_id",
		DisplayName:  "National ID",
		Identifier: models.IdentifierSpec{
			Fields:  []string{"id_number"},
			Pattern: `^[0-9]{12}$`,
		},
		Fuzzy: models.FuzzySpec{
			Enabled: true,
			Fields: []models.RuleField{
				{ClaimField: "full_name", RecordField: "canonical_name", Comparator: models.ComparatorLevenshtein, Normalizer: "nname", Weight: 0.6, Required: true},
				{ClaimField: "date_of_birth", RecordField: "date_of_birth_or_issue", Comparator: models.ComparatorExact, Normalizer: "ndate", Weight: 0.4},
			},
			Boosts: []models.Boost{
				{ClaimField: "date_of_birth", RecordField: "date_of_birth_or_issue", Normalizer: "ndate", Bonus: 0.25},
			},
			Threshold:      0.62,
			PrefilterField: "date_of_birth",
		},
		IsActive: true,
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts a complete rule set", func(t *testing.T) {
		set := validRuleSet()
		require.NoError(t, Validate(&set))
	})

	t.Run("rejects missing document type", func(t *testing.T) {
		set := validRuleSet()
		set.DocumentType = ""
		assert.Error(t, Validate(&set))
	})

	t.Run("rejects empty identifier spec", func(t *testing.T) {
		set := validRuleSet()
		set.Identifier = models.IdentifierSpec{}
		assert.Error(t, Validate(&set))
	})

	t.Run("accepts masked-only identifier spec", func(t *testing.T) {
		set := validRuleSet()
		set.Identifier = models.IdentifierSpec{MaskedField: "id_masked"}
		assert.NoError(t, Validate(&set))
	})

	t.Run("rejects invalid identifier pattern", func(t *testing.T) {
		set := validRuleSet()
		set.Identifier.Pattern = "([unclosed"
		assert.Error(t, Validate(&set))
	})

	t.Run("rejects unknown checksum scheme", func(t *testing.T) {
		set := validRuleSet()
		set.Identifier.Checksum = "mod97"
		assert.Error(t, Validate(&set))
	})

	t.Run("rejects weights that do not sum to one", func(t *testing.T) {
		set := validRuleSet()
		set.Fuzzy.Fields[0].Weight = 0.7
		err := Validate(&set)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sum")
	})

	t.Run("tolerates float error in the weight sum", func(t *testing.T) {
		set := validRuleSet()
		set.Fuzzy.Fields = []models.RuleField{
			{ClaimField: "a", RecordField: "canonical_name", Weight: 0.1},
			{ClaimField: "b", RecordField: "canonical_name", Weight: 0.2},
			{ClaimField: "c", RecordField: "canonical_name", Weight: 0.3},
			{ClaimField: "d", RecordField: "canonical_name", Weight: 0.4},
		}
		assert.NoError(t, Validate(&set))
	})

	t.Run("rejects fuzzy enabled without fields", func(t *testing.T) {
		set := validRuleSet()
		set.Fuzzy.Fields = nil
		assert.Error(t, Validate(&set))
	})

	t.Run("ignores fuzzy spec when disabled", func(t *testing.T) {
		set := validRuleSet()
		set.Fuzzy = models.FuzzySpec{Enabled: false}
		assert.NoError(t, Validate(&set))
	})

	t.Run("rejects duplicate claim fields", func(t *testing.T) {
		set := validRuleSet()
		set.Fuzzy.Fields = []models.RuleField{
			{ClaimField: "full_name", RecordField: "canonical_name", Weight: 0.5},
			{ClaimField: "full_name", RecordField: "address", Weight: 0.5},
		}
		assert.Error(t, Validate(&set))
	})

	t.Run("rejects unknown comparator", func(t *testing.T) {
		set := validRuleSet()
		set.Fuzzy.Fields[0].Comparator = models.Comparator("cosine")
		assert.Error(t, Validate(&set))
	})

	t.Run("allows empty comparator as default", func(t *testing.T) {
		set := validRuleSet()
		set.Fuzzy.Fields[0].Comparator = ""
		assert.NoError(t, Validate(&set))
	})

	t.Run("rejects unknown normalizer", func(t *testing.T) {
		set := validRuleSet()
		set.Fuzzy.Fields[0].Normalizer = "nbogus"
		assert.Error(t, Validate(&set))
	})

	t.Run("rejects out of range threshold", func(t *testing.T) {
		set := validRuleSet()
		set.Fuzzy.Threshold = 1.5
		assert.Error(t, Validate(&set))
	})

	t.Run("rejects out of range boost bonus", func(t *testing.T) {
		set := validRuleSet()
		set.Fuzzy.Boosts[0].Bonus = 0
		assert.Error(t, Validate(&set))
	})

	t.Run("validates score weight overrides", func(t *testing.T) {
		set := validRuleSet()
		set.Weights = &models.ScoreWeights{DBMatch: 0.6, Format: 0.2, Extraction: 0.2}
		assert.NoError(t, Validate(&set))

		set.Weights = &models.ScoreWeights{DBMatch: 0.6, Format: 0.2, Extraction: 0.3}
		assert.Error(t, Validate(&set))
	})
}

func TestFilter(t *testing.T) {
	good := validRuleSet()
	bad := validRuleSet()
	bad.DocumentType = "passport"
	bad.Fuzzy.Fields[0].Weight = 0.9 // weights no longer sum to 1

	var dropped []string
	valid := Filter([]models.RuleSet{good, bad}, func(set *models.RuleSet, err error) {
		require.Error(t, err)
		dropped = append(dropped, set.DocumentType)
	})

	require.Len(t, valid, 1)
	assert.Equal(t, "national_id", valid[0].DocumentType)
	assert.Equal(t, []string{"passport"}, dropped)
}

func TestFormatCheck(t *testing.T) {
	t.Run("empty identifier never passes", func(t *testing.T) {
		assert.False(t, FormatCheck(models.IdentifierSpec{}, ""))
	})

	t.Run("no pattern accepts any identifier", func(t *testing.T) {
		assert.True(t, FormatCheck(models.IdentifierSpec{}, "ANY-VALUE"))
	})

	t.Run("pattern must match", func(t *testing.T) {
		spec := models.IdentifierSpec{Pattern: `^[0-9]{12}$`}
		assert.True(t, FormatCheck(spec, "123456789012"))
		assert.False(t, FormatCheck(spec, "12345"))
		assert.False(t, FormatCheck(spec, "12345678901X"))
	})

	t.Run("luhn checksum", func(t *testing.T) {
		spec := models.IdentifierSpec{Checksum: models.ChecksumLuhn}
		assert.True(t, FormatCheck(spec, "79927398713"))
		assert.False(t, FormatCheck(spec, "79927398714"))
		assert.False(t, FormatCheck(spec, "7992739871X"))
	})

	t.Run("verhoeff checksum", func(t *testing.T) {
		spec := models.IdentifierSpec{Checksum: models.ChecksumVerhoeff}
		assert.True(t, FormatCheck(spec, "2363"))
		assert.False(t, FormatCheck(spec, "2364"))
		assert.False(t, FormatCheck(spec, "23a3"))
	})

	t.Run("pattern and checksum combine", func(t *testing.T) {
		spec := models.IdentifierSpec{Pattern: `^[0-9]{4}$`, Checksum: models.ChecksumVerhoeff}
		assert.True(t, FormatCheck(spec, "2363"))
		assert.False(t, FormatCheck(spec, "23631")) // fails pattern
	})
}
