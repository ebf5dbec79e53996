package rules

import (
	"math"
	"regexp"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/normalizers"
)

// weightEpsilon is the tolerance when checking that weights sum to 1
const weightEpsilon = 1e-9

var knownComparators = map[models.Comparator]bool{
	models.ComparatorExact:         true,
	models.ComparatorLevenshtein:   true,
	models.ComparatorJaroWinkler:   true,
	models.ComparatorPhonetic:      true,
	models.ComparatorDateProximity: true,
}

// Validate checks a rule set before it enters the registry. Invalid rule
// sets are rejected at load and at the admin routes, never at claim time.
func Validate(set *models.RuleSet) error {
	if set.DocumentType == "" {
		return errors.New("rule set document_type is required")
	}

	if err := validateIdentifier(set.Identifier); err != nil {
		return errors.Wrapf(err, "rule set %s identifier spec", set.DocumentType)
	}

	if set.Fuzzy.Enabled {
		if err := validateFuzzy(set.Fuzzy); err != nil {
			return errors.Wrapf(err, "rule set %s fuzzy spec", set.DocumentType)
		}
	}

	if set.Weights != nil {
		if err := validateWeights(*set.Weights); err != nil {
			return errors.Wrapf(err, "rule set %s score weights", set.DocumentType)
		}
	}

	return nil
}

func validateIdentifier(spec models.IdentifierSpec) error {
	if len(spec.Fields) == 0 && spec.DigestField == "" && spec.MaskedField == "" {
		return errors.New("identifier spec is empty")
	}
	for _, field := range spec.Fields {
		if field == "" {
			return errors.New("identifier fields must be non-empty")
		}
	}
	if spec.Pattern != "" {
		if _, err := regexp.Compile(spec.Pattern); err != nil {
			return errors.Wrap(err, "invalid identifier pattern")
		}
	}
	switch spec.Checksum {
	case "", models.ChecksumLuhn, models.ChecksumVerhoeff:
	default:
		return errors.Errorf("unknown checksum scheme %q", spec.Checksum)
	}
	return nil
}

func validateFuzzy(spec models.FuzzySpec) error {
	if len(spec.Fields) == 0 {
		return errors.New("fuzzy matching enabled without fields")
	}
	if spec.Threshold < 0 || spec.Threshold > 1 {
		return errors.Errorf("threshold %v outside [0,1]", spec.Threshold)
	}

	var weightSum float64
	seen := make(map[string]bool, len(spec.Fields))
	for _, field := range spec.Fields {
		if field.ClaimField == "" || field.RecordField == "" {
			return errors.New("fuzzy field requires claim_field and record_field")
		}
		if seen[field.ClaimField] {
			return errors.Errorf("fuzzy field %s listed twice", field.ClaimField)
		}
		seen[field.ClaimField] = true
		if field.Weight <= 0 || field.Weight > 1 {
			return errors.Errorf("fuzzy field %s weight %v outside (0,1]", field.ClaimField, field.Weight)
		}
		if field.Comparator != "" && !knownComparators[field.Comparator] {
			return errors.Errorf("fuzzy field %s has unknown comparator %q", field.ClaimField, field.Comparator)
		}
		if field.Normalizer != "" {
			if _, ok := normalizers.Get(field.Normalizer); !ok {
				return errors.Errorf("fuzzy field %s has unknown normalizer %q", field.ClaimField, field.Normalizer)
			}
		}
		weightSum += field.Weight
	}

	if math.Abs(weightSum-1.0) > weightEpsilon {
		return errors.Errorf("fuzzy field weights sum to %v, want 1", weightSum)
	}

	for _, boost := range spec.Boosts {
		if boost.ClaimField == "" || boost.RecordField == "" {
			return errors.New("boost requires claim_field and record_field")
		}
		if boost.Bonus <= 0 || boost.Bonus > 1 {
			return errors.Errorf("boost %s bonus %v outside (0,1]", boost.ClaimField, boost.Bonus)
		}
		if boost.Normalizer != "" {
			if _, ok := normalizers.Get(boost.Normalizer); !ok {
				return errors.Errorf("boost %s has unknown normalizer %q", boost.ClaimField, boost.Normalizer)
			}
		}
	}

	return nil
}

// Filter returns the sets that pass Validate. onInvalid is called for each
// rejected set so loaders can log what they dropped; a hand-edited row never
// takes the whole registry down.
func Filter(sets []models.RuleSet, onInvalid func(set *models.RuleSet, err error)) []models.RuleSet {
	valid := make([]models.RuleSet, 0, len(sets))
	for i := range sets {
		if err := Validate(&sets[i]); err != nil {
			if onInvalid != nil {
				onInvalid(&sets[i], err)
			}
			continue
		}
		valid = append(valid, sets[i])
	}
	return valid
}

func validateWeights(w models.ScoreWeights) error {
	for _, v := range []float64{w.DBMatch, w.Format, w.Extraction} {
		if v < 0 || v > 1 {
			return errors.Errorf("weight %v outside [0,1]", v)
		}
	}
	if sum := w.DBMatch + w.Format + w.Extraction; math.Abs(sum-1.0) > weightEpsilon {
		return errors.Errorf("weights sum to %v, want 1", sum)
	}
	return nil
}
