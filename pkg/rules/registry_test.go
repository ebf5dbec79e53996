package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/laurel/pkg/models"
)

func TestRegistry(t *testing.T) {
	t.Run("load keeps only active sets", func(t *testing.T) {
		r := NewRegistry()
		active := validRuleSet()
		inactive := validRuleSet()
		inactive.DocumentType = "passport"
		inactive.IsActive = false

		r.Load([]models.RuleSet{active, inactive})

		require.Equal(t, 1, r.Count())
		got, ok := r.Get("national_id")
		require.True(t, ok)
		assert.Equal(t, "national_id", got.DocumentType)

		_, ok = r.Get("passport")
		assert.False(t, ok)
	})

	t.Run("load replaces previous contents", func(t *testing.T) {
		r := NewRegistry()
		first := validRuleSet()
		r.Load([]models.RuleSet{first})

		second := validRuleSet()
		second.DocumentType = "drivers_license"
		r.Load([]models.RuleSet{second})

		_, ok := r.Get("national_id")
		assert.False(t, ok)
		_, ok = r.Get("drivers_license")
		assert.True(t, ok)
	})

	t.Run("update upserts and deactivation removes", func(t *testing.T) {
		r := NewRegistry()
		set := validRuleSet()
		r.Update(&set)
		assert.Equal(t, 1, r.Count())

		deactivated := validRuleSet()
		deactivated.IsActive = false
		r.Update(&deactivated)

		_, ok := r.Get("national_id")
		assert.False(t, ok)
		assert.Equal(t, 0, r.Count())
	})

	t.Run("remove drops a type", func(t *testing.T) {
		r := NewRegistry()
		set := validRuleSet()
		r.Update(&set)
		r.Remove("national_id")
		assert.Equal(t, 0, r.Count())
	})

	t.Run("types are sorted", func(t *testing.T) {
		r := NewRegistry()
		a := validRuleSet()
		a.DocumentType = "passport"
		b := validRuleSet()
		b.DocumentType = "birth_certificate"
		r.Load([]models.RuleSet{a, b})

		assert.Equal(t, []string{"birth_certificate", "passport"}, r.Types())
	})

	t.Run("unknown type misses", func(t *testing.T) {
		r := NewRegistry()
		_, ok := r.Get("unknown")
		assert.False(t, ok)
	})
}
