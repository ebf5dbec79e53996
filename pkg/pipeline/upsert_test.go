package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/laurel/pkg/models"
)

func TestBuildRecord(t *testing.T) {
	t.Run("prefers the claim's masked form over deriving one", func(t *testing.T) {
		set := nationalIDRuleSet()
		record := buildRecord(set, &models.VerificationClaim{
			DocumentType: "national_id",
			RequestID:    "r",
			Extracted: map[string]string{
				"id_number": "123456789012",
				"id_masked": "xxxx-xxxx-9012",
			},
		})
		require.NotNil(t, record)
		assert.Equal(t, "XXXX-XXXX-9012", record.IDMasked)
	})

	t.Run("derives the mask when the claim has none", func(t *testing.T) {
		set := nationalIDRuleSet()
		record := buildRecord(set, &models.VerificationClaim{
			DocumentType: "national_id",
			RequestID:    "r",
			Extracted:    map[string]string{"id_number": "123456789012"},
		})
		require.NotNil(t, record)
		assert.Equal(t, "XXXXXXXX9012", record.IDMasked)
	})

	t.Run("nil without a raw identifier", func(t *testing.T) {
		set := nationalIDRuleSet()
		record := buildRecord(set, &models.VerificationClaim{
			DocumentType: "national_id",
			RequestID:    "r",
			Extracted:    map[string]string{"id_masked": "XXXXXXXX9012", "full_name": "Priya Sharma"},
		})
		assert.Nil(t, record)
	})

	t.Run("defaults the source", func(t *testing.T) {
		set := nationalIDRuleSet()
		record := buildRecord(set, &models.VerificationClaim{
			DocumentType: "national_id",
			RequestID:    "r",
			Extracted:    map[string]string{"id_number": "123456789012"},
		})
		require.NotNil(t, record)
		assert.Equal(t, "authoritative_claim", record.Source)
	})
}
