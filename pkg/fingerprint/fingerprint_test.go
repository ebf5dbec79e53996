package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/normalizers"
)

func TestIdentifier(t *testing.T) {
	t.Run("equal normalized identifiers produce equal digests", func(t *testing.T) {
		a := Identifier(normalizers.Identifier("ABCD 1234 9999"))
		b := Identifier(normalizers.Identifier("abcd12349999"))
		assert.Equal(t, a, b)
	})

	t.Run("different identifiers produce different digests", func(t *testing.T) {
		a := Identifier("ABCD12349999")
		b := Identifier("ABCD12349998")
		assert.NotEqual(t, a, b)
	})

	t.Run("digest is hex encoded sha256", func(t *testing.T) {
		d := Identifier("X")
		assert.Len(t, d, 64)
		// sha256("X")
		assert.Equal(t, "4b68ab3847feda7d6c62c1fbcbeebfa35eab7351ed5e78f4ddadea5df64b8015", d)
	})
}

func TestRecord(t *testing.T) {
	rec := models.AuthoritativeRecord{
		ID:                 "row-1",
		DocumentType:       "national_id",
		LookupKey:          "ABCD12349999",
		IDHash:             Identifier("ABCD12349999"),
		IDMasked:           "XXXX-XXXX-9999",
		CanonicalName:      "ramesh kumar",
		DateOfBirthOrIssue: "1990-01-15",
		Address:            "42 mg road bengaluru",
		Attributes:         map[string]string{"gender": "M", "district": "bengaluru"},
		Source:             "registry_sync",
	}

	t.Run("stable across attribute map ordering", func(t *testing.T) {
		other := rec
		other.Attributes = map[string]string{"district": "bengaluru", "gender": "M"}
		assert.Equal(t, Record(rec), Record(other))
	})

	t.Run("ignores row id and timestamps", func(t *testing.T) {
		other := rec
		other.ID = "row-2"
		assert.Equal(t, Record(rec), Record(other))
	})

	t.Run("content change changes fingerprint", func(t *testing.T) {
		other := rec
		other.CanonicalName = "ramesh k"
		assert.True(t, HasChanged(Record(rec), Record(other)))
	})

	t.Run("empty attributes and nil attributes are equivalent", func(t *testing.T) {
		a := rec
		a.Attributes = nil
		b := rec
		b.Attributes = map[string]string{}
		assert.Equal(t, Record(a), Record(b))
	})
}

func TestGenerate(t *testing.T) {
	a := Generate(map[string]any{"x": 1, "y": "two"})
	b := Generate(map[string]any{"y": "two", "x": 1})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Generate(map[string]any{"x": 2, "y": "two"}))
}
