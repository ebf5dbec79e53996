// Package fingerprint produces the digests the matching pipeline keys on:
// identifier digests for exact lookup and record content fingerprints for
// change detection on upsert.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/Ramsey-B/laurel/pkg/models"
)

// Identifier returns the hex SHA-256 digest of exactly the normalized
// identifier. Two digests are equal iff the normalized identifiers are equal;
// the digest of one document type never collides structurally with another
// because lookups are always scoped by type.
func Identifier(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Record fingerprints the identity-bearing content of an authoritative
// record. Volatile columns (row id, timestamps) are not part of it, so a
// re-ingest of unchanged content produces the same fingerprint and the
// upsert skips the write.
func Record(rec models.AuthoritativeRecord) string {
	fields := map[string]any{
		"document_type":          rec.DocumentType,
		"lookup_key":             rec.LookupKey,
		"id_hash":                rec.IDHash,
		"id_masked":              rec.IDMasked,
		"canonical_name":         rec.CanonicalName,
		"date_of_birth_or_issue": rec.DateOfBirthOrIssue,
		"address":                rec.Address,
		"source":                 rec.Source,
	}
	if len(rec.Attributes) > 0 {
		fields["attributes"] = rec.Attributes
	}
	return Generate(fields)
}

// Generate creates a deterministic digest of a field map: SHA-256 over the
// canonical sorted-key JSON encoding, hex-encoded.
func Generate(data map[string]any) string {
	sum := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(sum[:])
}

// canonicalize renders a value as JSON with sorted map keys so encoding is
// independent of map iteration order.
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		result := "{"
		for i, k := range keys {
			if i > 0 {
				result += ","
			}
			keyJSON, _ := json.Marshal(k)
			result += string(keyJSON) + ":" + canonicalize(v[k])
		}
		return result + "}"
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return canonicalize(m)
	case []any:
		result := "["
		for i, item := range v {
			if i > 0 {
				result += ","
			}
			result += canonicalize(item)
		}
		return result + "]"
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}
