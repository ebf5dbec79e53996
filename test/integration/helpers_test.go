package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/laurel/internal/repositories/record"
	"github.com/Ramsey-B/laurel/pkg/confidence"
	"github.com/Ramsey-B/laurel/pkg/matching"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/pipeline"
	"github.com/Ramsey-B/laurel/pkg/processor"
	"github.com/Ramsey-B/laurel/pkg/rules"
)

// ruleSetsJSON is the fixture configuration in the same JSON shape the
// rule_sets table stores. Loading it through the registry exercises the
// exact decode path the startup hook runs.
const ruleSetsJSON = `[
  {
    "id": "rs-national-id",
    "document_type": "national_id",
    "display_name": "National ID Card",
    "identifier": {
      "fields": ["id_number"],
      "digest_field": "id_digest",
      "masked_field": "id_masked",
      "pattern": "^[0-9]{12}$"
    },
    "fuzzy": {
      "enabled": true,
      "fields": [
        {"claim_field": "full_name", "record_field": "canonical_name", "comparator": "levenshtein", "normalizer": "nname", "weight": 0.6, "required": true},
        {"claim_field": "date_of_birth", "record_field": "date_of_birth_or_issue", "comparator": "exact", "normalizer": "ndate", "weight": 0.4}
      ],
      "boosts": [
        {"claim_field": "date_of_birth", "record_field": "date_of_birth_or_issue", "normalizer": "ndate", "bonus": 0.25}
      ],
      "threshold": 0.62,
      "prefilter_field": "date_of_birth"
    },
    "is_active": true
  },
  {
    "id": "rs-pan-card",
    "document_type": "pan_card",
    "display_name": "PAN Card",
    "identifier": {
      "fields": ["pan_number"],
      "pattern": "^[A-Z]{5}[0-9]{4}[A-Z]$"
    },
    "fuzzy": {
      "enabled": true,
      "fields": [
        {"claim_field": "full_name", "record_field": "canonical_name", "comparator": "jaro_winkler", "normalizer": "nname", "weight": 0.7, "required": true},
        {"claim_field": "father_name", "record_field": "attributes.father_name", "comparator": "jaro_winkler", "normalizer": "nname", "weight": 0.3}
      ],
      "threshold": 0.62
    },
    "is_active": true
  },
  {
    "id": "rs-lease-agreement",
    "document_type": "lease_agreement",
    "display_name": "Lease Agreement",
    "identifier": {
      "digest_field": "content_digest"
    },
    "fuzzy": {
      "enabled": true,
      "fields": [
        {"claim_field": "tenant_name", "record_field": "canonical_name", "comparator": "levenshtein", "normalizer": "nname", "weight": 0.5, "required": true},
        {"claim_field": "property_address", "record_field": "address", "comparator": "levenshtein", "normalizer": "naddress", "weight": 0.5}
      ],
      "threshold": 0.58
    },
    "weights": {"db_match": 0.6, "format": 0.15, "extraction": 0.25},
    "is_active": true
  },
  {
    "id": "rs-distributor-license",
    "document_type": "distributor_license",
    "display_name": "Distributor License",
    "identifier": {
      "fields": ["license_number"],
      "pattern": "^[A-Z]{2}[0-9]{6,10}$"
    },
    "fuzzy": {
      "enabled": true,
      "fields": [
        {"claim_field": "distributor_name", "record_field": "canonical_name", "comparator": "levenshtein", "normalizer": "nname", "weight": 0.65, "required": true},
        {"claim_field": "district", "record_field": "attributes.district", "comparator": "exact", "normalizer": "lowercase", "weight": 0.35}
      ],
      "threshold": 0.64
    },
    "allow_record_upsert": true,
    "is_active": true
  }
]`

func loadRuleSets(t *testing.T) []models.RuleSet {
	t.Helper()
	var sets []models.RuleSet
	require.NoError(t, json.Unmarshal([]byte(ruleSetsJSON), &sets))
	return sets
}

// memoryStore is an in-memory registry standing in for the record
// repository and its cache. It satisfies the matching store, the pipeline
// record writer and the processor record store at once, like the real
// repository does.
type memoryStore struct {
	mu      sync.Mutex
	seq     int
	records []models.AuthoritativeRecord
	fail    error

	// lastFilter captures the most recent candidate filter for assertions.
	lastFilter models.RecordFilter
}

func (s *memoryStore) FindByIDHash(_ context.Context, documentType, idHash string) (*models.AuthoritativeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	for i := range s.records {
		if s.records[i].DocumentType == documentType && s.records[i].IDHash == idHash {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) FindByMasked(_ context.Context, documentType, masked string) (*models.AuthoritativeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	for i := range s.records {
		if s.records[i].DocumentType == documentType && s.records[i].IDMasked == masked {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) Candidates(_ context.Context, documentType string, filter models.RecordFilter, limit int) ([]models.AuthoritativeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	s.lastFilter = filter

	out := make([]models.AuthoritativeRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.DocumentType != documentType {
			continue
		}
		if filter.BirthYear != "" {
			if len(rec.DateOfBirthOrIssue) < 4 || rec.DateOfBirthOrIssue[:4] != filter.BirthYear {
				continue
			}
		}
		if filter.AttributeKey != "" && rec.Attributes[filter.AttributeKey] != filter.AttributeValue {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Upsert replaces by (document_type, id_hash) like the real repository's
// ON CONFLICT clause, preserving the original id and created_at.
func (s *memoryStore) Upsert(_ context.Context, rec *models.AuthoritativeRecord) (*models.AuthoritativeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}

	now := time.Now().UTC()
	for i := range s.records {
		if s.records[i].DocumentType == rec.DocumentType && s.records[i].IDHash == rec.IDHash {
			stored := *rec
			stored.ID = s.records[i].ID
			stored.CreatedAt = s.records[i].CreatedAt
			stored.UpdatedAt = now
			s.records[i] = stored
			return &stored, nil
		}
	}

	s.seq++
	stored := *rec
	stored.ID = fmt.Sprintf("rec-%04d", s.seq)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.records = append(s.records, stored)
	return &stored, nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type memoryLedger struct {
	mu      sync.Mutex
	fail    error
	created []models.Verification
}

func (l *memoryLedger) Create(_ context.Context, v *models.Verification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	l.created = append(l.created, *v)
	return nil
}

func (l *memoryLedger) all() []models.Verification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Verification, len(l.created))
	copy(out, l.created)
	return out
}

// env wires the real registry, matching engine, scorer, pipeline and both
// consumers' processors over the in-memory store, mirroring the production
// assembly without Postgres, Redis or a broker.
type env struct {
	store   *memoryStore
	ledger  *memoryLedger
	rules   *rules.Registry
	service *pipeline.Service
	claims  *processor.ClaimProcessor
	feed    *processor.RecordProcessor
}

func newEnv(t *testing.T) *env {
	t.Helper()

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := &memoryStore{}
	ledger := &memoryLedger{}

	registry := rules.NewRegistry()
	registry.Load(rules.Filter(loadRuleSets(t), func(set *models.RuleSet, err error) {
		t.Fatalf("fixture rule set %s rejected: %v", set.DocumentType, err)
	}))

	engine := matching.NewEngine(store, logger, matching.DefaultConfig())
	scorer := confidence.NewScorer(confidence.DefaultConfig())
	service := pipeline.NewService(registry, engine, scorer, ledger, store, nil, logger)

	return &env{
		store:   store,
		ledger:  ledger,
		rules:   registry,
		service: service,
		claims:  processor.NewClaimProcessor(logger, service),
		feed:    processor.NewRecordProcessor(logger, store, nil),
	}
}

// seed ingests a record through the same normalization path the feed and
// the ingest route use.
func (e *env) seed(t *testing.T, req *models.UpsertRecordRequest) *models.AuthoritativeRecord {
	t.Helper()
	stored, err := e.store.Upsert(context.Background(), record.FromRequest(req))
	require.NoError(t, err)
	return stored
}

func confidencePtr(v float64) *float64 { return &v }
