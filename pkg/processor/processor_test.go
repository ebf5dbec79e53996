package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/laurel/pkg/confidence"
	"github.com/Ramsey-B/laurel/pkg/fingerprint"
	"github.com/Ramsey-B/laurel/pkg/kafka"
	"github.com/Ramsey-B/laurel/pkg/matching"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/normalizers"
	"github.com/Ramsey-B/laurel/pkg/pipeline"
	"github.com/Ramsey-B/laurel/pkg/rules"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeMatchStore struct {
	mu      sync.Mutex
	records []models.AuthoritativeRecord
}

func (s *fakeMatchStore) FindByIDHash(_ context.Context, documentType, idHash string) (*models.AuthoritativeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].DocumentType == documentType && s.records[i].IDHash == idHash {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *fakeMatchStore) FindByMasked(_ context.Context, documentType, masked string) (*models.AuthoritativeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].DocumentType == documentType && s.records[i].IDMasked == masked {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *fakeMatchStore) Candidates(_ context.Context, documentType string, _ models.RecordFilter, limit int) ([]models.AuthoritativeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuthoritativeRecord
	for _, rec := range s.records {
		if rec.DocumentType == documentType {
			out = append(out, rec)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	failing bool
	created []*models.Verification
}

func (l *fakeLedger) Create(_ context.Context, v *models.Verification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failing {
		return errors.New("ledger down")
	}
	l.created = append(l.created, v)
	return nil
}

type fakeRecordStore struct {
	mu      sync.Mutex
	failing bool
	upserts []*models.AuthoritativeRecord
}

func (s *fakeRecordStore) Upsert(_ context.Context, rec *models.AuthoritativeRecord) (*models.AuthoritativeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errors.New("registry down")
	}
	stored := *rec
	stored.ID = "rec-stored"
	s.upserts = append(s.upserts, &stored)
	return &stored, nil
}

func claimRuleSet() *models.RuleSet {
	return &models.RuleSet{
		ID:           "rs-national-id",
		DocumentType: "national_id",
		DisplayName:  "National ID",
		Identifier: models.IdentifierSpec{
			Fields:  []string{"id_number"},
			Pattern: `^[0-9]{12}$`,
		},
		IsActive: true,
	}
}

func newClaimProcessor(t *testing.T, store *fakeMatchStore, ledger *fakeLedger) *ClaimProcessor {
	t.Helper()
	logger := testLogger()

	registry := rules.NewRegistry()
	registry.Update(claimRuleSet())

	engine := matching.NewEngine(store, logger, matching.DefaultConfig())
	scorer := confidence.NewScorer(confidence.DefaultConfig())
	service := pipeline.NewService(registry, engine, scorer, ledger, nil, nil, logger)

	return NewClaimProcessor(logger, service)
}

func claimMessage(t *testing.T, claim *models.VerificationClaim) *kafka.IncomingMessage {
	t.Helper()
	payload, err := json.Marshal(kafka.ClaimMessage{
		Type:  kafka.MessageTypeClaim,
		Claim: claim,
	})
	require.NoError(t, err)
	return &kafka.IncomingMessage{Topic: "laurel.claims", Value: payload}
}

func confidencePtr(v float64) *float64 { return &v }

func TestClaimProcessorProcessesClaim(t *testing.T) {
	id := normalizers.Identifier("123456789012")
	store := &fakeMatchStore{records: []models.AuthoritativeRecord{{
		ID:           "rec-1",
		DocumentType: "national_id",
		LookupKey:    id,
		IDHash:       fingerprint.Identifier(id),
	}}}
	ledger := &fakeLedger{}
	p := newClaimProcessor(t, store, ledger)

	msg := claimMessage(t, &models.VerificationClaim{
		DocumentType:         "national_id",
		RequestID:            "req-1",
		Extracted:            map[string]string{"id_number": "1234 5678 9012"},
		ExtractionConfidence: confidencePtr(0.95),
	})

	require.NoError(t, p.ProcessMessage(context.Background(), msg))
	require.Len(t, ledger.created, 1)
	assert.Equal(t, models.VerificationStatusVerified, ledger.created[0].Status)
	assert.Equal(t, models.MatchTypeExactHash, ledger.created[0].MatchType)
}

func TestClaimProcessorSkipsBadPayloads(t *testing.T) {
	store := &fakeMatchStore{}
	ledger := &fakeLedger{}
	p := newClaimProcessor(t, store, ledger)

	t.Run("garbage json commits", func(t *testing.T) {
		msg := &kafka.IncomingMessage{Topic: "laurel.claims", Value: []byte("{not json")}
		require.NoError(t, p.ProcessMessage(context.Background(), msg))
		assert.Empty(t, ledger.created)
	})

	t.Run("invalid claim commits", func(t *testing.T) {
		msg := claimMessage(t, &models.VerificationClaim{
			DocumentType: "national_id",
			RequestID:    "req-2",
			// No extracted fields.
		})
		require.NoError(t, p.ProcessMessage(context.Background(), msg))
		assert.Empty(t, ledger.created)
	})

	t.Run("unknown document type commits", func(t *testing.T) {
		msg := claimMessage(t, &models.VerificationClaim{
			DocumentType: "passport",
			RequestID:    "req-3",
			Extracted:    map[string]string{"id_number": "X123"},
		})
		require.NoError(t, p.ProcessMessage(context.Background(), msg))
		assert.Empty(t, ledger.created)
	})
}

func TestClaimProcessorPropagatesStoreFailure(t *testing.T) {
	store := &fakeMatchStore{}
	ledger := &fakeLedger{failing: true}
	p := newClaimProcessor(t, store, ledger)

	msg := claimMessage(t, &models.VerificationClaim{
		DocumentType: "national_id",
		RequestID:    "req-4",
		Extracted:    map[string]string{"id_number": "999988887777"},
	})

	err := p.ProcessMessage(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrStoreUnavailable))
}

func recordFeedMessage(t *testing.T, req *models.UpsertRecordRequest) *kafka.IncomingMessage {
	t.Helper()
	payload, err := json.Marshal(kafka.RecordMessage{
		Type:   kafka.MessageTypeRecord,
		Record: req,
	})
	require.NoError(t, err)
	return &kafka.IncomingMessage{Topic: "laurel.records", Value: payload}
}

func TestRecordProcessorPlainUpsert(t *testing.T) {
	store := &fakeRecordStore{}
	p := NewRecordProcessor(testLogger(), store, nil)

	msg := recordFeedMessage(t, &models.UpsertRecordRequest{
		DocumentType:       "national_id",
		IDNumber:           "9876 5432 1098",
		Name:               "  Priya SHARMA ",
		DateOfBirthOrIssue: "1990-04-12",
		Attributes:         map[string]string{"father_name": "Rajesh Sharma"},
		Source:             "civil_registry",
	})

	require.NoError(t, p.ProcessMessage(context.Background(), msg))
	require.Len(t, store.upserts, 1)

	stored := store.upserts[0]
	assert.Equal(t, "987654321098", stored.LookupKey)
	assert.Equal(t, fingerprint.Identifier("987654321098"), stored.IDHash)
	assert.Equal(t, "XXXXXXXX1098", stored.IDMasked)
	assert.Equal(t, "priya sharma", stored.CanonicalName)
	assert.Equal(t, "rajesh sharma", stored.Attributes["father_name"])
	assert.Equal(t, "civil_registry", stored.Source)
}

func TestRecordProcessorCDC(t *testing.T) {
	cdcValue := func(op, after string) []byte {
		return []byte(`{"payload":{"op":"` + op + `","after":` + after + `,"source":{"name":"registry-pg","table":"citizens"}}}`)
	}

	t.Run("create applies upsert", func(t *testing.T) {
		store := &fakeRecordStore{}
		p := NewRecordProcessor(testLogger(), store, nil)

		after := `{"document_type":"national_id","id_number":"111122223333","full_name":"Anita Desai","date_of_birth":"1975-08-30","attributes":"{\"district\":\"Pune\"}","source":""}`
		msg := &kafka.IncomingMessage{Topic: "laurel.records", Value: cdcValue("c", after)}

		require.NoError(t, p.ProcessMessage(context.Background(), msg))
		require.Len(t, store.upserts, 1)

		stored := store.upserts[0]
		assert.Equal(t, "111122223333", stored.LookupKey)
		assert.Equal(t, "anita desai", stored.CanonicalName)
		assert.Equal(t, "pune", stored.Attributes["district"])
		// Source falls back to the connector name.
		assert.Equal(t, "registry-pg", stored.Source)
	})

	t.Run("delete is ignored", func(t *testing.T) {
		store := &fakeRecordStore{}
		p := NewRecordProcessor(testLogger(), store, nil)

		msg := &kafka.IncomingMessage{Topic: "laurel.records", Value: cdcValue("d", "null")}
		require.NoError(t, p.ProcessMessage(context.Background(), msg))
		assert.Empty(t, store.upserts)
	})

	t.Run("snapshot read applies upsert", func(t *testing.T) {
		store := &fakeRecordStore{}
		p := NewRecordProcessor(testLogger(), store, nil)

		after := `{"document_type":"national_id","id_number":"444455556666","full_name":"Vikram Rao","source":"seed"}`
		msg := &kafka.IncomingMessage{Topic: "laurel.records", Value: cdcValue("r", after)}

		require.NoError(t, p.ProcessMessage(context.Background(), msg))
		require.Len(t, store.upserts, 1)
		assert.Equal(t, "seed", store.upserts[0].Source)
	})
}

func TestRecordProcessorSkipsInvalid(t *testing.T) {
	store := &fakeRecordStore{}
	p := NewRecordProcessor(testLogger(), store, nil)

	t.Run("garbage json", func(t *testing.T) {
		msg := &kafka.IncomingMessage{Topic: "laurel.records", Value: []byte("not json")}
		require.NoError(t, p.ProcessMessage(context.Background(), msg))
		assert.Empty(t, store.upserts)
	})

	t.Run("missing required fields", func(t *testing.T) {
		msg := recordFeedMessage(t, &models.UpsertRecordRequest{
			DocumentType: "national_id",
			// No id_number, name or source.
		})
		require.NoError(t, p.ProcessMessage(context.Background(), msg))
		assert.Empty(t, store.upserts)
	})
}

func TestRecordProcessorPropagatesStoreFailure(t *testing.T) {
	store := &fakeRecordStore{failing: true}
	p := NewRecordProcessor(testLogger(), store, nil)

	msg := recordFeedMessage(t, &models.UpsertRecordRequest{
		DocumentType: "national_id",
		IDNumber:     "123123123123",
		Name:         "Ravi Iyer",
		Source:       "civil_registry",
	})

	require.Error(t, p.ProcessMessage(context.Background(), msg))
}
