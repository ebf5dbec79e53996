package integration

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/laurel/pkg/fingerprint"
	"github.com/Ramsey-B/laurel/pkg/kafka"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/pipeline"
)

func claimEnvelope(t *testing.T, claim *models.VerificationClaim) *kafka.IncomingMessage {
	t.Helper()
	payload, err := json.Marshal(kafka.ClaimMessage{
		Type:  kafka.MessageTypeClaim,
		Claim: claim,
	})
	require.NoError(t, err)
	return &kafka.IncomingMessage{Topic: "laurel.claims", Value: payload}
}

func recordEnvelope(t *testing.T, req *models.UpsertRecordRequest) *kafka.IncomingMessage {
	t.Helper()
	payload, err := json.Marshal(kafka.RecordMessage{
		Type:   kafka.MessageTypeRecord,
		Record: req,
	})
	require.NoError(t, err)
	return &kafka.IncomingMessage{Topic: "laurel.records", Value: payload}
}

func TestRecordFeedToClaimRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	feedMsg := recordEnvelope(t, &models.UpsertRecordRequest{
		DocumentType:       "national_id",
		IDNumber:           "7890 1234 5678",
		Name:               "Sunita Rao",
		DateOfBirthOrIssue: "1982-09-21",
		Source:             "civil_registry",
	})
	require.NoError(t, e.feed.ProcessMessage(ctx, feedMsg))
	require.Equal(t, 1, e.store.count())

	claimMsg := claimEnvelope(t, &models.VerificationClaim{
		DocumentType:         "national_id",
		RequestID:            "req-feed-1",
		SubmittedBy:          "svc-onboarding",
		Extracted:            map[string]string{"id_number": "789012345678", "full_name": "Sunita Rao"},
		ExtractionConfidence: confidencePtr(0.9),
	})
	require.NoError(t, e.claims.ProcessMessage(ctx, claimMsg))

	ledger := e.ledger.all()
	require.Len(t, ledger, 1)
	assert.Equal(t, models.VerificationStatusVerified, ledger[0].Status)
	assert.Equal(t, models.MatchTypeExactHash, ledger[0].MatchType)
	assert.InDelta(t, 0.975, ledger[0].FinalConfidence, 1e-9)

	rec, err := e.store.FindByIDHash(ctx, "national_id", fingerprint.Identifier("789012345678"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, ledger[0].MatchedRecordID)
	assert.Equal(t, rec.ID, *ledger[0].MatchedRecordID)
}

func TestBareClaimPayloadStillProcessed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	// Older producers publish the claim without the envelope wrapper.
	payload, err := json.Marshal(&models.VerificationClaim{
		DocumentType:         "pan_card",
		RequestID:            "req-bare-1",
		Extracted:            map[string]string{"pan_number": "ABCDE1234F"},
		ExtractionConfidence: confidencePtr(0.9),
	})
	require.NoError(t, err)

	msg := &kafka.IncomingMessage{Topic: "laurel.claims", Value: payload}
	require.NoError(t, e.claims.ProcessMessage(ctx, msg))

	ledger := e.ledger.all()
	require.Len(t, ledger, 1)
	assert.Equal(t, "req-bare-1", ledger[0].RequestID)
	assert.Equal(t, models.VerificationStatusRejected, ledger[0].Status)
}

func TestPoisonMessagesCommitWithoutWrites(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	cases := []struct {
		name  string
		topic string
		value []byte
	}{
		{"claim garbage", "laurel.claims", []byte("{not json")},
		{"claim envelope without claim", "laurel.claims", []byte(`{"type":"verification.claim"}`)},
		{"record garbage", "laurel.records", []byte("not json")},
		{"record envelope without record", "laurel.records", []byte(`{"type":"record.upsert"}`)},
		{"cdc delete", "laurel.records", []byte(`{"payload":{"op":"d","after":null,"source":{"name":"registry-pg","table":"citizens"}}}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := &kafka.IncomingMessage{Topic: tc.topic, Value: tc.value}
			if tc.topic == "laurel.claims" {
				require.NoError(t, e.claims.ProcessMessage(ctx, msg))
			} else {
				require.NoError(t, e.feed.ProcessMessage(ctx, msg))
			}
		})
	}

	assert.Empty(t, e.ledger.all())
	assert.Zero(t, e.store.count())
}

func TestLedgerOutageRedeliversClaim(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	msg := claimEnvelope(t, &models.VerificationClaim{
		DocumentType:         "pan_card",
		RequestID:            "req-retry-1",
		Extracted:            map[string]string{"pan_number": "ABCDE1234F"},
		ExtractionConfidence: confidencePtr(0.9),
	})

	e.ledger.fail = errors.New("connection reset by peer")
	err := e.claims.ProcessMessage(ctx, msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrStoreUnavailable))
	assert.Empty(t, e.ledger.all())

	// The consumer does not commit on error; the redelivered message
	// succeeds once the ledger is back.
	e.ledger.fail = nil
	require.NoError(t, e.claims.ProcessMessage(ctx, msg))
	require.Len(t, e.ledger.all(), 1)
	assert.Equal(t, "req-retry-1", e.ledger.all()[0].RequestID)
}

func TestCDCRegistryRowServesClaims(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	cdc := []byte(`{"payload":{"op":"c","after":{"document_type":"national_id","id_number":"111122223333","full_name":"Anita Desai","date_of_birth":"1975-08-30","source":"civil_registry"},"source":{"name":"registry-pg","table":"citizens"}}}`)
	msg := &kafka.IncomingMessage{Topic: "laurel.records", Value: cdc}
	require.NoError(t, e.feed.ProcessMessage(ctx, msg))
	require.Equal(t, 1, e.store.count())

	claimMsg := claimEnvelope(t, &models.VerificationClaim{
		DocumentType:         "national_id",
		RequestID:            "req-cdc-1",
		Extracted:            map[string]string{"id_number": "1111 2222 3333"},
		ExtractionConfidence: confidencePtr(0.9),
	})
	require.NoError(t, e.claims.ProcessMessage(ctx, claimMsg))

	ledger := e.ledger.all()
	require.Len(t, ledger, 1)
	assert.Equal(t, models.VerificationStatusVerified, ledger[0].Status)
}
