package kafka

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/laurel/pkg/models"
)

// Payload types carried in the "type" header and envelope field.
const (
	MessageTypeClaim  = "verification.claim"
	MessageTypeRecord = "record.upsert"
)

// IncomingMessage wraps a raw Kafka message with parsed headers.
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context extracted from Kafka headers.
	TraceParent string
	TraceState  string
}

// MessageType returns the declared payload type: the "type" header when
// present, the envelope "type" field otherwise.
func (m *IncomingMessage) MessageType() string {
	if t := m.Headers["type"]; t != "" {
		return t
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(m.Value, &envelope); err == nil {
		return envelope.Type
	}
	return ""
}

// ClaimMessage is the claims-topic envelope. The claim body matches the HTTP
// submission body so extraction services and API callers share one schema.
type ClaimMessage struct {
	Type      string                    `json:"type"`
	Claim     *models.VerificationClaim `json:"claim"`
	Timestamp time.Time                 `json:"timestamp,omitempty"`
}

// ParseClaim parses the message as a claim. Bare claims without the envelope
// are accepted so older producers keep working.
func (m *IncomingMessage) ParseClaim() (*models.VerificationClaim, error) {
	var msg ClaimMessage
	if err := json.Unmarshal(m.Value, &msg); err == nil && msg.Claim != nil {
		return msg.Claim, nil
	}

	var claim models.VerificationClaim
	if err := json.Unmarshal(m.Value, &claim); err != nil {
		return nil, errors.Wrap(err, "unmarshal claim message")
	}
	if claim.DocumentType == "" && claim.RequestID == "" {
		return nil, errors.New("claim message carries no claim")
	}
	return &claim, nil
}

// RecordMessage is the record-feed envelope for sources that publish plain
// upserts rather than CDC envelopes.
type RecordMessage struct {
	Type      string                      `json:"type"`
	Record    *models.UpsertRecordRequest `json:"record"`
	Timestamp time.Time                   `json:"timestamp,omitempty"`
}

// ParseRecord parses the message as a plain record upsert.
func (m *IncomingMessage) ParseRecord() (*models.UpsertRecordRequest, error) {
	var msg RecordMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal record message")
	}
	if msg.Record == nil {
		return nil, errors.New("record message carries no record")
	}
	return msg.Record, nil
}

// IsCDC reports whether the message looks like a Debezium envelope rather
// than a plain record message.
func (m *IncomingMessage) IsCDC() bool {
	var envelope struct {
		Payload *struct {
			Op string `json:"op"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(m.Value, &envelope); err != nil {
		return false
	}
	return envelope.Payload != nil && envelope.Payload.Op != ""
}
