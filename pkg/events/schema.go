package events

import (
	"time"

	"github.com/Ramsey-B/laurel/pkg/kafka"
	"github.com/Ramsey-B/laurel/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	// Verification outcomes, one per persisted pipeline run.
	EventTypeVerificationCompleted    EventType = "verification.completed"
	EventTypeVerificationManualReview EventType = "verification.manual_review"
	EventTypeVerificationRejected     EventType = "verification.rejected"

	// Registry writes.
	EventTypeRecordUpserted EventType = "record.upserted"
)

// EventTypeForStatus maps the final disposition to its event type.
func EventTypeForStatus(status models.VerificationStatus) EventType {
	switch status {
	case models.VerificationStatusManualReview:
		return EventTypeVerificationManualReview
	case models.VerificationStatusRejected:
		return EventTypeVerificationRejected
	default:
		return EventTypeVerificationCompleted
	}
}

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`

	// CorrelationID carries the caller's request id so downstream consumers
	// can tie the event back to the submission.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType, correlationID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: kafka.SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// VerificationEvent is emitted after a verification persists.
type VerificationEvent struct {
	BaseEvent
	VerificationID  string                    `json:"verification_id"`
	RequestID       string                    `json:"request_id"`
	DocumentType    string                    `json:"document_type"`
	Status          models.VerificationStatus `json:"status"`
	MatchType       models.MatchType          `json:"match_type"`
	MatchedRecordID *string                   `json:"matched_record_id,omitempty"`
	FinalConfidence float64                   `json:"final_confidence"`
	Reasons         []string                  `json:"reasons,omitempty"`
}

// RecordUpsertedEvent is emitted after a registry write. The raw identifier
// stays out of the payload; the masked form is enough for consumers.
type RecordUpsertedEvent struct {
	BaseEvent
	RecordID     string `json:"record_id"`
	DocumentType string `json:"document_type"`
	IDMasked     string `json:"id_masked,omitempty"`
	Source       string `json:"source"`
}
