// Package events publishes pipeline outcomes to the events topic.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/laurel/pkg/kafka"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// Emitter formats and publishes service events
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitVerificationCompleted publishes the status-variant event for a
// persisted verification, keyed by verification id.
func (e *Emitter) EmitVerificationCompleted(ctx context.Context, v *models.Verification) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitVerificationCompleted")
	defer span.End()

	eventType := EventTypeForStatus(v.Status)
	event := &VerificationEvent{
		BaseEvent:       NewBaseEvent(eventType, v.RequestID),
		VerificationID:  v.ID,
		RequestID:       v.RequestID,
		DocumentType:    v.DocumentType,
		Status:          v.Status,
		MatchType:       v.MatchType,
		MatchedRecordID: v.MatchedRecordID,
		FinalConfidence: v.FinalConfidence,
		Reasons:         v.Reasons,
	}

	if err := e.producer.Publish(ctx, string(eventType), v.ID, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"verification_id": v.ID,
		}).Error("Failed to emit verification event")
		return err
	}

	return nil
}

// EmitRecordUpserted publishes a registry-write event keyed by record id.
func (e *Emitter) EmitRecordUpserted(ctx context.Context, record *models.AuthoritativeRecord) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRecordUpserted")
	defer span.End()

	event := &RecordUpsertedEvent{
		BaseEvent:    NewBaseEvent(EventTypeRecordUpserted, ""),
		RecordID:     record.ID,
		DocumentType: record.DocumentType,
		IDMasked:     record.IDMasked,
		Source:       record.Source,
	}

	if err := e.producer.Publish(ctx, string(EventTypeRecordUpserted), record.ID, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_id": record.ID,
		}).Error("Failed to emit record.upserted event")
		return err
	}

	return nil
}
