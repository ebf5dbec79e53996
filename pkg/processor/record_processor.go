package processor

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/laurel/internal/repositories/record"
	"github.com/Ramsey-B/laurel/pkg/events"
	"github.com/Ramsey-B/laurel/pkg/kafka"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

var validate = validator.New()

// RecordStore is the registry write surface the feed needs.
type RecordStore interface {
	Upsert(ctx context.Context, rec *models.AuthoritativeRecord) (*models.AuthoritativeRecord, error)
}

// RecordProcessor applies record-feed messages to the registry. The feed
// carries plain upsert envelopes from source systems or Debezium CDC from
// registries streamed through a connector.
type RecordProcessor struct {
	logger  ectologger.Logger
	records RecordStore
	emitter *events.Emitter
}

// NewRecordProcessor creates a new record-feed processor. emitter may be nil
// when event publishing is disabled.
func NewRecordProcessor(logger ectologger.Logger, records RecordStore, emitter *events.Emitter) *RecordProcessor {
	return &RecordProcessor{
		logger:  logger,
		records: records,
		emitter: emitter,
	}
}

// ProcessMessage handles one record-feed message. Bad payloads are logged
// and skipped; registry failures propagate so the message redelivers.
func (p *RecordProcessor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "RecordProcessor.ProcessMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	req, skip := p.parseRequest(msg, log)
	if skip || req == nil {
		return nil
	}

	if err := validate.Struct(req); err != nil {
		log.WithError(err).Warn("Record message failed validation, skipping")
		return nil
	}

	stored, err := p.records.Upsert(ctx, record.FromRequest(req))
	if err != nil {
		return err
	}

	if p.emitter != nil {
		if err := p.emitter.EmitRecordUpserted(ctx, stored); err != nil {
			log.WithError(err).Warn("Failed to emit record.upserted event")
		}
	}

	log.WithFields(map[string]any{
		"record_id":     stored.ID,
		"document_type": stored.DocumentType,
		"source":        stored.Source,
	}).Info("Applied record feed upsert")

	return nil
}

// parseRequest extracts the upsert request from either feed format. The skip
// flag is set for payloads that should commit without a write: parse
// failures, CDC deletes and tombstones.
func (p *RecordProcessor) parseRequest(msg *kafka.IncomingMessage, log ectologger.Logger) (*models.UpsertRecordRequest, bool) {
	if !msg.IsCDC() {
		req, err := msg.ParseRecord()
		if err != nil {
			log.WithError(err).Error("Failed to parse record message, skipping")
			return nil, true
		}
		return req, false
	}

	envelope, err := kafka.ParseDebeziumMessage(msg.Value)
	if err != nil {
		log.WithError(err).Error("Failed to parse CDC envelope, skipping")
		return nil, true
	}

	if envelope.Payload.IsDelete() {
		// The registry keeps history; source deletes do not remove records.
		log.WithFields(map[string]any{
			"table": envelope.Payload.Source.Table,
		}).Debug("Ignoring CDC delete")
		return nil, true
	}
	if !envelope.Payload.IsUpsert() {
		return nil, true
	}

	row, err := envelope.Payload.ParseRegistryRow()
	if err != nil {
		log.WithError(err).Error("Failed to parse registry row, skipping")
		return nil, true
	}
	if row == nil {
		return nil, true
	}

	req, err := row.ToUpsertRequest()
	if err != nil {
		log.WithError(err).Error("Failed to convert registry row, skipping")
		return nil, true
	}
	if req.Source == "" {
		req.Source = envelope.Payload.Source.Name
	}
	return req, false
}
