// Package processor wires the Kafka topics into the verification pipeline.
// Claims and record-feed messages come in here; everything downstream is the
// same code the HTTP API runs.
package processor

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/laurel/pkg/kafka"
	"github.com/Ramsey-B/laurel/pkg/pipeline"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// ClaimProcessor feeds claims-topic messages through the pipeline.
type ClaimProcessor struct {
	logger  ectologger.Logger
	service *pipeline.Service
}

// NewClaimProcessor creates a new claims-topic processor.
func NewClaimProcessor(logger ectologger.Logger, service *pipeline.Service) *ClaimProcessor {
	return &ClaimProcessor{
		logger:  logger,
		service: service,
	}
}

// ProcessMessage handles one claims-topic message. Unparseable payloads and
// invalid claims are logged and skipped so the group is never stuck behind
// them; store failures propagate so the message redelivers.
func (p *ClaimProcessor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "ClaimProcessor.ProcessMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	claim, err := msg.ParseClaim()
	if err != nil {
		log.WithError(err).Error("Failed to parse claim message, skipping")
		return nil
	}

	verification, err := p.service.Verify(ctx, claim)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidClaim) {
			log.WithError(err).WithFields(map[string]any{
				"request_id": claim.RequestID,
			}).Warn("Claim failed validation, skipping")
			return nil
		}
		return err
	}

	log.WithFields(map[string]any{
		"verification_id": verification.ID,
		"request_id":      verification.RequestID,
		"status":          verification.Status,
	}).Info("Processed claim from topic")

	return nil
}
