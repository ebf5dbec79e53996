// Package pipeline runs the verification flow end to end: validate the
// claim, resolve it against the registry, compute the check signals, blend
// the final confidence and persist the outcome. One run per claim, no
// retries, no dedup; a failed run persists nothing.
package pipeline

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/laurel/pkg/confidence"
	"github.com/Ramsey-B/laurel/pkg/matching"
	"github.com/Ramsey-B/laurel/pkg/metrics"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/rules"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

var validate = validator.New()

var (
	// ErrInvalidClaim rejects a claim before the pipeline runs: malformed
	// payload, empty extraction, confidence outside [0,1], or an unknown
	// document type.
	ErrInvalidClaim = errors.New("invalid verification claim")

	// ErrStoreUnavailable means a registry read or ledger write failed
	// mid-run. No verification row exists for the claim; the caller decides
	// whether to resubmit.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// lowExtractionCutoff marks extraction confidence worth calling out in the
// reasons. It does not gate anything; the blend already prices it in.
const lowExtractionCutoff = 0.5

const fieldCheckPrefix = "field:"

// Ledger persists completed verifications.
type Ledger interface {
	Create(ctx context.Context, verification *models.Verification) error
}

// RecordWriter writes authoritative records for upsert-enabled types.
type RecordWriter interface {
	Upsert(ctx context.Context, record *models.AuthoritativeRecord) (*models.AuthoritativeRecord, error)
}

// Events publishes pipeline outcomes. Emission failures are logged, never
// propagated; the verification is already persisted by the time they fire.
type Events interface {
	EmitVerificationCompleted(ctx context.Context, verification *models.Verification) error
	EmitRecordUpserted(ctx context.Context, record *models.AuthoritativeRecord) error
}

// Service is the verification pipeline.
type Service struct {
	registry *rules.Registry
	engine   *matching.Engine
	scorer   *confidence.Scorer
	ledger   Ledger
	records  RecordWriter
	events   Events
	logger   ectologger.Logger
}

// NewService creates the pipeline service. events may be nil when no broker
// is configured.
func NewService(registry *rules.Registry, engine *matching.Engine, scorer *confidence.Scorer, ledger Ledger, records RecordWriter, events Events, logger ectologger.Logger) *Service {
	return &Service{
		registry: registry,
		engine:   engine,
		scorer:   scorer,
		ledger:   ledger,
		records:  records,
		events:   events,
		logger:   logger,
	}
}

// Verify runs one claim through the pipeline and returns the persisted
// verification. Every accepted claim gets a fresh verification id; two
// identical claims are two verifications.
func (s *Service) Verify(ctx context.Context, claim *models.VerificationClaim) (*models.Verification, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Service.Verify")
	defer span.End()

	start := time.Now()

	set, err := s.validateClaim(claim)
	if err != nil {
		docType := "unknown"
		if claim != nil && claim.DocumentType != "" {
			docType = claim.DocumentType
		}
		metrics.RecordClaimRejected(docType)
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"document_type": docType,
		}).Warn("Rejected invalid verification claim")
		return nil, err
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"document_type": claim.DocumentType,
		"request_id":    claim.RequestID,
	})

	reasons := make([]string, 0, 4)

	if set.AllowRecordUpsert && claim.AuthoritativeSource {
		stored, err := s.upsertRecord(ctx, set, claim, log)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			reasons = append(reasons, models.ReasonRecordUpserted)
		}
	}

	outcome, err := s.engine.Match(ctx, set, claim)
	if err != nil {
		log.WithError(err).Error("Match stage failed")
		return nil, errors.Wrapf(ErrStoreUnavailable, "match claim: %v", err)
	}

	rawID := matching.NormalizedIdentifier(set, claim)
	formatValid := rawID != "" && rules.FormatCheck(set.Identifier, rawID)
	extraction := claim.ConfidenceOrZero()

	dbScore := 0.0
	if outcome.Matched {
		dbScore = outcome.Score
	}

	formatCheck := 0.0
	if formatValid {
		formatCheck = 1.0
	}

	checks := map[string]float64{
		models.CheckDBMatchScore:         dbScore,
		models.CheckFormat:               formatCheck,
		models.CheckExtractionConfidence: extraction,
	}
	for field, score := range outcome.FieldScores {
		checks[fieldCheckPrefix+field] = score
	}
	if !outcome.Matched && outcome.Score > 0 {
		checks[models.CheckFuzzyBestScore] = outcome.Score
	}

	switch outcome.MatchType {
	case models.MatchTypeExactHash:
		reasons = append(reasons, models.ReasonExactIDHashMatch)
	case models.MatchTypeExactMasked:
		reasons = append(reasons, models.ReasonMaskedIdentifierEquality)
	case models.MatchTypeFuzzy:
		reasons = append(reasons, models.ReasonFuzzyMatch)
	default:
		if outcome.Score > 0 {
			reasons = append(reasons, models.ReasonFuzzyBelowThreshold)
		}
		reasons = append(reasons, models.ReasonNoAuthoritativeMatch)
	}

	if !formatValid {
		if rawID != "" {
			reasons = append(reasons, models.ReasonIDFormatInvalid)
		} else if !hasIndirectIdentifier(set, claim) {
			reasons = append(reasons, models.ReasonNoUsableIdentifier)
		}
	}

	if extraction < lowExtractionCutoff {
		reasons = append(reasons, models.ReasonLowExtractionConfidence)
	}

	final := s.scorer.Final(set, dbScore, formatValid, extraction)
	status := s.scorer.Disposition(final)

	verification := &models.Verification{
		ID:              uuid.New().String(),
		RequestID:       claim.RequestID,
		DocumentType:    claim.DocumentType,
		SubmittedBy:     claim.SubmittedBy,
		Extracted:       claim.Extracted,
		Checks:          checks,
		MatchType:       outcome.MatchType,
		FinalConfidence: final,
		Status:          status,
		Reasons:         reasons,
		CreatedAt:       time.Now().UTC(),
	}
	if outcome.Matched && outcome.Record != nil {
		recordID := outcome.Record.ID
		verification.MatchedRecordID = &recordID
	}

	if err := s.ledger.Create(ctx, verification); err != nil {
		log.WithError(err).Error("Failed to persist verification")
		return nil, errors.Wrapf(ErrStoreUnavailable, "persist verification: %v", err)
	}

	metrics.RecordVerification(claim.DocumentType, string(status), string(outcome.MatchType), time.Since(start).Seconds())

	if s.events != nil {
		if err := s.events.EmitVerificationCompleted(ctx, verification); err != nil {
			log.WithError(err).Warn("Failed to emit verification completed event")
		}
	}

	log.WithFields(map[string]any{
		"verification_id":  verification.ID,
		"status":           string(status),
		"match_type":       string(outcome.MatchType),
		"final_confidence": final,
	}).Info("Verification completed")

	return verification, nil
}

// validateClaim rejects claims the pipeline will not run, and resolves the
// rule set for the document type.
func (s *Service) validateClaim(claim *models.VerificationClaim) (*models.RuleSet, error) {
	if claim == nil {
		return nil, errors.Wrap(ErrInvalidClaim, "claim is nil")
	}
	if err := validate.Struct(claim); err != nil {
		return nil, errors.Wrapf(ErrInvalidClaim, "claim failed validation: %v", err)
	}
	if len(claim.Extracted) == 0 {
		return nil, errors.Wrap(ErrInvalidClaim, "extracted fields are empty")
	}
	if c := claim.ExtractionConfidence; c != nil && (*c < 0 || *c > 1) {
		return nil, errors.Wrapf(ErrInvalidClaim, "extraction_confidence %v outside [0,1]", *c)
	}

	set, ok := s.registry.Get(claim.DocumentType)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidClaim, "no active rule set for document type %q", claim.DocumentType)
	}
	return set, nil
}

// upsertRecord writes an authoritative claim through to the registry before
// matching, so the claim can resolve against its own record. A claim with no
// usable identifier is logged and skipped, not failed.
func (s *Service) upsertRecord(ctx context.Context, set *models.RuleSet, claim *models.VerificationClaim, log ectologger.Logger) (*models.AuthoritativeRecord, error) {
	record := buildRecord(set, claim)
	if record == nil {
		log.Warn("Authoritative claim carries no identifier, skipping registry upsert")
		return nil, nil
	}

	stored, err := s.records.Upsert(ctx, record)
	if err != nil {
		metrics.RecordUpsert(set.DocumentType, "error")
		log.WithError(err).Error("Failed to upsert authoritative record")
		return nil, errors.Wrapf(ErrStoreUnavailable, "upsert record: %v", err)
	}
	metrics.RecordUpsert(set.DocumentType, "ok")

	log.WithFields(map[string]any{"record_id": stored.ID}).Info("Upserted authoritative record from claim")

	if s.events != nil {
		if err := s.events.EmitRecordUpserted(ctx, stored); err != nil {
			log.WithError(err).Warn("Failed to emit record upserted event")
		}
	}
	return stored, nil
}

// hasIndirectIdentifier reports whether the claim carries a digest or masked
// identifier field. Those claims can still exact-match even though the format
// check has nothing to run on.
func hasIndirectIdentifier(set *models.RuleSet, claim *models.VerificationClaim) bool {
	if set.Identifier.DigestField != "" {
		if _, ok := claim.Field(set.Identifier.DigestField); ok {
			return true
		}
	}
	if set.Identifier.MaskedField != "" {
		if _, ok := claim.Field(set.Identifier.MaskedField); ok {
			return true
		}
	}
	return false
}
