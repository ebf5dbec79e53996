// Package verification persists the append-only verification ledger.
package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

const table = "verifications"

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

var columns = []string{
	"id", "request_id", "document_type", "submitted_by", "extracted",
	"checks", "matched_record_id", "match_type", "final_confidence",
	"status", "reasons", "created_at", "reviewed_by", "reviewed_at",
}

// row is the db-tagged shape of one ledger entry.
type row struct {
	ID              string                             `db:"id"`
	RequestID       string                             `db:"request_id"`
	DocumentType    string                             `db:"document_type"`
	SubmittedBy     string                             `db:"submitted_by"`
	Extracted       database.JSONB[map[string]string]  `db:"extracted"`
	Checks          database.JSONB[map[string]float64] `db:"checks"`
	MatchedRecordID *string                            `db:"matched_record_id"`
	MatchType       string                             `db:"match_type"`
	FinalConfidence float64                            `db:"final_confidence"`
	Status          string                             `db:"status"`
	Reasons         pq.StringArray                     `db:"reasons"`
	CreatedAt       time.Time                          `db:"created_at"`
	ReviewedBy      *string                            `db:"reviewed_by"`
	ReviewedAt      *time.Time                         `db:"reviewed_at"`
}

func (r row) toModel() *models.Verification {
	return &models.Verification{
		ID:              r.ID,
		RequestID:       r.RequestID,
		DocumentType:    r.DocumentType,
		SubmittedBy:     r.SubmittedBy,
		Extracted:       r.Extracted.Data,
		Checks:          r.Checks.Data,
		MatchedRecordID: r.MatchedRecordID,
		MatchType:       models.MatchType(r.MatchType),
		FinalConfidence: r.FinalConfidence,
		Status:          models.VerificationStatus(r.Status),
		Reasons:         []string(r.Reasons),
		CreatedAt:       r.CreatedAt,
		ReviewedBy:      r.ReviewedBy,
		ReviewedAt:      r.ReviewedAt,
	}
}

// ListFilter narrows List. Zero fields are not filtered on.
type ListFilter struct {
	DocumentType string
	Status       models.VerificationStatus
	Limit        int
}

// Repository handles verification ledger persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new verification repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends one verification to the ledger
func (r *Repository) Create(ctx context.Context, v *models.Verification) error {
	ctx, span := tracing.StartSpan(ctx, "verification.Repository.Create")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(
		v.ID, v.RequestID, v.DocumentType, v.SubmittedBy,
		database.NewJSONB(v.Extracted), database.NewJSONB(v.Checks),
		v.MatchedRecordID, string(v.MatchType), v.FinalConfidence,
		string(v.Status), pq.StringArray(v.Reasons), v.CreatedAt,
		v.ReviewedBy, v.ReviewedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"verification_id": v.ID,
			"request_id":      v.RequestID,
		}).Error("Failed to create verification")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create verification")
	}

	return nil
}

// GetByID retrieves a verification by id
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Verification, error) {
	ctx, span := tracing.StartSpan(ctx, "verification.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var v row
	if err := r.db.GetContext(ctx, &v, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("verification %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get verification")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get verification")
	}

	return v.toModel(), nil
}

// ListByRequestID retrieves every verification submitted under a caller
// request id, newest first. Request ids are not unique; resubmissions stack.
func (r *Repository) ListByRequestID(ctx context.Context, requestID string) ([]models.Verification, error) {
	ctx, span := tracing.StartSpan(ctx, "verification.Repository.ListByRequestID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("request_id", requestID))
	sb.OrderBy("created_at DESC", "id DESC")

	return r.selectMany(ctx, sb)
}

// List retrieves verifications matching the filter, newest first
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Verification, error) {
	ctx, span := tracing.StartSpan(ctx, "verification.Repository.List")
	defer span.End()

	limit := filter.Limit
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)

	where := []string{}
	if filter.DocumentType != "" {
		where = append(where, sb.Equal("document_type", filter.DocumentType))
	}
	if filter.Status != "" {
		where = append(where, sb.Equal("status", string(filter.Status)))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(limit)

	return r.selectMany(ctx, sb)
}

func (r *Repository) selectMany(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Verification, error) {
	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list verifications")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list verifications")
	}

	out := make([]models.Verification, 0, len(rows))
	for _, v := range rows {
		out = append(out, *v.toModel())
	}
	return out, nil
}

// Resolve transitions a MANUAL_REVIEW verification to VERIFIED or REJECTED.
// The transition is guarded in SQL so only one review ever lands; any other
// current status conflicts.
func (r *Repository) Resolve(ctx context.Context, id string, status models.VerificationStatus, reviewedBy string) (*models.Verification, error) {
	ctx, span := tracing.StartSpan(ctx, "verification.Repository.Resolve")
	defer span.End()

	if status != models.VerificationStatusVerified && status != models.VerificationStatusRejected {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("cannot resolve to status %q", status))
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"verification_id": id,
		"status":          string(status),
		"reviewed_by":     reviewedBy,
	})

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", string(status)),
		ub.Assign("reviewed_by", reviewedBy),
		ub.Assign("reviewed_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", string(models.VerificationStatusManualReview)),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Failed to resolve verification")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve verification")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("verification %s is %s, not %s", id, existing.Status, models.VerificationStatusManualReview))
	}

	log.Info("Resolved verification review")
	return r.GetByID(ctx, id)
}

// CountByStatus returns ledger counts grouped by status, for the stats
// surface.
func (r *Repository) CountByStatus(ctx context.Context, documentType string) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "verification.Repository.CountByStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("status", "COUNT(*) AS total")
	sb.From(table)
	if documentType != "" {
		sb.Where(sb.Equal("document_type", documentType))
	}
	sb.GroupBy("status")

	query, args := sb.Build()
	var rows []struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count verifications")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count verifications")
	}

	counts := make(map[string]int, len(rows))
	for _, c := range rows {
		counts[c.Status] = c.Total
	}
	return counts, nil
}
