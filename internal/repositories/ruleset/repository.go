// Package ruleset persists per-document-type matching configuration. The
// in-memory rules registry is loaded from here on startup and after writes.
package ruleset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/rules"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

const table = "rule_sets"

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

var columns = []string{
	"id", "document_type", "display_name", "identifier", "fuzzy", "weights",
	"allow_record_upsert", "is_active", "created_at", "updated_at",
}

// row is the db-tagged shape of one rule set.
type row struct {
	ID                string                                `db:"id"`
	DocumentType      string                                `db:"document_type"`
	DisplayName       string                                `db:"display_name"`
	Identifier        database.JSONB[models.IdentifierSpec] `db:"identifier"`
	Fuzzy             database.JSONB[models.FuzzySpec]      `db:"fuzzy"`
	Weights           database.JSONB[*models.ScoreWeights]  `db:"weights"`
	AllowRecordUpsert bool                                  `db:"allow_record_upsert"`
	IsActive          bool                                  `db:"is_active"`
	CreatedAt         time.Time                             `db:"created_at"`
	UpdatedAt         time.Time                             `db:"updated_at"`
}

func (r row) toModel() *models.RuleSet {
	return &models.RuleSet{
		ID:                r.ID,
		DocumentType:      r.DocumentType,
		DisplayName:       r.DisplayName,
		Identifier:        r.Identifier.Data,
		Fuzzy:             r.Fuzzy.Data,
		Weights:           r.Weights.Data,
		AllowRecordUpsert: r.AllowRecordUpsert,
		IsActive:          r.IsActive,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// Repository handles rule set persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new rule set repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create registers a rule set for a document type. One rule set per type;
// a second registration conflicts.
func (r *Repository) Create(ctx context.Context, req models.CreateRuleSetRequest) (*models.RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":        "Create",
		"document_type": req.DocumentType,
	})

	now := time.Now().UTC()
	set := &models.RuleSet{
		ID:                uuid.New().String(),
		DocumentType:      req.DocumentType,
		DisplayName:       req.DisplayName,
		Identifier:        req.Identifier,
		Fuzzy:             req.Fuzzy,
		Weights:           req.Weights,
		AllowRecordUpsert: req.AllowRecordUpsert,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := rules.Validate(set); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(
		set.ID, set.DocumentType, set.DisplayName,
		database.NewJSONB(set.Identifier), database.NewJSONB(set.Fuzzy),
		database.NewJSONB(set.Weights), set.AllowRecordUpsert, set.IsActive,
		set.CreatedAt, set.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, httperror.NewHTTPError(http.StatusConflict,
				fmt.Sprintf("rule set for document type %q already exists", req.DocumentType))
		}
		log.WithError(err).Error("Failed to create rule set")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create rule set")
	}

	log.WithFields(map[string]any{"id": set.ID}).Info("Created rule set")
	return set, nil
}

// Get retrieves a rule set by id
func (r *Repository) Get(ctx context.Context, id string) (*models.RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	return r.getOne(ctx, sb, fmt.Sprintf("rule set %s not found", id))
}

// GetByDocumentType retrieves the rule set for a document type
func (r *Repository) GetByDocumentType(ctx context.Context, documentType string) (*models.RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.GetByDocumentType")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("document_type", documentType))

	return r.getOne(ctx, sb, fmt.Sprintf("no rule set for document type %q", documentType))
}

func (r *Repository) getOne(ctx context.Context, sb *sqlbuilder.SelectBuilder, notFound string) (*models.RuleSet, error) {
	query, args := sb.Build()
	var set row
	if err := r.db.GetContext(ctx, &set, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, notFound)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get rule set")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get rule set")
	}
	return set.toModel(), nil
}

// List retrieves every rule set, active or not
func (r *Repository) List(ctx context.Context) ([]models.RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.OrderBy("document_type ASC")

	return r.selectMany(ctx, sb)
}

// ListActive retrieves the active rule sets the registry loads
func (r *Repository) ListActive(ctx context.Context) ([]models.RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("is_active", true))
	sb.OrderBy("document_type ASC")

	return r.selectMany(ctx, sb)
}

func (r *Repository) selectMany(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.RuleSet, error) {
	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list rule sets")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list rule sets")
	}

	sets := make([]models.RuleSet, 0, len(rows))
	for _, set := range rows {
		sets = append(sets, *set.toModel())
	}
	return sets, nil
}

// Update applies a partial update to a rule set
func (r *Repository) Update(ctx context.Context, id string, req models.UpdateRuleSetRequest) (*models.RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.Update")
	defer span.End()

	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		existing.DisplayName = *req.DisplayName
	}
	if req.Identifier != nil {
		existing.Identifier = *req.Identifier
	}
	if req.Fuzzy != nil {
		existing.Fuzzy = *req.Fuzzy
	}
	if req.Weights != nil {
		existing.Weights = req.Weights
	}
	if req.AllowRecordUpsert != nil {
		existing.AllowRecordUpsert = *req.AllowRecordUpsert
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	existing.UpdatedAt = time.Now().UTC()

	if err := rules.Validate(existing); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("display_name", existing.DisplayName),
		ub.Assign("identifier", database.NewJSONB(existing.Identifier)),
		ub.Assign("fuzzy", database.NewJSONB(existing.Fuzzy)),
		ub.Assign("weights", database.NewJSONB(existing.Weights)),
		ub.Assign("allow_record_upsert", existing.AllowRecordUpsert),
		ub.Assign("is_active", existing.IsActive),
		ub.Assign("updated_at", existing.UpdatedAt),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update rule set")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update rule set")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Updated rule set")
	return existing, nil
}
