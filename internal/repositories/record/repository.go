// Package record persists the authoritative registry rows the matcher
// resolves claims against.
package record

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/fingerprint"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

const table = "records"

var columns = []string{
	"id", "document_type", "lookup_key", "id_hash", "id_masked",
	"canonical_name", "date_of_birth_or_issue", "address", "attributes",
	"source", "fingerprint", "created_at", "updated_at",
}

// row is the db-tagged shape of one registry record.
type row struct {
	ID                 string                            `db:"id"`
	DocumentType       string                            `db:"document_type"`
	LookupKey          string                            `db:"lookup_key"`
	IDHash             string                            `db:"id_hash"`
	IDMasked           string                            `db:"id_masked"`
	CanonicalName      string                            `db:"canonical_name"`
	DateOfBirthOrIssue string                            `db:"date_of_birth_or_issue"`
	Address            string                            `db:"address"`
	Attributes         database.JSONB[map[string]string] `db:"attributes"`
	Source             string                            `db:"source"`
	Fingerprint        string                            `db:"fingerprint"`
	CreatedAt          time.Time                         `db:"created_at"`
	UpdatedAt          time.Time                         `db:"updated_at"`
}

func (r row) toModel() *models.AuthoritativeRecord {
	return &models.AuthoritativeRecord{
		ID:                 r.ID,
		DocumentType:       r.DocumentType,
		LookupKey:          r.LookupKey,
		IDHash:             r.IDHash,
		IDMasked:           r.IDMasked,
		CanonicalName:      r.CanonicalName,
		DateOfBirthOrIssue: r.DateOfBirthOrIssue,
		Address:            r.Address,
		Attributes:         r.Attributes.Data,
		Source:             r.Source,
		Fingerprint:        r.Fingerprint,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// Repository handles authoritative record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByIDHash resolves a record by identifier digest. A miss is (nil, nil).
func (r *Repository) FindByIDHash(ctx context.Context, documentType, idHash string) (*models.AuthoritativeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.FindByIDHash")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("document_type", documentType),
		sb.Equal("id_hash", idHash),
	)

	return r.getOne(ctx, sb)
}

// FindByMasked resolves a record by its masked identifier form. Masked forms
// are not unique, so the oldest record wins for determinism. A miss is
// (nil, nil).
func (r *Repository) FindByMasked(ctx context.Context, documentType, masked string) (*models.AuthoritativeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.FindByMasked")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("document_type", documentType),
		sb.Equal("id_masked", masked),
	)
	sb.OrderBy("created_at ASC", "id ASC")
	sb.Limit(1)

	return r.getOne(ctx, sb)
}

func (r *Repository) getOne(ctx context.Context, sb *sqlbuilder.SelectBuilder) (*models.AuthoritativeRecord, error) {
	query, args := sb.Build()

	var rec row
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to look up record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up record")
	}
	return rec.toModel(), nil
}

// Candidates returns the fuzzy scoring page for a document type, oldest
// first so the page is stable between runs.
func (r *Repository) Candidates(ctx context.Context, documentType string, filter models.RecordFilter, limit int) ([]models.AuthoritativeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.Candidates")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)

	where := []string{sb.Equal("document_type", documentType)}
	if filter.BirthYear != "" {
		where = append(where, sb.Like("date_of_birth_or_issue", filter.BirthYear+"%"))
	}
	if filter.AttributeKey != "" {
		where = append(where, "attributes->>"+sb.Var(filter.AttributeKey)+" = "+sb.Var(filter.AttributeValue))
	}
	sb.Where(where...)
	sb.OrderBy("created_at ASC", "id ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to fetch candidate records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to fetch candidate records")
	}

	records := make([]models.AuthoritativeRecord, 0, len(rows))
	for _, rec := range rows {
		records = append(records, *rec.toModel())
	}
	return records, nil
}

// GetByID retrieves a record by its row id
func (r *Repository) GetByID(ctx context.Context, id string) (*models.AuthoritativeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	record, err := r.getOne(ctx, sb)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "record not found")
	}
	return record, nil
}

// List retrieves records for a document type, newest first
func (r *Repository) List(ctx context.Context, documentType string, page, pageSize int) ([]models.AuthoritativeRecord, int, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(table)
	countSb.Where(countSb.Equal("document_type", documentType))

	countQuery, countArgs := countSb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count records")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count records")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("document_type", documentType))
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list records")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list records")
	}

	records := make([]models.AuthoritativeRecord, 0, len(rows))
	for _, rec := range rows {
		records = append(records, *rec.toModel())
	}
	return records, total, nil
}

// Upsert writes one record keyed by (document_type, id_hash). An unchanged
// content fingerprint skips the write and returns the stored row; otherwise
// the row is inserted or updated in place, keeping its id and created_at.
func (r *Repository) Upsert(ctx context.Context, record *models.AuthoritativeRecord) (*models.AuthoritativeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "record.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":        "Upsert",
		"document_type": record.DocumentType,
	})

	newFingerprint := fingerprint.Record(*record)

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin upsert")
	}
	defer tx.Rollback(ctx)

	existing, err := r.lockExisting(txCtx, tx, record.DocumentType, record.IDHash)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Fingerprint == newFingerprint {
		if err := tx.Commit(ctx); err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit upsert")
		}
		log.WithFields(map[string]any{"record_id": existing.ID}).Debug("Record content unchanged, skipping write")
		return existing.toModel(), nil
	}

	now := time.Now().UTC()
	ib := database.NewInsertBuilder().
		InsertInto(table).
		Cols(columns...).
		Values(
			uuid.New().String(), record.DocumentType, record.LookupKey,
			record.IDHash, record.IDMasked, record.CanonicalName,
			record.DateOfBirthOrIssue, record.Address,
			database.NewJSONB(record.Attributes), record.Source,
			newFingerprint, now, now,
		)

	ub := ib.OnConflict("document_type", "id_hash")
	ub.Set(
		ub.Assign("id_masked", database.Excluded("id_masked")),
		ub.Assign("canonical_name", database.Excluded("canonical_name")),
		ub.Assign("date_of_birth_or_issue", database.Excluded("date_of_birth_or_issue")),
		ub.Assign("address", database.Excluded("address")),
		ub.Assign("attributes", database.Excluded("attributes")),
		ub.Assign("source", database.Excluded("source")),
		ub.Assign("fingerprint", database.Excluded("fingerprint")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := ib.Returning(columns...).Build()

	var stored row
	if err := tx.GetContext(txCtx, &stored, query, args...); err != nil {
		log.WithError(err).Error("Failed to upsert record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert record")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit upsert")
	}

	log.WithFields(map[string]any{"record_id": stored.ID}).Info("Upserted authoritative record")
	return stored.toModel(), nil
}

// lockExisting reads the current row under FOR UPDATE so concurrent upserts
// of the same identifier serialize on the fingerprint comparison.
func (r *Repository) lockExisting(ctx context.Context, tx database.Tx, documentType, idHash string) (*row, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("document_type", documentType),
		sb.Equal("id_hash", idHash),
	)
	sb.SQL("FOR UPDATE")

	query, args := sb.Build()
	var existing row
	if err := tx.GetContext(ctx, &existing, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock existing record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up record")
	}
	return &existing, nil
}
