package record

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/laurel/internal/repositories/record"
	"github.com/Ramsey-B/laurel/pkg/events"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

var validate = validator.New()

// Writer is the record write surface. When the record cache is enabled it
// fronts the repository here, so admin upserts drop the cached digest entry.
type Writer interface {
	Upsert(ctx context.Context, record *models.AuthoritativeRecord) (*models.AuthoritativeRecord, error)
}

// Register registers authoritative record admin routes
func Register(g *echo.Group) {
	g.POST("", Upsert)
	g.GET("", List)
	g.GET("/:id", Get)
}

// Upsert ingests one authoritative record, normalizing and fingerprinting
// the identifier server-side
func Upsert(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.Upsert")
	defer span.End()

	var req models.UpsertRecordRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, writer, err := ectoinject.GetContext[Writer](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	stored, err := writer.Upsert(ctx, record.FromRequest(&req))
	if err != nil {
		return err
	}

	ctx, emitter, _ := ectoinject.GetContext[*events.Emitter](ctx)
	if emitter != nil {
		_ = emitter.EmitRecordUpserted(ctx, stored)
	}

	return c.JSON(http.StatusOK, stored)
}

// Get returns a single record by id
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.Get")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*record.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// List returns records for a document type, newest first
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.List")
	defer span.End()

	documentType := c.QueryParam("document_type")
	if documentType == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "document_type is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	ctx, repo, err := ectoinject.GetContext[*record.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, totalCount, err := repo.List(ctx, documentType, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.RecordListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}
