package verification

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectolinq"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/laurel/internal/repositories/verification"
	pkgcontext "github.com/Ramsey-B/laurel/pkg/context"
	"github.com/Ramsey-B/laurel/pkg/events"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/pipeline"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// Register registers verification routes
func Register(g *echo.Group) {
	g.POST("", Submit)
	g.GET("", List)
	g.GET("/stats", Stats)
	g.GET("/:id", Get)
	g.GET("/request/:requestID", ListByRequest)
	g.POST("/:id/approve", Approve)
	g.POST("/:id/reject", Reject)
}

// Submit runs one claim through the verification pipeline
func Submit(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "verification_handler.Submit")
	defer span.End()

	var claim models.VerificationClaim
	if err := c.Bind(&claim); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// HTTP callers usually correlate via the X-Request-Id header; fall back
	// to it when the body omits request_id.
	if claim.RequestID == "" {
		claim.RequestID = pkgcontext.GetRequestID(ctx)
	}

	ctx, service, err := ectoinject.GetContext[*pipeline.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := service.Verify(ctx, &claim)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidClaim) {
			return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if errors.Is(err, pipeline.ErrStoreUnavailable) {
			return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return httperror.NewHTTPError(http.StatusInternalServerError, "verification failed")
	}

	return c.JSON(http.StatusCreated, result)
}

// List returns recent verifications, optionally filtered by document type
// and status
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "verification_handler.List")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	filter := verification.ListFilter{
		DocumentType: c.QueryParam("document_type"),
		Status:       models.VerificationStatus(c.QueryParam("status")),
		Limit:        limit,
	}

	ctx, repo, err := ectoinject.GetContext[*verification.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, err := repo.List(ctx, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.VerificationListResponse{
		Items: ectolinq.Map(items, func(v models.Verification) models.VerificationSummary {
			return v.Summary()
		}),
		Count: len(items),
	})
}

// Stats returns verification counts grouped by status
func Stats(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "verification_handler.Stats")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*verification.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	counts, err := repo.CountByStatus(ctx, c.QueryParam("document_type"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, counts)
}

// Get returns a single verification by id
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "verification_handler.Get")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*verification.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// ListByRequest returns every verification recorded for a caller request id.
// Identical claims are never deduplicated, so one request id can map to
// several verifications.
func ListByRequest(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "verification_handler.ListByRequest")
	defer span.End()

	requestID := c.Param("requestID")

	ctx, repo, err := ectoinject.GetContext[*verification.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, err := repo.ListByRequestID(ctx, requestID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, items)
}

// Approve resolves a MANUAL_REVIEW verification as VERIFIED
func Approve(c echo.Context) error {
	return resolve(c, models.VerificationStatusVerified, "verification_handler.Approve")
}

// Reject resolves a MANUAL_REVIEW verification as REJECTED
func Reject(c echo.Context) error {
	return resolve(c, models.VerificationStatusRejected, "verification_handler.Reject")
}

func resolve(c echo.Context, status models.VerificationStatus, spanName string) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, spanName)
	defer span.End()

	id := c.Param("id")

	var req models.ReviewRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ReviewedBy == "" {
		req.ReviewedBy = pkgcontext.GetReviewer(ctx)
	}
	if req.ReviewedBy == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "reviewed_by is required")
	}

	ctx, repo, err := ectoinject.GetContext[*verification.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.Resolve(ctx, id, status, req.ReviewedBy)
	if err != nil {
		return err
	}

	// Downstream consumers hear about the reviewed verdict the same way they
	// hear about automatic ones.
	ctx, emitter, _ := ectoinject.GetContext[*events.Emitter](ctx)
	if emitter != nil {
		_ = emitter.EmitVerificationCompleted(ctx, result)
	}

	return c.JSON(http.StatusOK, result)
}
