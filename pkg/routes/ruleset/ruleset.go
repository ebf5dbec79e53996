package ruleset

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/laurel/internal/repositories/ruleset"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/rules"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

var validate = validator.New()

// Register registers rule set routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Create)
	g.POST("/reload", Reload)
	g.GET("/:id", Get)
	g.PUT("/:id", Update)
	g.GET("/type/:documentType", GetByType)
}

// List returns all rule sets. Pass active=true to only return the ones the
// registry serves.
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ruleset_handler.List")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*ruleset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var items []models.RuleSet
	if c.QueryParam("active") == "true" {
		items, err = repo.ListActive(ctx)
	} else {
		items, err = repo.List(ctx)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.RuleSetListResponse{
		Items: items,
		Count: len(items),
	})
}

// Create registers a rule set for a new document type and makes it live
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ruleset_handler.Create")
	defer span.End()

	var req models.CreateRuleSetRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*ruleset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.Create(ctx, req)
	if err != nil {
		return err
	}

	syncRegistry(ctx, result)

	return c.JSON(http.StatusCreated, result)
}

// Get returns a single rule set by id
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ruleset_handler.Get")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*ruleset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// GetByType returns the rule set configured for a document type
func GetByType(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ruleset_handler.GetByType")
	defer span.End()

	documentType := c.Param("documentType")

	ctx, repo, err := ectoinject.GetContext[*ruleset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.GetByDocumentType(ctx, documentType)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Update applies a partial update to a rule set and syncs the registry
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ruleset_handler.Update")
	defer span.End()

	id := c.Param("id")

	var req models.UpdateRuleSetRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, repo, err := ectoinject.GetContext[*ruleset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.Update(ctx, id, req)
	if err != nil {
		return err
	}

	syncRegistry(ctx, result)

	return c.JSON(http.StatusOK, result)
}

// Reload replaces the live registry with the active rule sets from the
// database. Claims in flight keep the snapshot they started with.
func Reload(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ruleset_handler.Reload")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*ruleset.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	sets, err := repo.ListActive(ctx)
	if err != nil {
		return err
	}

	ctx, registry, err := ectoinject.GetContext[*rules.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "registry unavailable")
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	registry.Load(rules.Filter(sets, func(set *models.RuleSet, err error) {
		if logger != nil {
			logger.WithContext(ctx).WithError(err).Warnf("Skipping invalid rule set %s", set.DocumentType)
		}
	}))

	return c.JSON(http.StatusOK, map[string]any{
		"loaded": registry.Count(),
		"types":  registry.Types(),
	})
}

// syncRegistry pushes a stored rule set into the live registry so the next
// claim sees it without a restart.
func syncRegistry(ctx context.Context, set *models.RuleSet) {
	_, registry, err := ectoinject.GetContext[*rules.Registry](ctx)
	if err != nil {
		return
	}
	if set.IsActive {
		registry.Update(set)
	} else {
		registry.Remove(set.DocumentType)
	}
}
