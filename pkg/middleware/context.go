package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	pkgcontext "github.com/Ramsey-B/laurel/pkg/context"
)

// HeaderReviewer identifies the operator resolving a manual review.
const HeaderReviewer = "X-Reviewer"

// Context seeds the request context with the identity fields the rest of the
// service logs and returns.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = pkgcontext.SetRequestID(ctx, requestID)
			ctx = pkgcontext.SetMethod(ctx, req.Method)
			ctx = pkgcontext.SetRoute(ctx, c.Path())
			ctx = pkgcontext.SetRemoteIP(ctx, c.RealIP())
			if reviewer := req.Header.Get(HeaderReviewer); reviewer != "" {
				ctx = pkgcontext.SetReviewer(ctx, reviewer)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
