package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Cross-origin header values attached to every response.
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, OPTIONS"
	CORSAllowHeaders = "X-Requested-With"
)

// CORS returns an Echo middleware that attaches the permissive cross-origin
// headers to every response and answers preflight (OPTIONS) requests with
// 204 No Content.
//
// The headers are set before the rest of the chain runs, so responses written
// by handlers, by Echo's error handler, or after a recovered panic all carry
// them. Set replaces any earlier value, so each header appears exactly once.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, CORSAllowOrigin)
			h.Set(echo.HeaderAccessControlAllowMethods, CORSAllowMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, CORSAllowHeaders)

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}

			return next(c)
		}
	}
}
