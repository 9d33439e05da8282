package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"cors-devproxy/internal/config"
)

// StaticHandler serves files from the static root. Directory listings, MIME
// types, and missing-file errors are left to Echo's static middleware.
type StaticHandler struct {
	serve echo.HandlerFunc
}

// NewStaticHandler creates a StaticHandler for cfg.Static.
func NewStaticHandler(cfg *config.Config) *StaticHandler {
	static := echomw.StaticWithConfig(echomw.StaticConfig{
		Root:   cfg.Static.Root,
		Browse: cfg.Static.BrowseEnabled(),
	})
	return &StaticHandler{
		serve: static(func(echo.Context) error { return echo.ErrNotFound }),
	}
}

// Serve answers GET and HEAD from the filesystem.
func (h *StaticHandler) Serve(c echo.Context) error {
	switch c.Request().Method {
	case http.MethodGet, http.MethodHead:
		return h.serve(c)
	default:
		return methodNotAllowed(c, "GET, HEAD, OPTIONS")
	}
}
