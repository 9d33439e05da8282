package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-devproxy/internal/service"
)

// ProxyHandler forwards API requests to the upstream and writes the mapped
// response back.
type ProxyHandler struct {
	service *service.ForwardService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ForwardService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Forward relays a GET for remainder (the request target after the forwarding
// prefix) upstream. It never returns an upstream failure as an error; every
// outcome becomes a JSON response.
func (h *ProxyHandler) Forward(c echo.Context, remainder string) error {
	req := c.Request()
	if req.Method != http.MethodGet {
		return methodNotAllowed(c, "GET, OPTIONS")
	}

	resp := h.service.Forward(req.Context(), remainder)
	return c.Blob(resp.StatusCode, resp.ContentType, resp.Body)
}

// methodNotAllowed writes a 405 in the same JSON shape as upstream HTTP errors.
func methodNotAllowed(c echo.Context, allow string) error {
	c.Response().Header().Set(echo.HeaderAllow, allow)
	msg := fmt.Sprintf("%d - %s", http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	return c.Blob(http.StatusMethodNotAllowed, service.ContentTypeJSON, service.ErrorBody(msg))
}
