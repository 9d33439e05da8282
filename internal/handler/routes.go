package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cors-devproxy/internal/config"
	"cors-devproxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Everything
// outside the proxy's own endpoints goes through the dispatcher.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, d *Dispatcher, health *HealthHandler, m *metrics.Metrics) {
	e.GET(config.HealthzPath, health.Healthz)
	e.GET(config.StatusPath, health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/*", d.Serve)
}
