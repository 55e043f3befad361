package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gemini-lite-go/internal/config"
	"gemini-lite-go/internal/metrics"
)

// RegisterRoutes wires the admin endpoints onto the Echo instance.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		Registry: m.Registry,
	})))
}
