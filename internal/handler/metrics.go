package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cors-relay/internal/metrics"
)

// RegisterMetrics exposes the Prometheus registry on path.
func RegisterMetrics(e *echo.Echo, path string, m *metrics.Metrics) {
	e.GET(path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}
