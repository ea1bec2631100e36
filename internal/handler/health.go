package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-relay/internal/provider"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	providers *provider.Set
	version   Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(providers *provider.Set, v Version) *HealthHandler {
	return &HealthHandler{providers: providers, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Upstreams map[string]string `json:"upstreams"`
}

// Status reports the build version and where each provider marker relays to.
func (h *HealthHandler) Status(c echo.Context) error {
	upstreams := make(map[string]string)
	for _, p := range h.providers.All() {
		upstreams[p.Route.String()] = p.BaseURL.String()
	}
	return c.JSON(http.StatusOK, statusResponse{
		Status:    "ok",
		Version:   string(h.version),
		Upstreams: upstreams,
	})
}
