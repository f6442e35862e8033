package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"proxy-http-go/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	proxies *service.ProxyService
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(svc *service.ProxyService, v Version) *HealthHandler {
	return &HealthHandler{proxies: svc, version: v}
}

// Healthz returns a simple OK response for liveness checks.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusResponse is the body of GET /proxy/status.
type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Proxies int    `json:"proxies"`
	Routes  int    `json:"routes"`
}

// Status returns the build version and proxy and route counts.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "ok",
		Version: string(h.version),
		Proxies: len(h.proxies.Proxies()),
		Routes:  len(h.proxies.Routes()),
	})
}
