package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all admin API handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.GET("/routes", proxy.Routes)
	e.GET("/proxies", proxy.List)
	e.GET("/proxies/:name", proxy.Get)
	e.PUT("/proxies/:name", proxy.Put)
	e.DELETE("/proxies/:name", proxy.Delete)
}
