package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"proxy-http-go/internal/model"
	"proxy-http-go/internal/service"
)

// ProxyHandler manages proxy instances and lists engine routes.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// RouteView is one engine route in GET /routes.
type RouteView struct {
	ID     string            `json:"id"`
	Status model.RouteStatus `json:"status"`
	From   string            `json:"from"`
	To     string            `json:"to"`
}

// Routes lists every route registered with the engine, including routes of
// other proxies.
func (h *ProxyHandler) Routes(c echo.Context) error {
	routes := h.service.Routes()
	out := make([]RouteView, 0, len(routes))
	for _, r := range routes {
		out = append(out, RouteView{
			ID:     r.ID,
			Status: r.Status,
			From:   r.Descriptor.FromURI,
			To:     r.Descriptor.ToURI,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// List returns every proxy.
func (h *ProxyHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Proxies())
}

// Get returns one proxy.
func (h *ProxyHandler) Get(c echo.Context) error {
	p, err := h.service.Proxy(c.Param("name"))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Put creates or reconfigures a proxy. URIs missing from the body are
// cleared.
func (h *ProxyHandler) Put(c echo.Context) error {
	name := c.Param("name")

	var u model.ProxyUpdate
	if err := c.Bind(&u); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid proxy configuration body",
		})
	}

	created := h.service.Configure(name, &u)
	h.logger.Info("proxy configured", "proxy", name, "created", created)

	p, err := h.service.Proxy(name)
	if err != nil {
		return h.mapError(c, err)
	}
	if created {
		return c.JSON(http.StatusCreated, p)
	}
	return c.JSON(http.StatusOK, p)
}

// Delete removes a proxy and its routes.
func (h *ProxyHandler) Delete(c echo.Context) error {
	name := c.Param("name")
	if err := h.service.Remove(name); err != nil {
		return h.mapError(c, err)
	}
	h.logger.Info("proxy removed", "proxy", name)
	return c.NoContent(http.StatusNoContent)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrUnknownProxy) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "unknown proxy",
		})
	}

	h.logger.Error("admin request failed",
		"err", err,
		"path", c.Request().URL.Path,
	)
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "internal error",
	})
}
