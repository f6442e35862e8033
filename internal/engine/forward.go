package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"proxy-http-go/internal/middleware"
)

// serve forwards the request to r's target and streams the response back.
func (e *Engine) serve(c echo.Context, r *routeEntry, suffix string) error {
	req := c.Request()

	ctx := req.Context()
	if r.listen.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.listen.Timeout)
		defer cancel()
	}

	target := r.forward.upstreamURL(req.URL, suffix)
	header := req.Header.Clone()
	middleware.StripHopByHop(header)
	setForwardedHeaders(header, req)

	e.logger.Debug("forwarding request",
		"route", r.id,
		"method", req.Method,
		"path", req.URL.Path,
	)

	resp, err := e.fwd.DoStream(ctx, req.Method, target, header, req.Body)
	if err != nil {
		return e.mapError(c, r, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if r.forward.ThrowOnFailure && resp.StatusCode >= http.StatusMultipleChoices {
		e.logger.Warn("upstream returned failure status",
			"route", r.id,
			"status", resp.StatusCode,
			"path", req.URL.Path,
		)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": fmt.Sprintf("upstream returned status %d", resp.StatusCode),
		})
	}

	middleware.StripHopByHop(resp.Header)
	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent; a failed copy leaves the client with a
	// truncated body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		e.logger.Error("streaming response body",
			"err", err,
			"route", r.id,
			"path", req.URL.Path,
		)
	}
	return nil
}

func (e *Engine) mapError(c echo.Context, r *routeEntry, err error) error {
	e.logger.Error("forward error",
		"err", err,
		"route", r.id,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"error": "upstream request timed out",
			})
		}
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}

func setForwardedHeaders(h http.Header, req *http.Request) {
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			host = prior + ", " + host
		}
		h.Set("X-Forwarded-For", host)
	}
	h.Set("X-Forwarded-Host", req.Host)
	h.Set("X-Forwarded-Proto", "http")
}
