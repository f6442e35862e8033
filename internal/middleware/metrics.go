package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"proxy-http-go/internal/metrics"
)

// MetricsMiddleware records admin API request counts, durations and the
// in-flight gauge.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := responseStatus(c, err)
			method := metrics.NormalizeMethod(c.Request().Method)
			path := metrics.NormalizePath(c.Request().URL.Path)

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// ForwardMetrics counts requests served by one route listener.
func ForwardMetrics(m *metrics.Metrics, listener string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			m.ForwardedRequests.WithLabelValues(listener, responseStatus(c, err)).Inc()
			return err
		}
	}
}

// responseStatus is statusCode as a metric label.
func responseStatus(c echo.Context, err error) string {
	return strconv.Itoa(statusCode(c, err))
}

// statusCode reports the status the client will see. An *echo.HTTPError is
// written later by the central error handler, so its code wins over the
// response status.
func statusCode(c echo.Context, err error) int {
	code := c.Response().Status
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}
	return code
}
