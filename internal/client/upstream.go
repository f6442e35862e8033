// Package client provides the HTTP client routes forward requests with.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"proxy-http-go/internal/config"
	"proxy-http-go/internal/metrics"
	"proxy-http-go/internal/model"
)

// statusError labels upstream calls that produced no response.
const statusError = "error"

// UpstreamClient sends forwarded requests to route targets. One client is
// shared by every route of the engine.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with a pooled transport.
// Pass a nil m to disable upstream metrics.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	if cfg.Upstream.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed targets
		logger.Warn("TLS verification of upstream targets is disabled")
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			// Redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// DoStream sends one forwarded request to target and returns the response
// with its body unread. The caller closes the body. ctx bounds the whole
// exchange, so a client that disconnects cancels the upstream call.
func (c *UpstreamClient) DoStream(ctx context.Context, method, target string, header http.Header, body io.Reader) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header.Clone()
	if cl, err := strconv.ParseInt(header.Get("Content-Length"), 10, 64); err == nil && cl >= 0 {
		req.ContentLength = cl
	}

	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	if err != nil {
		c.observe(req, statusError, start)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	c.observe(req, strconv.Itoa(resp.StatusCode), start)

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// observe records one upstream call. Hosts come from configured targets, so
// the label stays bounded.
func (c *UpstreamClient) observe(req *http.Request, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	host := req.URL.Host
	c.metrics.UpstreamDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())
	c.metrics.UpstreamResponses.WithLabelValues(host, metrics.NormalizeMethod(req.Method), status).Inc()
}
