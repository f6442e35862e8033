package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"proxy-http-go/internal/metrics"
	"proxy-http-go/internal/middleware"
)

// ErrPathConflict is returned when a started route already serves the same
// path on the same address.
var ErrPathConflict = errors.New("path already served")

// serveFunc forwards a request matched to r. suffix is the part of the
// request path below the route's listen path.
type serveFunc func(c echo.Context, r *routeEntry, suffix string) error

// listener is one HTTP server shared by every started route listening on
// the same host:port.
type listener struct {
	addr   string
	echo   *echo.Echo
	ln     net.Listener
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string]*routeEntry // by listen path
}

func newListener(addr string, serve serveFunc, logger *slog.Logger, m *metrics.Metrics) (*listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}

	l := &listener{
		addr:   addr,
		ln:     ln,
		logger: logger.With("listener", addr),
		routes: make(map[string]*routeEntry),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.IdleTimeout = 120 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(l.logger))
	if m != nil {
		e.Use(middleware.ForwardMetrics(m, addr))
	}

	e.Any("/*", func(c echo.Context) error {
		r, suffix := l.lookup(c.Request().URL.Path)
		if r == nil {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "no route for path",
			})
		}
		c.Set(middleware.RouteIDKey, r.id)
		return serve(c, r, suffix)
	})
	l.echo = e

	go func() {
		if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("listener error", "err", err)
		}
	}()
	l.logger.Info("listener started", "bound", ln.Addr().String())
	return l, nil
}

// boundAddr returns the address the listener actually bound, which differs
// from addr when port 0 was requested.
func (l *listener) boundAddr() string {
	return l.ln.Addr().String()
}

func (l *listener) register(r *routeEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if other, ok := l.routes[r.listen.Path]; ok && other != r {
		return fmt.Errorf("%w: %s%s by route %s", ErrPathConflict, l.addr, r.listen.Path, other.id)
	}
	l.routes[r.listen.Path] = r
	return nil
}

func (l *listener) unregister(r *routeEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.routes[r.listen.Path] == r {
		delete(l.routes, r.listen.Path)
	}
}

func (l *listener) idle() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.routes) == 0
}

// lookup returns the route serving path. An exact match wins over prefix
// matches, and the longest prefix wins among those.
func (l *listener) lookup(path string) (*routeEntry, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if r, ok := l.routes[path]; ok {
		return r, ""
	}

	var best *routeEntry
	var bestSuffix string
	for _, r := range l.routes {
		suffix, ok := r.listen.matches(path)
		if !ok {
			continue
		}
		if best == nil || len(r.listen.Path) > len(best.listen.Path) {
			best, bestSuffix = r, suffix
		}
	}
	return best, bestSuffix
}

func (l *listener) shutdown(ctx context.Context) error {
	l.logger.Info("listener stopping")
	return l.echo.Shutdown(ctx)
}
