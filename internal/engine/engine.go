// Package engine implements the shared routing engine: a table of HTTP
// forwarding routes, each listening on a local address and forwarding to an
// upstream target.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"proxy-http-go/internal/config"
	"proxy-http-go/internal/metrics"
	"proxy-http-go/internal/model"
)

// ErrRouteNotFound is returned for route ids the engine does not know.
var ErrRouteNotFound = errors.New("route not found")

const defaultShutdownTimeout = 15 * time.Second

// Forwarder sends a request upstream. client.UpstreamClient implements it.
type Forwarder interface {
	DoStream(ctx context.Context, method, url string, header http.Header, body io.Reader) (*model.ProxyResponse, error)
}

type routeEntry struct {
	id      string
	desc    model.RouteDescriptor
	listen  ListenEndpoint
	forward ForwardEndpoint
	status  model.RouteStatus
}

func (r *routeEntry) handle() model.RouteHandle {
	return model.RouteHandle{ID: r.id, Status: r.status, Descriptor: r.desc}
}

// Engine holds the routes of every proxy instance in the process.
//
// All route operations are serialized by one mutex. Routes added before
// Start stay stopped until Start or StartRoute; routes added while the
// engine runs are started immediately.
type Engine struct {
	fwd             Forwarder
	logger          *slog.Logger
	metrics         *metrics.Metrics
	shutdownTimeout time.Duration

	mu        sync.Mutex
	running   bool
	routes    []*routeEntry
	listeners map[string]*listener
}

// New creates a stopped Engine. The metrics parameter is optional.
func New(cfg *config.Config, fwd Forwarder, logger *slog.Logger, m *metrics.Metrics) *Engine {
	shutdownTimeout := time.Duration(cfg.Engine.ShutdownTimeoutSeconds) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Engine{
		fwd:             fwd,
		logger:          logger.With("component", "engine"),
		metrics:         m,
		shutdownTimeout: shutdownTimeout,
		listeners:       make(map[string]*listener),
	}
}

// Start marks the engine running and starts every registered route.
// Routes that fail to start stay stopped; their errors are joined.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running = true
	var errs []error
	for _, r := range e.routes {
		if err := e.startLocked(r); err != nil {
			errs = append(errs, fmt.Errorf("start route %s: %w", r.id, err))
		}
	}
	e.observeLocked()
	e.logger.Info("engine started", "routes", len(e.routes))
	return errors.Join(errs...)
}

// Stop stops every route and closes all listeners. Routes stay registered.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running = false
	for _, r := range e.routes {
		r.status = model.StatusStopped
	}

	var errs []error
	for addr, l := range e.listeners {
		if err := l.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shut down listener %s: %w", addr, err))
		}
		delete(e.listeners, addr)
	}
	e.observeLocked()
	e.logger.Info("engine stopped")
	return errors.Join(errs...)
}

// Running reports whether Start has been called without a later Stop.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// AddRoute parses and registers d. A running engine also starts the route;
// when that fails the route is dropped again and the error returned.
func (e *Engine) AddRoute(d model.RouteDescriptor) (model.RouteHandle, error) {
	listen, err := ParseListen(d.FromURI)
	if err != nil {
		return model.RouteHandle{}, fmt.Errorf("add route from %s: %w", d.FromURI, err)
	}
	forward, err := ParseForward(d.ToURI)
	if err != nil {
		return model.RouteHandle{}, fmt.Errorf("add route to %s: %w", d.ToURI, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r := &routeEntry{
		id:      uuid.NewString(),
		desc:    d,
		listen:  listen,
		forward: forward,
		status:  model.StatusStopped,
	}
	if e.running {
		if err := e.startLocked(r); err != nil {
			return model.RouteHandle{}, fmt.Errorf("add route from %s: %w", d.FromURI, err)
		}
	}
	e.routes = append(e.routes, r)
	e.observeLocked()

	e.logger.Debug("route added", "route", r.id, "from", d.FromURI, "to", d.ToURI, "status", r.status.String())
	return r.handle(), nil
}

// ListRoutes returns every registered route in registration order.
func (e *Engine) ListRoutes() []model.RouteHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.RouteHandle, 0, len(e.routes))
	for _, r := range e.routes {
		out = append(out, r.handle())
	}
	return out
}

// RouteStatus returns the status of id, or StatusUnknown.
func (e *Engine) RouteStatus(id string) model.RouteStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r := e.findLocked(id); r != nil {
		return r.status
	}
	return model.StatusUnknown
}

// StartRoute starts id. Starting a started route is a no-op.
func (e *Engine) StartRoute(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.findLocked(id)
	if r == nil {
		return fmt.Errorf("start route %s: %w", id, ErrRouteNotFound)
	}
	if err := e.startLocked(r); err != nil {
		return fmt.Errorf("start route %s: %w", id, err)
	}
	e.observeLocked()
	return nil
}

// StopRoute stops id. Stopping a stopped route is a no-op.
func (e *Engine) StopRoute(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.findLocked(id)
	if r == nil {
		return fmt.Errorf("stop route %s: %w", id, ErrRouteNotFound)
	}
	err := e.stopLocked(r)
	e.observeLocked()
	if err != nil {
		return fmt.Errorf("stop route %s: %w", id, err)
	}
	return nil
}

// RemoveRoute drops a stopped route. It returns false when id is unknown or
// the route is still started.
func (e *Engine) RemoveRoute(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.routes {
		if r.id != id {
			continue
		}
		if r.status == model.StatusStarted {
			return false, nil
		}
		e.routes = append(e.routes[:i], e.routes[i+1:]...)
		e.observeLocked()
		e.logger.Debug("route removed", "route", id)
		return true, nil
	}
	return false, nil
}

// Addr returns the address route id is served on, or "" when it is not
// started.
func (e *Engine) Addr(id string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.findLocked(id)
	if r == nil || r.status != model.StatusStarted {
		return ""
	}
	if l, ok := e.listeners[r.listen.Addr]; ok {
		return l.boundAddr()
	}
	return ""
}

func (e *Engine) findLocked(id string) *routeEntry {
	for _, r := range e.routes {
		if r.id == id {
			return r
		}
	}
	return nil
}

func (e *Engine) startLocked(r *routeEntry) error {
	if r.status == model.StatusStarted {
		return nil
	}

	l, ok := e.listeners[r.listen.Addr]
	if !ok {
		var err error
		l, err = newListener(r.listen.Addr, e.serve, e.logger, e.metrics)
		if err != nil {
			return err
		}
		e.listeners[r.listen.Addr] = l
	}

	if err := l.register(r); err != nil {
		_ = e.closeIfIdleLocked(l)
		return err
	}
	r.status = model.StatusStarted
	e.logger.Debug("route started", "route", r.id, "addr", r.listen.Addr, "path", r.listen.Path)
	return nil
}

func (e *Engine) stopLocked(r *routeEntry) error {
	if r.status != model.StatusStarted {
		return nil
	}
	r.status = model.StatusStopped

	l, ok := e.listeners[r.listen.Addr]
	if !ok {
		return nil
	}
	l.unregister(r)
	e.logger.Debug("route stopped", "route", r.id)
	return e.closeIfIdleLocked(l)
}

// closeIfIdleLocked shuts l down once no route is registered on it.
func (e *Engine) closeIfIdleLocked(l *listener) error {
	if !l.idle() {
		return nil
	}

	delete(e.listeners, l.addr)
	ctx, cancel := context.WithTimeout(context.Background(), e.shutdownTimeout)
	defer cancel()
	if err := l.shutdown(ctx); err != nil {
		return fmt.Errorf("shut down listener %s: %w", l.addr, err)
	}
	return nil
}

func (e *Engine) observeLocked() {
	if e.metrics == nil {
		return
	}
	var started, stopped int
	for _, r := range e.routes {
		if r.status == model.StatusStarted {
			started++
		} else {
			stopped++
		}
	}
	e.metrics.EngineRoutes.WithLabelValues(model.StatusStarted.String()).Set(float64(started))
	e.metrics.EngineRoutes.WithLabelValues(model.StatusStopped.String()).Set(float64(stopped))
}
