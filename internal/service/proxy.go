// Package service manages the named proxy instances sharing one routing
// engine.
package service

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"proxy-http-go/internal/config"
	"proxy-http-go/internal/metrics"
	"proxy-http-go/internal/model"
	"proxy-http-go/internal/route"
)

// ErrUnknownProxy is returned for proxy names that are not configured.
var ErrUnknownProxy = errors.New("unknown proxy")

// ProxyStatus describes one proxy instance.
type ProxyStatus struct {
	Name        string            `json:"name"`
	Config      model.ProxyConfig `json:"config"`
	State       route.State       `json:"state"`
	OwnedRoutes []string          `json:"owned_routes"`
}

// ProxyService owns one route.Controller per configured proxy.
type ProxyService struct {
	engine     route.Engine
	logger     *slog.Logger
	baseLogger *slog.Logger
	metrics    *metrics.Metrics
	opts       []route.Option

	mu      sync.Mutex
	proxies map[string]*route.Controller
	order   []string
}

// NewProxyService creates a ProxyService without proxies. Call Apply to
// create the configured ones. The metrics parameter is optional.
func NewProxyService(eng route.Engine, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	s := &ProxyService{
		engine:     eng,
		logger:     logger.With("component", "proxy_service"),
		baseLogger: logger,
		metrics:    m,
		proxies:    make(map[string]*route.Controller),
	}
	if m != nil {
		s.opts = append(s.opts, route.WithMetrics(m))
	}
	if cfg.Engine.SerializePasses {
		s.opts = append(s.opts, route.WithEngineLock(&sync.Mutex{}))
	}
	return s
}

// Apply reconciles the running proxies with entries. New names are created
// and initialized, changed entries are updated, and proxies missing from
// entries are destroyed. Unchanged proxies are left alone.
func (s *ProxyService) Apply(entries []config.ProxyEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(entries))
	for _, entry := range entries {
		wanted[entry.Name] = true
		cfg := entry.ProxyConfig()

		c, ok := s.proxies[entry.Name]
		if !ok {
			s.createLocked(entry.Name, cfg)
			continue
		}
		if c.Config() == cfg {
			s.logger.Debug("proxy unchanged", "proxy", entry.Name)
			continue
		}
		s.logger.Info("updating proxy", "proxy", entry.Name)
		c.Update(model.NewProxyUpdate(cfg.ProxyURI, cfg.TargetURI))
	}

	for _, name := range slices.Clone(s.order) {
		if !wanted[name] {
			s.removeLocked(name)
		}
	}
}

// Configure creates or updates the named proxy. It reports whether the proxy
// was created. A nil update on an existing proxy changes nothing.
func (s *ProxyService) Configure(name string, u *model.ProxyUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.proxies[name]; ok {
		c.Update(u)
		return false
	}
	s.createLocked(name, u.Apply(model.ProxyConfig{}))
	return true
}

// Remove destroys the named proxy and its routes.
func (s *ProxyService) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.proxies[name]; !ok {
		return ErrUnknownProxy
	}
	s.removeLocked(name)
	return nil
}

// Proxies returns the status of every proxy in creation order.
func (s *ProxyService) Proxies() []ProxyStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ProxyStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, status(s.proxies[name]))
	}
	return out
}

// Proxy returns the status of the named proxy.
func (s *ProxyService) Proxy(name string) (ProxyStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.proxies[name]
	if !ok {
		return ProxyStatus{}, ErrUnknownProxy
	}
	return status(c), nil
}

// Routes returns every route registered with the engine.
func (s *ProxyService) Routes() []model.RouteHandle {
	return s.engine.ListRoutes()
}

// Shutdown destroys every proxy.
func (s *ProxyService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range slices.Clone(s.order) {
		s.removeLocked(name)
	}
	s.logger.Info("all proxies removed")
}

func (s *ProxyService) createLocked(name string, cfg model.ProxyConfig) {
	c := route.NewController(name, s.engine, s.baseLogger, s.opts...)
	c.SetProxyURI(cfg.ProxyURI)
	c.SetTargetURI(cfg.TargetURI)

	s.logger.Info("creating proxy", "proxy", name, "proxy_uri", cfg.ProxyURI, "target_uri", cfg.TargetURI)
	c.Init()

	s.proxies[name] = c
	s.order = append(s.order, name)
}

func (s *ProxyService) removeLocked(name string) {
	c := s.proxies[name]
	s.logger.Info("removing proxy", "proxy", name)
	c.Destroy()

	delete(s.proxies, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	if s.metrics != nil {
		s.metrics.OwnedRoutes.DeleteLabelValues(name)
	}
}

func status(c *route.Controller) ProxyStatus {
	owned := c.OwnedRoutes()
	if owned == nil {
		owned = []string{}
	}
	return ProxyStatus{
		Name:        c.Name(),
		Config:      c.Config(),
		State:       c.State(),
		OwnedRoutes: owned,
	}
}
