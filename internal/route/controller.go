package route

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"proxy-http-go/internal/metrics"
	"proxy-http-go/internal/model"
)

// State is the lifecycle state of a Controller.
type State int32

const (
	StateUninitialized State = iota
	StateConfigured
	StateStarted
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateStarted:
		return "started"
	case StateRemoved:
		return "removed"
	default:
		return "uninitialized"
	}
}

// MarshalText renders the state by name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "configured":
		*s = StateConfigured
	case "started":
		*s = StateStarted
	case "removed":
		*s = StateRemoved
	default:
		*s = StateUninitialized
	}
	return nil
}

// Engine operation names used in logs and metrics.
const (
	opAdd    = "add"
	opStart  = "start"
	opStop   = "stop"
	opRemove = "remove"
)

// Option configures a Controller.
type Option func(*Controller)

// WithEngineLock makes every configure and remove pass hold l. Pass the same
// lock to all controllers sharing an engine that does not serialize its own
// operations.
func WithEngineLock(l sync.Locker) Option {
	return func(c *Controller) {
		c.engineLock = l
	}
}

// WithMetrics records configure outcomes, sweep failures and owned route
// counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller keeps exactly one route alive in a shared Engine for one proxy
// instance and rebuilds it whenever the instance is reconfigured.
//
// Passes on one Controller are serialized. A Controller only ever starts,
// stops or removes routes it registered itself.
type Controller struct {
	name       string
	engine     Engine
	logger     *slog.Logger
	metrics    *metrics.Metrics
	engineLock sync.Locker

	mu    sync.Mutex
	cfg   model.ProxyConfig
	owned *OwnershipTracker
	// retired holds routes of earlier generations whose teardown failed.
	// They are still ours to remove but are never started again.
	retired *OwnershipTracker
	state atomic.Int32
}

// NewController creates a Controller for the named proxy instance. An empty
// name is replaced by a random one.
func NewController(name string, engine Engine, logger *slog.Logger, opts ...Option) *Controller {
	if name == "" {
		name = uuid.NewString()
	}
	c := &Controller{
		name:   name,
		engine: engine,
		logger: logger.With("component", "route_controller", "proxy", name),
		owned:  NewOwnershipTracker(),

		retired: NewOwnershipTracker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the proxy instance name.
func (c *Controller) Name() string {
	return c.name
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Config returns the current proxy configuration.
func (c *Controller) Config() model.ProxyConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetProxyURI sets the listen-side URI. It takes effect on the next Init.
func (c *Controller) SetProxyURI(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.ProxyURI = uri
}

// SetTargetURI sets the forward-side URI. It takes effect on the next Init.
func (c *Controller) SetTargetURI(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.TargetURI = uri
}

// Init removes the routes this instance owns, then registers and starts a
// new route from the current configuration. Engine failures are logged and
// never returned.
func (c *Controller) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("init")
	c.configure()
}

// Update applies a configuration update and reconfigures the route.
// A nil update is ignored.
func (c *Controller) Update(u *model.ProxyUpdate) {
	if u == nil {
		c.logger.Debug("no properties in configuration update")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = u.Apply(c.cfg)
	c.logger.Debug("configuration updated",
		"proxy_uri", c.cfg.ProxyURI,
		"target_uri", c.cfg.TargetURI,
	)
	c.configure()
}

// Destroy stops and removes every route this instance owns.
func (c *Controller) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("destroy")

	unlock := c.lockEngine()
	defer unlock()

	c.removeRoutes()
	c.setState(StateRemoved)
	c.observeOwned()
}

// RouteDefinitions returns the engine's full route list, including routes
// owned by other instances.
func (c *Controller) RouteDefinitions() []model.RouteHandle {
	return c.engine.ListRoutes()
}

// OwnedRoutes returns the ids of the routes this instance registered and has
// not removed yet, current generation first.
func (c *Controller) OwnedRoutes() []string {
	return append(c.owned.All(), c.retired.All()...)
}

// IsMyRoute reports whether the route id was registered by this instance.
func (c *Controller) IsMyRoute(id string) bool {
	return c.owned.Contains(id) || c.retired.Contains(id)
}

// configure runs one remove, build, register, start pass. c.mu must be held.
func (c *Controller) configure() {
	unlock := c.lockEngine()
	defer unlock()
	defer c.observeOwned()

	if n := c.owned.Len() + c.retired.Len(); n > 0 {
		c.logger.Debug("removing routes before configuring a new route", "count", n)
		c.removeRoutes()
		c.setState(StateRemoved)
	} else {
		c.logger.Debug("no routes to remove before configuring a new route")
	}
	if left := c.owned.Reset(); len(left) > 0 {
		for _, id := range left {
			c.retired.Record(id)
		}
		c.logger.Warn("routes could not be removed; retrying on the next pass", "routes", left)
	}

	if !c.cfg.Complete() {
		c.logger.Debug("cannot set up route: both a proxy URI and a target URI are required",
			"proxy_uri_set", c.cfg.ProxyURI != "",
			"target_uri_set", c.cfg.TargetURI != "",
		)
		c.countConfigure(metrics.OutcomeIncomplete)
		return
	}

	d := Build(c.cfg.ProxyURI, c.cfg.TargetURI)
	c.logger.Debug("built route", "from", d.FromURI, "to", d.ToURI)

	h, err := c.engine.AddRoute(d)
	if err != nil {
		c.logger.Error("unable to configure route; proxy is unusable until reconfigured", "err", err)
		c.countFailure(opAdd)
		c.countConfigure(metrics.OutcomeFailed)
		return
	}
	c.owned.Record(h.ID)
	c.setState(StateConfigured)

	c.startRoutes()
	c.countConfigure(metrics.OutcomeConfigured)

	if c.logger.Enabled(context.Background(), slog.LevelDebug) {
		c.dumpRoutes("after configure")
	}
}

// startRoutes starts every route of the current generation the engine has
// not started yet.
func (c *Controller) startRoutes() {
	s := newSweep("start")
	for _, h := range c.engine.ListRoutes() {
		if !c.owned.Contains(h.ID) {
			continue
		}
		if c.engine.RouteStatus(h.ID) == model.StatusStarted {
			continue
		}
		c.logger.Debug("starting route", "route", h.ID)
		s.try(opStart, h.ID, func() error {
			return c.engine.StartRoute(h.ID)
		})
	}
	c.report(s)

	if c.allStarted() {
		c.setState(StateStarted)
	}
}

// removeRoutes stops and removes every owned route. A route whose stop or
// removal fails stays owned.
func (c *Controller) removeRoutes() {
	s := newSweep("remove")
	listed := make(map[string]bool)
	for _, h := range c.engine.ListRoutes() {
		listed[h.ID] = true
		if !c.IsMyRoute(h.ID) {
			continue
		}
		id := h.ID

		c.logger.Debug("stopping route", "route", id)
		if !s.try(opStop, id, func() error { return c.engine.StopRoute(id) }) {
			continue
		}

		var removed bool
		ok := s.try(opRemove, id, func() error {
			var err error
			removed, err = c.engine.RemoveRoute(id)
			return err
		})
		if !ok {
			continue
		}
		c.logger.Debug("removed route", "route", id, "removed", removed)
		c.forget(id)
	}
	c.report(s)

	for _, id := range c.OwnedRoutes() {
		if !listed[id] {
			c.logger.Debug("owned route no longer registered with engine", "route", id)
			c.forget(id)
		}
	}
}

func (c *Controller) forget(id string) {
	c.owned.Forget(id)
	c.retired.Forget(id)
}

func (c *Controller) allStarted() bool {
	ids := c.owned.All()
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if c.engine.RouteStatus(id) != model.StatusStarted {
			return false
		}
	}
	return true
}

// report logs and counts the failures collected by s.
func (c *Controller) report(s *sweep) {
	if len(s.failures) == 0 {
		return
	}
	for _, f := range s.failures {
		c.countFailure(f.op)
	}
	c.logger.Warn("route sweep finished with failures",
		"sweep", s.name,
		"failed", len(s.failures),
		"err", s.err(),
	)
}

func (c *Controller) dumpRoutes(msg string) {
	routes := c.engine.ListRoutes()
	c.logger.Debug("engine routes "+msg, "count", len(routes))
	for _, h := range routes {
		c.logger.Debug("engine route",
			"route", h.ID,
			"from", h.Descriptor.FromURI,
			"status", c.engine.RouteStatus(h.ID).String(),
			"owned", c.IsMyRoute(h.ID),
		)
	}
}

func (c *Controller) lockEngine() func() {
	if c.engineLock == nil {
		return func() {}
	}
	c.engineLock.Lock()
	return c.engineLock.Unlock
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Controller) countConfigure(outcome string) {
	if c.metrics != nil {
		c.metrics.RouteConfigures.WithLabelValues(c.name, outcome).Inc()
	}
}

func (c *Controller) countFailure(op string) {
	if c.metrics != nil {
		c.metrics.RouteOperationFailures.WithLabelValues(op).Inc()
	}
}

func (c *Controller) observeOwned() {
	if c.metrics != nil {
		c.metrics.OwnedRoutes.WithLabelValues(c.name).Set(float64(c.owned.Len() + c.retired.Len()))
	}
}
