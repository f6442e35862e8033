// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"proxy-http-go/internal/model"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/proxy-http/config.toml",
	"configs/config.toml",
}

// reservedPaths are admin API routes the metrics endpoint must not shadow.
var reservedPaths = []string{"/healthz", "/proxy/status", "/proxies", "/routes"}

// DefaultProxyName names the proxy entry created or overridden by CLI flags.
const DefaultProxyName = "default"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Admin listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Admin listen port (overrides config).',env='PORT'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	ProxyURI  string `kong:"help='Listen-side URI of the default proxy (overrides config).',env='PROXY_URI'"`
	TargetURI string `kong:"help='Forward-side URI of the default proxy (overrides config).',env='TARGET_URI'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Engine   EngineConfig   `toml:"engine"`
	Watch    WatchConfig    `toml:"watch"`
	Proxies  []ProxyEntry   `toml:"proxy"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds admin HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting on the admin API.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds settings of the client that forwards routed requests.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
	// InsecureSkipVerify accepts any certificate from https targets.
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

// EngineConfig holds routing engine settings.
type EngineConfig struct {
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
	// SerializePasses makes proxies hold one shared lock for every
	// configure and remove pass.
	SerializePasses bool `toml:"serialize_passes"`
}

// WatchConfig controls reloading the config file when it changes.
type WatchConfig struct {
	Enabled    bool `toml:"enabled"`
	DebounceMS int  `toml:"debounce_ms"`
}

// ProxyEntry configures one named proxy instance.
type ProxyEntry struct {
	Name      string `toml:"name"`
	ProxyURI  string `toml:"proxy_uri"`
	TargetURI string `toml:"target_uri"`
}

// ProxyConfig returns the entry's URIs.
func (p ProxyEntry) ProxyConfig() model.ProxyConfig {
	return model.ProxyConfig{ProxyURI: p.ProxyURI, TargetURI: p.TargetURI}
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/proxy-http/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}
	return LoadFile(path, cli)
}

// LoadFile reads the TOML config file at path and applies CLI overrides.
// cli may be nil.
func LoadFile(path string, cli *CLI) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	if cli != nil {
		cfg.applyCLI(cli)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// FilePath returns the path the config was loaded from.
func (c *Config) FilePath() string {
	return c.filePath
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.ProxyURI == "" && cli.TargetURI == "" {
		return
	}

	for i := range c.Proxies {
		if c.Proxies[i].Name == DefaultProxyName {
			if cli.ProxyURI != "" {
				c.Proxies[i].ProxyURI = cli.ProxyURI
			}
			if cli.TargetURI != "" {
				c.Proxies[i].TargetURI = cli.TargetURI
			}
			return
		}
	}
	c.Proxies = append(c.Proxies, ProxyEntry{
		Name:      DefaultProxyName,
		ProxyURI:  cli.ProxyURI,
		TargetURI: cli.TargetURI,
	})
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Engine.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("engine.shutdown_timeout_seconds must be non-negative; got %d", c.Engine.ShutdownTimeoutSeconds)
	}
	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch.debounce_ms must be non-negative; got %d", c.Watch.DebounceMS)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Proxy entries. URIs may be empty: such a proxy runs without a route.
	seen := make(map[string]bool, len(c.Proxies))
	for i, p := range c.Proxies {
		if p.Name == "" {
			return fmt.Errorf("proxy[%d].name is required", i)
		}
		if strings.ContainsAny(p.Name, "/?#") {
			return fmt.Errorf("proxy[%d].name must not contain '/', '?' or '#'; got %q", i, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("proxy[%d].name %q is not unique", i, p.Name)
		}
		seen[p.Name] = true
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedPaths {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 120
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Engine.ShutdownTimeoutSeconds == 0 {
		c.Engine.ShutdownTimeoutSeconds = 15
	}
	if c.Watch.DebounceMS == 0 {
		c.Watch.DebounceMS = 200
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
