package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[upstream]
timeout_seconds = 60
idle_connections = 50

[engine]
shutdown_timeout_seconds = 5
serialize_passes = true

[watch]
enabled = true
debounce_ms = 50

[[proxy]]
name = "time"
proxy_uri = "http://0.0.0.0:8181/test"
target_uri = "http://time.is"

[[proxy]]
name = "query"
proxy_uri = "http://0.0.0.0:8181/test?hello=world"
target_uri = "http://time.is?foo=bar"

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Engine.ShutdownTimeoutSeconds != 5 || !cfg.Engine.SerializePasses {
		t.Errorf("Engine = %+v, want shutdown 5 and serialize_passes", cfg.Engine)
	}
	if !cfg.Watch.Enabled || cfg.Watch.DebounceMS != 50 {
		t.Errorf("Watch = %+v, want enabled with 50ms debounce", cfg.Watch)
	}
	if len(cfg.Proxies) != 2 {
		t.Fatalf("len(Proxies) = %d, want 2", len(cfg.Proxies))
	}
	want := ProxyEntry{Name: "query", ProxyURI: "http://0.0.0.0:8181/test?hello=world", TargetURI: "http://time.is?foo=bar"}
	if cfg.Proxies[1] != want {
		t.Errorf("Proxies[1] = %+v, want %+v", cfg.Proxies[1], want)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
	if cfg.FilePath() != path {
		t.Errorf("FilePath() = %q, want %q", cfg.FilePath(), path)
	}
}

func TestLoad_IncompleteProxyAllowed(t *testing.T) {
	path := writeConfig(t, `
[[proxy]]
name = "pending"
target_uri = "http://time.is?foo=bar"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v; a proxy without proxy_uri should load", err)
	}
	if cfg.Proxies[0].ProxyURI != "" {
		t.Errorf("ProxyURI = %q, want empty", cfg.Proxies[0].ProxyURI)
	}
	if got := cfg.Proxies[0].ProxyConfig(); got.Complete() {
		t.Errorf("ProxyConfig() = %+v, want incomplete", got)
	}
}

func TestLoad_InvalidProxies(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "missing name",
			data:    "[[proxy]]\nproxy_uri = \"http://0.0.0.0:8181/a\"\n",
			wantErr: "name is required",
		},
		{
			name:    "duplicate name",
			data:    "[[proxy]]\nname = \"a\"\n[[proxy]]\nname = \"a\"\n",
			wantErr: "not unique",
		},
		{
			name:    "slash in name",
			data:    "[[proxy]]\nname = \"a/b\"\n",
			wantErr: "must not contain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "verbose"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for invalid log level, got nil")
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	path := writeConfig(t, `
[log]
format = "xml"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for invalid log format, got nil")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8000)
	}
	if cfg.Server.BodyMaxBytes != 1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 1024*1024)
	}
	if cfg.Upstream.TimeoutSeconds != 120 {
		t.Errorf("default Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 120)
	}
	if cfg.Engine.ShutdownTimeoutSeconds != 15 {
		t.Errorf("default Engine.ShutdownTimeoutSeconds = %d, want %d", cfg.Engine.ShutdownTimeoutSeconds, 15)
	}
	if cfg.Watch.Enabled || cfg.Watch.DebounceMS != 200 {
		t.Errorf("default Watch = %+v, want disabled with 200ms debounce", cfg.Watch)
	}
	if len(cfg.Proxies) != 0 {
		t.Errorf("default Proxies = %v, want none", cfg.Proxies)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	_, err := Load(cliWithPath(writeConfig(t, "[server\nport = ")))
	if err == nil {
		t.Fatal("Load() expected error for malformed TOML, got nil")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %q, want parse error", err)
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[[proxy]]
name = "default"
proxy_uri = "http://0.0.0.0:8181/test"
target_uri = "http://time.is"

[log]
level = "info"
`)

	cli := &CLI{
		Config:    path,
		Host:      "127.0.0.1",
		Port:      3000,
		LogLevel:  "debug",
		TargetURI: "http://example.com",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
	if len(cfg.Proxies) != 1 {
		t.Fatalf("len(Proxies) = %d, want 1", len(cfg.Proxies))
	}
	want := ProxyEntry{Name: "default", ProxyURI: "http://0.0.0.0:8181/test", TargetURI: "http://example.com"}
	if cfg.Proxies[0] != want {
		t.Errorf("Proxies[0] = %+v, want %+v (CLI override)", cfg.Proxies[0], want)
	}
}

func TestLoad_CLIAddsDefaultProxy(t *testing.T) {
	path := writeConfig(t, `
[[proxy]]
name = "time"
proxy_uri = "http://0.0.0.0:8181/test"
target_uri = "http://time.is"
`)

	cli := &CLI{Config: path, ProxyURI: "http://0.0.0.0:8282/cli", TargetURI: "http://example.com"}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Proxies) != 2 {
		t.Fatalf("len(Proxies) = %d, want 2", len(cfg.Proxies))
	}
	if cfg.Proxies[1].Name != DefaultProxyName || cfg.Proxies[1].ProxyURI != "http://0.0.0.0:8282/cli" {
		t.Errorf("Proxies[1] = %+v, want CLI default proxy", cfg.Proxies[1])
	}
}

func TestLoad_NegativeValues(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"port", "[server]\nport = -1\n"},
		{"body_max_bytes", "[server]\nbody_max_bytes = -1\n"},
		{"timeout_seconds", "[upstream]\ntimeout_seconds = -5\n"},
		{"idle_connections", "[upstream]\nidle_connections = -1\n"},
		{"shutdown_timeout_seconds", "[engine]\nshutdown_timeout_seconds = -1\n"},
		{"debounce_ms", "[watch]\ndebounce_ms = -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatalf("Load() expected error for negative %s, got nil", tt.name)
			}
			if !strings.Contains(err.Error(), tt.name) {
				t.Errorf("error = %q, want mention of %s", err, tt.name)
			}
		})
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 50.0
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestLoad_RateLimitConfig_BadValue(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 0
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for rate limit enabled with requests_per_second=0, got nil")
	}
	if !strings.Contains(err.Error(), "requests_per_second") {
		t.Errorf("error = %q, want mention of requests_per_second", err)
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths_Found(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[[proxy]]\nname = \"default\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := findConfigInPaths([]string{path})
	if got != path {
		t.Errorf("findConfigInPaths() = %q, want %q", got, path)
	}
}

func TestFindConfigInPaths_NotFound(t *testing.T) {
	got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"})
	if got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	path1 := filepath.Join(dir1, "config.toml")
	path2 := filepath.Join(dir2, "config.toml")
	for _, p := range []string{path1, path2} {
		if err := os.WriteFile(p, []byte("[[proxy]]\nname = \"default\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got := findConfigInPaths([]string{path1, path2})
	if got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
	}
}

func TestLoad_MetricsPathDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[metrics]
enabled = true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_MetricsPathNoLeadingSlash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[metrics]
enabled = true
path = "metrics"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for metrics.path without leading slash, got nil")
	}
	if !strings.Contains(err.Error(), "metrics.path") {
		t.Errorf("error = %q, want mention of metrics.path", err)
	}
}

func TestLoad_MetricsPathConflictsWithAdminRoute(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"routes exact", "/routes"},
		{"routes sub", "/routes/metrics"},
		{"proxies exact", "/proxies"},
		{"proxies sub", "/proxies/metrics"},
		{"healthz", "/healthz"},
		{"proxy/status", "/proxy/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfgPath := filepath.Join(dir, "config.toml")
			data := `
[metrics]
enabled = true
path = "` + tt.path + `"
`
			if err := os.WriteFile(cfgPath, []byte(data), 0o644); err != nil {
				t.Fatal(err)
			}

			_, err := Load(cliWithPath(cfgPath))
			if err == nil {
				t.Fatalf("Load() expected error for metrics.path=%q conflicting with route, got nil", tt.path)
			}
			if !strings.Contains(err.Error(), "conflicts") {
				t.Errorf("error = %q, want mention of conflict", err)
			}
		})
	}
}

func TestLoad_MetricsPathValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[metrics]
enabled = true
path = "/custom-metrics"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[metrics]
enabled = false
path = "bad-no-slash"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
