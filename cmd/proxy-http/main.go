package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"proxy-http-go/internal/client"
	"proxy-http-go/internal/config"
	"proxy-http-go/internal/engine"
	"proxy-http-go/internal/handler"
	"proxy-http-go/internal/metrics"
	"proxy-http-go/internal/middleware"
	"proxy-http-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("proxy-http"),
		kong.Description("HTTP proxy routes managed at runtime over one shared routing engine."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(appOptions(&cli)).Run()
}

func appOptions(cli *config.CLI) fx.Option {
	return fx.Options(
		fx.Provide(
			func() *config.CLI { return cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newEcho,
			client.NewUpstreamClient,
			newEngine,
			newProxyService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(
			handler.RegisterRoutes,
			registerMetrics,
			warnConfigPermissions,
			startEngine,
			startProxies,
			startWatcher,
			startServer,
		),
	)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimiter(cfg.Server.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func newEngine(cfg *config.Config, fwd *client.UpstreamClient, logger *slog.Logger, m *metrics.Metrics) *engine.Engine {
	return engine.New(cfg, fwd, logger, m)
}

func newProxyService(eng *engine.Engine, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *service.ProxyService {
	return service.NewProxyService(eng, cfg, logger, m)
}

func registerMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(m.Handler()))
	}
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startEngine(lc fx.Lifecycle, eng *engine.Engine, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return eng.Start()
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping routing engine")
			return eng.Stop(ctx)
		},
	})
}

func startProxies(lc fx.Lifecycle, svc *service.ProxyService, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("configuring proxies", "count", len(cfg.Proxies))
			svc.Apply(cfg.Proxies)
			return nil
		},
		OnStop: func(_ context.Context) error {
			svc.Shutdown()
			return nil
		},
	})
}

func startWatcher(lc fx.Lifecycle, svc *service.ProxyService, cfg *config.Config, cli *config.CLI, logger *slog.Logger) error {
	if !cfg.Watch.Enabled {
		return nil
	}

	w, err := config.NewWatcher(cfg.FilePath(), cli,
		func(next *config.Config) {
			logger.Info("applying reloaded proxies; other settings take effect on restart", "count", len(next.Proxies))
			svc.Apply(next.Proxies)
		},
		config.WithDebounceDelay(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond),
		config.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return w.Start(context.Background())
		},
		OnStop: func(_ context.Context) error {
			return w.Stop()
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting admin server", "addr", addr)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down admin server")
			return e.Shutdown(ctx)
		},
	})
}
