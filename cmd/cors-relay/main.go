package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"cors-relay/internal/client"
	"cors-relay/internal/config"
	"cors-relay/internal/handler"
	"cors-relay/internal/metrics"
	"cors-relay/internal/server"
	"cors-relay/internal/service"
)

const programName = "cors-relay"

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Environment from .env (or $ENV_FILE) feeds Kong's env fallbacks.
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cli config.CLI
	kctx := kong.Parse(&cli,
		kong.Name(programName),
		kong.Description("Local CORS relay for the Anthropic and OpenAI APIs."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	cfg, err := config.Load(&cli)
	kctx.FatalIfErrorf(err)

	ln, err := server.Listen(cfg.Server.Addr())
	if errors.Is(err, server.ErrAddrInUse) {
		server.PrintPortInUse(os.Stderr, programName, cfg.Server.Port)
		os.Exit(1)
	}
	kctx.FatalIfErrorf(err)

	fx.New(
		fx.WithLogger(newFxLogger),
		fx.Provide(
			func() *config.Config { return cfg },
			func() net.Listener { return ln },
			func() handler.Version { return handler.Version(version) },
			newLogger,
			newMetrics,
			server.NewEcho,
			service.NewProviderSet,
			client.NewUpstreamClient,
			service.NewProxyService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, registerMetrics, warnConfigPermissions, server.Start),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch cfg.Log.Format {
	case "json":
		h = slog.NewJSONHandler(os.Stdout, opts)
	default:
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h)
}

// newFxLogger routes fx lifecycle events through slog at debug level.
func newFxLogger(logger *slog.Logger) fxevent.Logger {
	l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
	l.UseLogLevel(slog.LevelDebug)
	return l
}

// newMetrics returns nil when metrics are disabled; consumers treat nil as off.
func newMetrics(cfg *config.Config) *metrics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.New()
}

func registerMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if m == nil {
		return
	}
	handler.RegisterMetrics(e, cfg.Metrics.Path, m)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}
