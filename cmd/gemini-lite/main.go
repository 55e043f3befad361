package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/mattn/go-colorable"
	"go.uber.org/fx"

	"gemini-lite-go/internal/client"
	"gemini-lite-go/internal/config"
	"gemini-lite-go/internal/handler"
	"gemini-lite-go/internal/metrics"
	"gemini-lite-go/internal/middleware"
	"gemini-lite-go/internal/protocol"
	"gemini-lite-go/internal/server"
	"gemini-lite-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kctx := kong.Parse(&cli,
		kong.Name("gemini-lite"),
		kong.Description("Gemini-Lite file server, proxy and client."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			if code != 0 {
				code = client.ExitUsage
			}
			os.Exit(code)
		}),
	)
	cli.Mode = strings.Fields(kctx.Command())[0]

	if cli.Mode == config.ModeFetch {
		os.Exit(runFetch(&cli))
	}
	runServer(&cli)
}

func runServer(cli *config.CLI) {
	fx.New(
		fx.Provide(
			func() *config.CLI { return cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			func(cfg *config.Config) *slog.Logger { return newLogger(cfg, os.Stdout) },
			metrics.New,
			newServer,
			newEcho,
			handler.NewHealthHandler,
		),
		modeProviders(cli.Mode),
		fx.Invoke(logConfigSource, handler.RegisterRoutes, startServer, startAdmin),
	).Run()
}

// modeProviders supplies the request handler for the selected mode.
func modeProviders(mode string) fx.Option {
	if mode == config.ModeProxy {
		return fx.Provide(
			fx.Annotate(newUpstreamEngine, fx.As(new(client.Sender))),
			service.NewProxyService,
			fx.Annotate(handler.NewProxyHandler, fx.As(new(handler.Handler))),
		)
	}
	return fx.Provide(
		fx.Annotate(handler.NewFileHandlerFromConfig, fx.As(new(handler.Handler))),
	)
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
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
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h)
}

// newUpstreamEngine dials each resource's own host; the proxy never chains
// to a further proxy.
func newUpstreamEngine(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *client.Engine {
	return client.NewEngine(client.Options{
		DialTimeout: cfg.Proxy.DialTimeout(),
		IdleTimeout: cfg.Server.IdleTimeout(),
	}, logger, m)
}

func newServer(h handler.Handler, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *server.Server {
	chain := middleware.Chain(h,
		middleware.Metrics(m),
		middleware.RequestLogger(logger.With("component", "access")),
		middleware.Recover(logger),
	)
	if cfg.Server.RateLimit.Enabled {
		logger.Info("rate limiter enabled",
			"rps", cfg.Server.RateLimit.RequestsPerSecond,
			"burst", cfg.Server.RateLimit.Burst,
		)
	}
	return server.New(chain, server.OptionsFromConfig(cfg), logger, m)
}

func newEcho(logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 5 * time.Second

	e.Use(echomw.Recover())
	e.Use(middleware.HTTPRequestLogger(logger))

	return e
}

func logConfigSource(cfg *config.Config, logger *slog.Logger) {
	if src := cfg.Source(); src != "" {
		logger.Info("loaded config", "path", src, "mode", cfg.Mode)
		return
	}
	logger.Info("no config file found; using defaults", "mode", cfg.Mode)
}

func startServer(lc fx.Lifecycle, srv *server.Server, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "mode", cfg.Mode)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, server.ErrServerClosed) {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server", "grace", cfg.Server.ShutdownGrace())
			ctx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownGrace())
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("forced shutdown", "err", err)
			}
			return nil
		},
	})
}

func startAdmin(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Metrics.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind admin %s: %w", addr, err)
			}
			logger.Info("starting admin endpoint", "addr", addr, "metrics_path", cfg.Metrics.Path)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("admin server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

// runFetch drives one client session and returns the process exit code.
func runFetch(cli *config.CLI) int {
	cfg, err := config.Load(cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return client.ExitUsage
	}
	logger := newLogger(cfg, os.Stderr)

	target, err := protocol.ParseRequest(cli.Fetch.URL)
	if err != nil {
		logger.Error("invalid URL", "url", cli.Fetch.URL, "err", err)
		return client.ExitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := client.NewEngine(client.Options{
		ProxyAddr:    cfg.Client.Proxy,
		DialTimeout:  cfg.Client.Timeout(),
		IdleTimeout:  cfg.Client.Timeout(),
		MaxBodyBytes: cfg.Client.MaxBodyBytes,
	}, logger, nil)

	opts := client.SessionOptions{
		Input:        cli.Fetch.Input,
		Out:          colorable.NewColorableStdout(),
		Color:        client.IsTerminal(os.Stdout),
		MaxRedirects: cfg.Client.MaxRedirects,
		MaxSlowDowns: cfg.Client.MaxSlowDowns,
	}
	if client.IsTerminal(os.Stdin) {
		opts.Prompter = &client.TerminalPrompter{In: os.Stdin, Out: os.Stderr}
	}

	out, err := client.NewSession(engine, opts, logger).Run(ctx, target)
	if err != nil {
		logger.Error("fetch failed", "uri", target.Line(), "err", err)
		return out.Code
	}
	switch out.Code {
	case client.ExitSuccess:
	case client.ExitTooManyRedirects:
		logger.Error("too many redirections", "uri", out.Resource.Line(), "redirects", out.Redirects)
	case client.ExitTooManySlowDowns:
		logger.Error("server kept asking to slow down", "uri", out.Resource.Line(), "slow_downs", out.SlowDowns)
	default:
		logger.Error("request failed", "uri", out.Resource.Line(), "status", out.Reply.Status, "meta", out.Reply.Message)
	}
	return out.Code
}
