package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/finengine/internal/config"
	"github.com/MrWong99/finengine/internal/dispatch"
	"github.com/MrWong99/finengine/internal/health"
	"github.com/MrWong99/finengine/internal/mcpserver"
	"github.com/MrWong99/finengine/internal/observe"
	"github.com/MrWong99/finengine/internal/retriever"
)

type serveFlags struct {
	transport string
	addr      string
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), g, f)
		},
	}
	cmd.Flags().StringVarP(&f.transport, "transport", "t", "", "override the transport (stdio, sse, streamable-http)")
	cmd.Flags().StringVar(&f.addr, "addr", "", "override the HTTP listen address")
	return cmd
}

// override applies the serve flags to cfg. Switching transport without --addr
// moves a defaulted listen address to the new transport's default.
func (f *serveFlags) override(cfg *config.Config) {
	if f.transport != "" {
		t := config.Transport(f.transport)
		if f.addr == "" && cfg.Server.ListenAddr == cfg.Server.Transport.DefaultListenAddr() {
			cfg.Server.ListenAddr = ""
		}
		cfg.Server.Transport = t
	}
	if f.addr != "" {
		cfg.Server.ListenAddr = f.addr
	}
}

func runServe(ctx context.Context, g *globalFlags, f *serveFlags) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := loadConfig(g, f.override)
	if err != nil {
		return err
	}
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(level))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "finengine",
		ServiceVersion: mcpserver.Version,
		Registerer:     reg,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Vector store ──────────────────────────────────────────────────────────
	backends := config.NewRegistry()
	registerBuiltinBackends(backends)
	vs, release, err := buildRetriever(ctx, cfg.VectorStore, backends, metrics)
	defer release()
	if err != nil {
		return err
	}

	// ── MCP server ────────────────────────────────────────────────────────────
	router := dispatch.NewRouter(dispatch.Catalogue(vs), dispatch.WithMetrics(metrics))
	srv := mcpserver.New(router, mcpserver.Options{Logger: slog.Default().With("component", "mcp")})
	if unknown := srv.ApplySelection(selection(cfg.Tools)); len(unknown) > 0 {
		slog.Warn("configuration names unknown tools", "names", unknown)
	}

	if g.configPath != "" {
		w, err := config.NewWatcher(g.configPath, os.LookupEnv, onConfigChange(level, srv),
			config.WithOverrides(g.overrides(f.override)))
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		defer w.Stop()
	}

	printStartupSummary(os.Stderr, cfg, router)

	// ── Run ───────────────────────────────────────────────────────────────────
	eg, egCtx := errgroup.WithContext(ctx)
	if cfg.Server.Transport.IsHTTP() {
		opts := mcpserver.HTTPOptions{
			Transport:       cfg.Server.Transport,
			Stateless:       cfg.Server.Stateless,
			Addr:            cfg.Server.ListenAddr,
			TLS:             cfg.Server.TLS,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Metrics:         metrics,
			Gatherer:        reg,
			Checks:          readinessChecks(router, vs),
		}
		eg.Go(func() error { return srv.Serve(egCtx, opts) })
	} else {
		eg.Go(func() error {
			err := srv.RunStdio(egCtx)
			drain, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			srv.WaitIdle(drain)
			return err
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("goodbye")
	return nil
}

func selection(t config.ToolsConfig) dispatch.Selection {
	return dispatch.Selection{Enabled: t.Enabled, Disabled: t.Disabled}
}

// onConfigChange applies the hot-reloadable parts of a changed config file.
func onConfigChange(level *slog.LevelVar, srv *mcpserver.Server) func(config.Reload) {
	return func(r config.Reload) {
		d := r.Diff
		if d.LogLevelChanged {
			level.Set(d.NewLogLevel.Level())
			slog.Info("log level changed", "level", string(d.NewLogLevel))
		}
		if d.ToolsChanged {
			if unknown := srv.ApplySelection(selection(d.NewTools)); len(unknown) > 0 {
				slog.Warn("configuration names unknown tools", "names", unknown)
			}
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("configuration changed; restart to apply", "sections", d.RestartRequired)
		}
	}
}

func readinessChecks(router *dispatch.Router, vs *retriever.Retriever) []health.Checker {
	return []health.Checker{
		{
			Name: "tools",
			Check: func(context.Context) error {
				if len(router.Active()) == 0 {
					return errors.New("no tools enabled")
				}
				return nil
			},
		},
		{
			Name:     "vector_store",
			Optional: true,
			Check: func(ctx context.Context) error {
				err := vs.Ready(ctx)
				if errors.Is(err, retriever.ErrNotConfigured) {
					return health.ErrDisabled
				}
				return err
			},
		},
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, router *dispatch.Router) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║       finengine  startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Version", mcpserver.Version)
	printRow(w, "Transport", string(cfg.Server.Transport))
	if cfg.Server.Transport.IsHTTP() {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
		if cfg.Server.TLS != nil {
			printRow(w, "TLS", "enabled")
		}
	}
	fmt.Fprintf(w, "║  %-12s   : %-19d ║\n", "Tools", len(router.Active()))
	vs := cfg.VectorStore
	switch {
	case vs.Backend == "":
		printRow(w, "Vector store", "")
	case vs.Fallback != "":
		printRow(w, "Vector store", vs.Backend+" → "+vs.Fallback)
	default:
		printRow(w, "Vector store", vs.Backend)
	}
	printRow(w, "Log level", string(cfg.Server.LogLevel))
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s   : %-19s ║\n", label, value)
}
