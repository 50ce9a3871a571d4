package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/finengine/internal/config"
	"github.com/MrWong99/finengine/internal/dispatch"
	"github.com/MrWong99/finengine/internal/health"
	"github.com/MrWong99/finengine/internal/observe"
)

// Endpoint paths of the MCP transports.
const (
	SSEPath        = "/sse"
	StreamablePath = "/mcp"
)

// HTTPOptions configures the HTTP transports.
type HTTPOptions struct {
	// Transport selects the MCP endpoint: [config.TransportSSE] mounts
	// [SSEPath], [config.TransportStreamableHTTP] mounts [StreamablePath].
	Transport config.Transport

	// Stateless disables session tracking on the streamable endpoint.
	Stateless bool

	// Addr is the listen address used by [Server.Serve].
	Addr string

	// TLS enables HTTPS when set.
	TLS *config.TLSConfig

	// ShutdownTimeout bounds the drain of in-flight calls on shutdown.
	ShutdownTimeout time.Duration

	// Metrics enables the request middleware. Nil serves the mux bare.
	Metrics *observe.Metrics

	// Gatherer backs /metrics. Defaults to [prometheus.DefaultGatherer].
	Gatherer prometheus.Gatherer

	// Checks are evaluated by /readyz.
	Checks []health.Checker
}

// Handler builds the HTTP handler for opts: the MCP endpoint plus /metrics,
// /stats and the health routes.
func (s *Server) Handler(opts HTTPOptions) (http.Handler, error) {
	mux := http.NewServeMux()
	getServer := func(*http.Request) *mcp.Server { return s.srv }

	switch opts.Transport {
	case config.TransportSSE:
		mux.Handle(SSEPath, mcp.NewSSEHandler(getServer, &mcp.SSEOptions{}))
	case config.TransportStreamableHTTP:
		mux.Handle(StreamablePath, mcp.NewStreamableHTTPHandler(getServer, &mcp.StreamableHTTPOptions{
			Stateless: opts.Stateless,
		}))
	default:
		return nil, fmt.Errorf("mcpserver: transport %q is not served over HTTP", opts.Transport)
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /stats", s.serveStats)
	health.New(opts.Checks...).Register(mux)

	if opts.Metrics == nil {
		return mux, nil
	}
	return observe.Middleware(opts.Metrics)(mux), nil
}

func (s *Server) serveStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	body := struct {
		InFlight int64                `json:"in_flight"`
		Tools    []dispatch.ToolStats `json:"tools"`
	}{s.router.InFlight(), s.router.Stats()}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"error":"encode"}`, http.StatusInternalServerError)
	}
}

// Serve listens on opts.Addr and serves [Server.Handler] until ctx is
// cancelled. On shutdown it stops accepting connections, waits for in-flight
// tool calls up to opts.ShutdownTimeout and then closes streaming sessions.
func (s *Server) Serve(ctx context.Context, opts HTTPOptions) error {
	h, err := s.Handler(opts)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return fmt.Errorf("mcpserver: listen %s: %w", opts.Addr, err)
	}

	// Request contexts outlive ctx so that calls can drain; streams are
	// released by cancelling base once the router is idle.
	base, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	errc := make(chan error, 1)
	go func() {
		if opts.TLS != nil {
			errc <- srv.ServeTLS(ln, opts.TLS.CertFile, opts.TLS.KeyFile)
			return
		}
		errc <- srv.Serve(ln)
	}()
	slog.Info("mcp http transport listening",
		"addr", ln.Addr().String(),
		"transport", string(opts.Transport),
		"tls", opts.TLS != nil,
	)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("mcpserver: serve: %w", err)
	case <-ctx.Done():
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	go func() {
		s.WaitIdle(sctx)
		cancelBase()
	}()
	err = srv.Shutdown(sctx)
	<-errc
	if err != nil {
		return fmt.Errorf("mcpserver: shutdown: %w", err)
	}
	slog.Info("mcp http transport stopped")
	return nil
}

// WaitIdle blocks until the router has no in-flight calls or ctx is done.
func (s *Server) WaitIdle(ctx context.Context) {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for !s.router.Idle() {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
