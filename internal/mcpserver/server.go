// Package mcpserver exposes the dispatch catalogue as a Model Context
// Protocol server over stdio, SSE or streamable HTTP.
//
// Every MCP tool is a thin adapter around [dispatch.Router.Invoke]: the raw
// arguments are forwarded untouched and the resulting envelope is returned
// both as JSON text content and as structured content. Tool failures are
// reported in-band with IsError set; only names that are not registered fail
// at the protocol level.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/finengine/internal/dispatch"
)

// Server identity advertised during initialisation.
const (
	Name    = "finance-engine"
	Version = "2.0.0"
)

// Options configures a [Server].
type Options struct {
	// Logger receives protocol-level logs of the MCP SDK. Nil keeps the
	// SDK quiet.
	Logger *slog.Logger
}

// Server binds a [dispatch.Router] to an MCP server. The set of registered
// tools follows the router's active selection; see [Server.SyncTools].
type Server struct {
	router *dispatch.Router
	srv    *mcp.Server

	mu         sync.Mutex
	registered map[string]bool
}

// New creates a Server with every active tool of router registered.
func New(router *dispatch.Router, opts Options) *Server {
	srv := mcp.NewServer(
		&mcp.Implementation{Name: Name, Version: Version},
		&mcp.ServerOptions{
			Instructions: Instructions(router.Definitions()),
			Logger:       opts.Logger,
		},
	)
	s := &Server{
		router:     router,
		srv:        srv,
		registered: make(map[string]bool),
	}
	s.SyncTools()
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.srv }

// Router returns the router the tools dispatch to.
func (s *Server) Router() *dispatch.Router { return s.router }

// SyncTools registers tools that became active and removes tools that were
// deselected. Connected clients receive a list-changed notification from the
// SDK.
func (s *Server) SyncTools() (added, removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool)
	for _, d := range s.router.Active() {
		want[d.Name] = true
		if s.registered[d.Name] {
			continue
		}
		s.srv.AddTool(toolFor(d), s.handler(d.Name))
		s.registered[d.Name] = true
		added = append(added, d.Name)
	}
	for name := range s.registered {
		if !want[name] {
			removed = append(removed, name)
			delete(s.registered, name)
		}
	}
	if len(removed) > 0 {
		slices.Sort(removed)
		s.srv.RemoveTools(removed...)
	}
	return added, removed
}

// ApplySelection narrows the catalogue and syncs the registered tools. It
// returns the selected names that do not exist.
func (s *Server) ApplySelection(sel dispatch.Selection) (unknown []string) {
	unknown = s.router.Select(sel)
	added, removed := s.SyncTools()
	if len(added) > 0 || len(removed) > 0 {
		slog.Info("tool catalogue changed", "added", added, "removed", removed)
	}
	return unknown
}

// RunStdio serves a single MCP session over stdin/stdout until ctx is
// cancelled or the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcpserver: stdio: %w", err)
	}
	return nil
}

func toolFor(d dispatch.Definition) *mcp.Tool {
	return &mcp.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: d.InputSchema(),
	}
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw []byte
		if req.Params != nil {
			raw = req.Params.Arguments
		}
		env := s.router.Invoke(ctx, name, raw)
		data, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("mcpserver: encode %s result: %w", name, err)
		}
		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
			StructuredContent: json.RawMessage(data),
			IsError:           !env.OK,
		}, nil
	}
}

// Instructions renders the server instructions sent to clients on
// initialisation.
func Instructions(defs []dispatch.Definition) string {
	var b strings.Builder
	b.WriteString("Financial metric calculators for company analysis. ")
	b.WriteString("Rates and percentages are fractions (0.15 = 15%) unless a tool says otherwise. ")
	b.WriteString("Use get_metrics_from_vector_store to fetch source figures for a company, then pass them to a calculator.\n\nTools:\n")
	for _, d := range defs {
		fmt.Fprintf(&b, "- %s(%s)\n", d.Name, strings.Join(d.Required(), ", "))
	}
	return b.String()
}
