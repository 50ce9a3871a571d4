package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/finengine/internal/config"
)

// ProbeResult is what a running server advertises.
type ProbeResult struct {
	Tools []*mcp.Tool
	// Call is the text of the probe call, when one was requested.
	Call string
	// CallFailed mirrors IsError of the probe call.
	CallFailed bool
}

// ProbeOptions configures [Probe].
type ProbeOptions struct {
	// Transport is [config.TransportStreamableHTTP] (default) or
	// [config.TransportSSE].
	Transport config.Transport

	// Tool, when set, is invoked once with Arguments after listing.
	Tool      string
	Arguments map[string]any

	// HTTPClient defaults to [http.DefaultClient].
	HTTPClient *http.Client
}

// Probe connects to the MCP server at endpoint, lists its tools and
// optionally calls one of them.
func Probe(ctx context.Context, endpoint string, opts ProbeOptions) (*ProbeResult, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("mcpserver: probe requires an endpoint")
	}

	var transport mcp.Transport
	switch opts.Transport {
	case "", config.TransportStreamableHTTP:
		transport = &mcp.StreamableClientTransport{Endpoint: endpoint, HTTPClient: opts.HTTPClient}
	case config.TransportSSE:
		transport = &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: opts.HTTPClient}
	default:
		return nil, fmt.Errorf("mcpserver: probe cannot use transport %q", opts.Transport)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "finengine-probe", Version: Version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: connect to %s: %w", endpoint, err)
	}
	defer session.Close()

	res := &ProbeResult{}
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcpserver: list tools: %w", err)
		}
		res.Tools = append(res.Tools, tool)
	}

	if opts.Tool == "" {
		return res, nil
	}
	out, err := session.CallTool(ctx, &mcp.CallToolParams{Name: opts.Tool, Arguments: opts.Arguments})
	if err != nil {
		return nil, fmt.Errorf("mcpserver: call %q: %w", opts.Tool, err)
	}
	var sb strings.Builder
	for _, c := range out.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	res.Call = sb.String()
	res.CallFailed = out.IsError
	return res, nil
}
