package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/finengine/internal/config"
	"github.com/MrWong99/finengine/internal/mcpserver"
)

type probeFlags struct {
	url       string
	transport string
	tool      string
	args      string
	timeout   time.Duration
}

func newProbeCmd() *cobra.Command {
	f := &probeFlags{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect to a running HTTP server, list its tools and optionally call one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.url, "url", "", "MCP endpoint, e.g. http://127.0.0.1:8001/mcp")
	cmd.Flags().StringVar(&f.transport, "transport", string(config.TransportStreamableHTTP), "sse or streamable-http")
	cmd.Flags().StringVar(&f.tool, "tool", "", "tool to call after listing")
	cmd.Flags().StringVar(&f.args, "args", "{}", "JSON arguments for --tool")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "overall probe timeout")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runProbe(cmd *cobra.Command, f *probeFlags) error {
	var arguments map[string]any
	if f.tool != "" {
		if err := json.Unmarshal([]byte(f.args), &arguments); err != nil {
			return fmt.Errorf("--args must be a JSON object: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	defer cancel()

	res, err := mcpserver.Probe(ctx, f.url, mcpserver.ProbeOptions{
		Transport: config.Transport(f.transport),
		Tool:      f.tool,
		Arguments: arguments,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d tools at %s\n", len(res.Tools), f.url)
	for _, t := range res.Tools {
		fmt.Fprintf(out, "  %s\n", t.Name)
	}
	if f.tool == "" {
		return nil
	}
	fmt.Fprintf(out, "\n%s:\n%s\n", f.tool, res.Call)
	if res.CallFailed {
		return exitCode(1)
	}
	return nil
}
