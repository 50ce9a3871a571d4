package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/finengine/internal/config"
	"github.com/MrWong99/finengine/internal/dispatch"
)

// ── tools ─────────────────────────────────────────────────────────────────────

func newToolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs := dispatch.Catalogue(nil)
			if asJSON {
				return writeCatalogueJSON(cmd.OutOrStdout(), defs)
			}
			return writeCatalogue(cmd.OutOrStdout(), defs)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print names, descriptions and input schemas as JSON")
	return cmd
}

func writeCatalogue(w io.Writer, defs []dispatch.Definition) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tREQUIRED")
	for _, d := range defs {
		req := strings.Join(d.Required(), ", ")
		if req == "" {
			req = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\n", d.Name, req)
	}
	return tw.Flush()
}

func writeCatalogueJSON(w io.Writer, defs []dispatch.Definition) error {
	type tool struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		InputSchema map[string]any `json:"input_schema"`
	}
	out := make([]tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, tool{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema()})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// ── call ──────────────────────────────────────────────────────────────────────

func newCallCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [arguments-json | -]",
		Short: "Invoke one tool in-process and print its result envelope",
		Long: "Invoke one tool in-process and print its result envelope.\n\n" +
			"Arguments are a JSON object given inline or, with \"-\", on stdin. " +
			"The command exits with status 1 when the envelope reports an error.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, g, args)
		},
	}
}

func runCall(cmd *cobra.Command, g *globalFlags, args []string) error {
	cfg, err := loadConfig(g, nil)
	if err != nil {
		return err
	}
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(level))

	var raw []byte
	if len(args) == 2 {
		if args[1] == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read arguments: %w", err)
			}
		} else {
			raw = []byte(args[1])
		}
	}

	ctx := cmd.Context()
	backends := config.NewRegistry()
	registerBuiltinBackends(backends)
	vs, release, err := buildRetriever(ctx, cfg.VectorStore, backends, nil)
	defer release()
	if err != nil {
		return err
	}

	router := dispatch.NewRouter(dispatch.Catalogue(vs))
	router.Select(selection(cfg.Tools))
	env := router.Invoke(ctx, args[0], raw)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return err
	}
	if !env.OK {
		return exitCode(1)
	}
	return nil
}
