// Command finengine serves the financial metric calculators as a Model
// Context Protocol server.
//
// Usage:
//
//	finengine serve [--config finengine.yaml] [--transport stdio|sse|streamable-http] [--addr host:port]
//	finengine tools [--json]
//	finengine call <tool> ['{"json": "arguments"}' | -]
//	finengine probe --url http://127.0.0.1:8001/mcp [--tool name --args '{}']
//
// A .env file in the working directory is loaded before the configuration so
// that OPENAI_API_KEY and friends can live outside the YAML file.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/finengine/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// exitCode lets a command end the process with a specific status without
// printing an error.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func run(argv []string) int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "finengine: load .env: %v\n", err)
	}

	root := newRootCmd()
	root.SetArgs(argv)
	if err := root.Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			return int(code)
		}
		fmt.Fprintf(os.Stderr, "finengine: %v\n", err)
		return 1
	}
	return 0
}

// ── CLI flags ─────────────────────────────────────────────────────────────────

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "finengine",
		Short:         "Financial metric calculators over the Model Context Protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("FINENGINE_CONFIG"), "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(g),
		newToolsCmd(),
		newCallCmd(g),
		newProbeCmd(),
	)
	return root
}

// loadConfig reads the configuration file (if any) and environment, then
// applies the command-line overrides in override before re-validating.
func loadConfig(g *globalFlags, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(g.configPath, os.LookupEnv)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found; pass --config or omit it to run on environment variables only", g.configPath)
		}
		return nil, err
	}
	g.overrides(override)(cfg)
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overrides returns the command-line changes to apply on top of a loaded
// config: --log-level first, then the subcommand's own flags.
func (g *globalFlags) overrides(extra func(*config.Config)) func(*config.Config) {
	return func(cfg *config.Config) {
		if g.logLevel != "" {
			cfg.Server.LogLevel = config.LogLevel(g.logLevel)
		}
		if extra != nil {
			extra(cfg)
		}
	}
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
