package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// LookupFunc reads an environment variable. [os.LookupEnv] satisfies it.
type LookupFunc func(key string) (string, bool)

// Environment variables that override the file.
const (
	EnvBindAddress   = "BIND_ADDRESS"
	EnvLogLevel      = "FINENGINE_LOG_LEVEL"
	EnvTransport     = "FINENGINE_TRANSPORT"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvVectorStoreID = "VECTOR_STORE_ID"
	EnvPostgresDSN   = "FINENGINE_POSTGRES_DSN"
)

// ValidBackends lists the vector store backends that ship with finengine.
var ValidBackends = []string{BackendOpenAI, BackendPGVector}

// Load reads the YAML configuration file at path, applies environment
// overrides from env and defaults, and validates the result. An empty path
// starts from an empty configuration. env may be nil.
func Load(path string, env LookupFunc) (*Config, error) {
	if path == "" {
		return LoadFromReader(strings.NewReader(""), env)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data), env)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies env overrides and
// defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader, env LookupFunc) (*Config, error) {
	return decode(r, env, nil)
}

// decode is LoadFromReader with an optional override that runs after the
// defaults, followed by a second defaults pass for fields it cleared.
func decode(r io.Reader, env LookupFunc, override func(*Config)) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if env != nil {
		ApplyEnv(cfg, env)
	}
	ApplyDefaults(cfg)
	if override != nil {
		override(cfg)
		ApplyDefaults(cfg)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overwrites fields of cfg with the environment variables that are
// set and non-empty.
func ApplyEnv(cfg *Config, env LookupFunc) {
	set := func(key string, dst *string) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvBindAddress, &cfg.Server.ListenAddr)
	set(EnvOpenAIAPIKey, &cfg.VectorStore.APIKey)
	set(EnvVectorStoreID, &cfg.VectorStore.VectorStoreID)
	set(EnvPostgresDSN, &cfg.VectorStore.PostgresDSN)

	var level, transport string
	set(EnvLogLevel, &level)
	set(EnvTransport, &transport)
	if level != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(level))
	}
	if transport != "" {
		cfg.Server.Transport = Transport(strings.ToLower(transport))
	}
}

// ApplyDefaults fills zero-valued fields. Backends that have credentials but
// no explicit selection stay disabled.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = DefaultTransport
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = cfg.Server.Transport.DefaultListenAddr()
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	vs := &cfg.VectorStore
	if vs.Timeout == 0 {
		vs.Timeout = DefaultVectorStoreTimeout
	}
	if vs.EmbeddingModel == "" {
		vs.EmbeddingModel = DefaultEmbeddingModel
	}
	if vs.EmbeddingDimensions == 0 {
		vs.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Transport != "" && !cfg.Server.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("server.transport %q is invalid; valid values: stdio, sse, streamable-http", cfg.Server.Transport))
	}
	if cfg.Server.Transport.IsHTTP() && cfg.Server.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("server.listen_addr is required for transport %q", cfg.Server.Transport))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}
	if cfg.Server.Stateless && cfg.Server.Transport != TransportStreamableHTTP {
		slog.Warn("server.stateless only applies to the streamable-http transport", "transport", cfg.Server.Transport)
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
		}
		if cfg.Server.Transport == TransportStdio {
			slog.Warn("server.tls is ignored for the stdio transport")
		}
	}

	// Tools
	for i, name := range cfg.Tools.Enabled {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("tools.enabled[%d] must not be empty", i))
		}
		if slices.Contains(cfg.Tools.Disabled, name) {
			errs = append(errs, fmt.Errorf("tools.enabled[%d] %q is also listed in tools.disabled", i, name))
		}
	}
	for i, name := range cfg.Tools.Disabled {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("tools.disabled[%d] must not be empty", i))
		}
	}

	errs = append(errs, validateVectorStore(&cfg.VectorStore)...)
	return errors.Join(errs...)
}

func validateVectorStore(vs *VectorStoreConfig) []error {
	var errs []error

	for _, field := range []struct{ key, name string }{
		{"vector_store.backend", vs.Backend},
		{"vector_store.fallback", vs.Fallback},
	} {
		if field.name != "" && !slices.Contains(ValidBackends, field.name) {
			errs = append(errs, fmt.Errorf("%s %q is invalid; valid values: %s", field.key, field.name, strings.Join(ValidBackends, ", ")))
		}
	}
	if vs.Fallback != "" {
		if vs.Backend == "" {
			errs = append(errs, fmt.Errorf("vector_store.fallback requires vector_store.backend"))
		} else if vs.Fallback == vs.Backend {
			errs = append(errs, fmt.Errorf("vector_store.fallback must differ from vector_store.backend"))
		}
	}

	backends := vs.Backends()
	if len(backends) == 0 {
		if vs.APIKey != "" || vs.VectorStoreID != "" || vs.PostgresDSN != "" {
			slog.Warn("vector store credentials are set but vector_store.backend is empty; get_metrics_from_vector_store is disabled")
		}
		return errs
	}
	if vs.APIKey == "" {
		errs = append(errs, fmt.Errorf("vector_store.api_key (or %s) is required for backend %q", EnvOpenAIAPIKey, backends[0]))
	}
	if slices.Contains(backends, BackendOpenAI) && vs.VectorStoreID == "" {
		errs = append(errs, fmt.Errorf("vector_store.vector_store_id (or %s) is required for backend %q", EnvVectorStoreID, BackendOpenAI))
	}
	if slices.Contains(backends, BackendPGVector) {
		if vs.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("vector_store.postgres_dsn (or %s) is required for backend %q", EnvPostgresDSN, BackendPGVector))
		}
		if vs.EmbeddingDimensions < 0 || vs.EmbeddingDimensions > MaxEmbeddingDimensions {
			errs = append(errs, fmt.Errorf("vector_store.embedding_dimensions %d is out of range [1, %d]", vs.EmbeddingDimensions, MaxEmbeddingDimensions))
		}
	}
	if vs.Timeout < 0 {
		errs = append(errs, fmt.Errorf("vector_store.timeout must not be negative"))
	}
	cb := vs.CircuitBreaker
	if cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("vector_store.circuit_breaker values must not be negative"))
	}
	return errs
}
