package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/finengine/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string // substring of the error; empty means valid
	}{
		{
			name: "invalid log level",
			yaml: "server:\n  log_level: verbose\n",
			want: "server.log_level",
		},
		{
			name: "invalid transport",
			yaml: "server:\n  transport: websocket\n",
			want: "server.transport",
		},
		{
			name: "negative shutdown timeout",
			yaml: "server:\n  shutdown_timeout: -1s\n",
			want: "server.shutdown_timeout",
		},
		{
			name: "tls missing key",
			yaml: "server:\n  transport: sse\n  tls:\n    cert_file: c.pem\n",
			want: "server.tls",
		},
		{
			name: "tool both enabled and disabled",
			yaml: "tools:\n  enabled: [gini_coefficient]\n  disabled: [gini_coefficient]\n",
			want: "also listed in tools.disabled",
		},
		{
			name: "empty tool name",
			yaml: "tools:\n  disabled: [\"\"]\n",
			want: "tools.disabled[0]",
		},
		{
			name: "unknown backend",
			yaml: "vector_store:\n  backend: weaviate\n  api_key: k\n",
			want: "vector_store.backend",
		},
		{
			name: "fallback without backend",
			yaml: "vector_store:\n  fallback: openai\n",
			want: "requires vector_store.backend",
		},
		{
			name: "fallback equals backend",
			yaml: "vector_store:\n  backend: openai\n  fallback: openai\n  api_key: k\n  vector_store_id: vs\n",
			want: "must differ",
		},
		{
			name: "openai without key",
			yaml: "vector_store:\n  backend: openai\n  vector_store_id: vs\n",
			want: "vector_store.api_key",
		},
		{
			name: "openai without store id",
			yaml: "vector_store:\n  backend: openai\n  api_key: k\n",
			want: "vector_store.vector_store_id",
		},
		{
			name: "pgvector without dsn",
			yaml: "vector_store:\n  backend: pgvector\n  api_key: k\n",
			want: "vector_store.postgres_dsn",
		},
		{
			name: "pgvector dimensions above hnsw limit",
			yaml: "vector_store:\n  backend: pgvector\n  api_key: k\n  postgres_dsn: postgres://x\n  embedding_dimensions: 3072\n",
			want: "embedding_dimensions",
		},
		{
			name: "negative breaker values",
			yaml: "vector_store:\n  backend: openai\n  api_key: k\n  vector_store_id: vs\n  circuit_breaker:\n    max_failures: -1\n",
			want: "circuit_breaker",
		},
		{
			name: "valid openai",
			yaml: "vector_store:\n  backend: openai\n  api_key: k\n  vector_store_id: vs\n",
		},
		{
			name: "valid pgvector",
			yaml: "vector_store:\n  backend: pgvector\n  api_key: k\n  postgres_dsn: postgres://x\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml), nil)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{
			LogLevel:  "bananas",
			Transport: "carrier-pigeon",
		},
		VectorStore: config.VectorStoreConfig{Backend: "openai"},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	msg := err.Error()
	for _, want := range []string{"server.log_level", "server.transport", "vector_store.api_key", "vector_store.vector_store_id"} {
		if !strings.Contains(msg, want) {
			t.Errorf("joined error does not mention %q: %v", want, msg)
		}
	}
}

func TestTransport(t *testing.T) {
	t.Parallel()
	tests := []struct {
		tr     config.Transport
		valid  bool
		isHTTP bool
	}{
		{config.TransportStdio, true, false},
		{config.TransportSSE, true, true},
		{config.TransportStreamableHTTP, true, true},
		{"http", false, false},
	}
	for _, tt := range tests {
		if tt.tr.IsValid() != tt.valid || tt.tr.IsHTTP() != tt.isHTTP {
			t.Errorf("%q: IsValid=%v IsHTTP=%v", tt.tr, tt.tr.IsValid(), tt.tr.IsHTTP())
		}
	}
}
