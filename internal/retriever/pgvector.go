package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Ensure PGVector implements the Searcher and Pinger interfaces.
var (
	_ Searcher = (*PGVector)(nil)
	_ Pinger   = (*PGVector)(nil)
)

// ddlDocuments returns the document table DDL with the embedding dimension
// substituted. The dimension is baked into the column type at creation time.
func ddlDocuments(dimensions int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS metric_documents (
    id          TEXT         PRIMARY KEY,
    file_id     TEXT         NOT NULL,
    filename    TEXT         NOT NULL DEFAULT '',
    content     TEXT         NOT NULL,
    attributes  JSONB        NOT NULL DEFAULT '{}',
    embedding   vector(%d)   NOT NULL,
    indexed_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_metric_documents_file_id
    ON metric_documents (file_id);

CREATE INDEX IF NOT EXISTS idx_metric_documents_attributes
    ON metric_documents USING GIN (attributes jsonb_path_ops);

CREATE INDEX IF NOT EXISTS idx_metric_documents_embedding
    ON metric_documents USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// Migrate creates the document table and its indexes. It is idempotent and
// safe to call on every start. Changing dimensions after the first migration
// requires a manual schema change.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	if _, err := pool.Exec(ctx, ddlDocuments(dimensions)); err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	return nil
}

// Document is one indexed chunk of a source file.
type Document struct {
	ID         string
	FileID     string
	Filename   string
	Content    string
	Attributes map[string]any
}

// PGVector is a self-hosted vector store on PostgreSQL with the pgvector
// extension. Queries are embedded with an [Embedder] and matched by cosine
// similarity. It is safe for concurrent use.
type PGVector struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// NewPGVector connects to the database at dsn, installs the pgvector
// extension when missing, registers the vector types on every connection and
// runs [Migrate] with the embedder's dimensions.
func NewPGVector(ctx context.Context, dsn string, embedder Embedder) (*PGVector, error) {
	if embedder == nil {
		return nil, fmt.Errorf("pgvector: embedder must not be nil")
	}
	if err := ensureExtension(ctx, dsn); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	return &PGVector{pool: pool, embedder: embedder}, nil
}

// ensureExtension runs CREATE EXTENSION on a plain connection. The pool's
// AfterConnect hook needs the vector type to exist already.
func ensureExtension(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("pgvector: connect: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: create extension: %w", err)
	}
	return nil
}

// IndexDocument embeds doc and upserts it. A document with the same ID is
// replaced.
func (p *PGVector) IndexDocument(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("pgvector: index document: id must not be empty")
	}
	emb, err := p.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("pgvector: index document: %w", err)
	}
	attrs := doc.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	rawAttrs, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("pgvector: index document: marshal attributes: %w", err)
	}
	fileID := doc.FileID
	if fileID == "" {
		fileID = doc.ID
	}

	const q = `
		INSERT INTO metric_documents
		    (id, file_id, filename, content, attributes, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    file_id     = EXCLUDED.file_id,
		    filename    = EXCLUDED.filename,
		    content     = EXCLUDED.content,
		    attributes  = EXCLUDED.attributes,
		    embedding   = EXCLUDED.embedding,
		    indexed_at  = now()`

	if _, err := p.pool.Exec(ctx, q,
		doc.ID,
		fileID,
		doc.Filename,
		doc.Content,
		rawAttrs,
		pgvector.NewVector(emb),
	); err != nil {
		return fmt.Errorf("pgvector: index document: %w", err)
	}
	return nil
}

// Search implements [Searcher]. The score is the cosine similarity
// 1 - (embedding <=> query); results are ordered by descending score. The
// Ranker and RewriteQuery options of q do not apply to this backend.
func (p *PGVector) Search(ctx context.Context, q Query) ([]Chunk, error) {
	emb, err := p.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}

	args := []any{pgvector.NewVector(emb)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if q.ScoreThreshold > 0 {
		conditions = append(conditions, "1 - (embedding <=> $1) >= "+next(q.ScoreThreshold))
	}
	if len(q.Filters) > 0 {
		want := make(map[string]any, len(q.Filters))
		for _, f := range q.Filters {
			want[f.Key] = f.Value
		}
		raw, err := json.Marshal(want)
		if err != nil {
			return nil, fmt.Errorf("pgvector: search: marshal filters: %w", err)
		}
		conditions = append(conditions, "attributes @> "+next(raw)+"::jsonb")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	limit := q.MaxResults
	if limit <= 0 {
		limit = 10
	}
	limitArg := next(limit)

	sql := fmt.Sprintf(`
		SELECT file_id, filename, content, attributes,
		       1 - (embedding <=> $1) AS score
		FROM   metric_documents
		%s
		ORDER  BY embedding <=> $1
		LIMIT  %s`, whereClause, limitArg)

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}

	chunks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Chunk, error) {
		var (
			c       Chunk
			text    string
			rawAttr []byte
		)
		if err := row.Scan(&c.FileID, &c.Filename, &text, &rawAttr, &c.Score); err != nil {
			return Chunk{}, err
		}
		c.Content = []Content{{Type: "text", Text: text}}
		c.Attributes = map[string]any{}
		if len(rawAttr) > 0 {
			if err := json.Unmarshal(rawAttr, &c.Attributes); err != nil {
				return Chunk{}, fmt.Errorf("decode attributes: %w", err)
			}
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector: scan rows: %w", err)
	}
	if chunks == nil {
		chunks = []Chunk{}
	}
	return chunks, nil
}

// Ping implements [Pinger].
func (p *PGVector) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (p *PGVector) Close() {
	p.pool.Close()
}
