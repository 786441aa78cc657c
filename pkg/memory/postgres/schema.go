// Package postgres provides a PostgreSQL-backed implementation of the
// voxgate caller-memory layer (caller directory plus pgvector fact index).
//
// Both parts share a single [pgxpool.Pool] connection pool. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { ... }
//
//	_ = store.TouchCaller(ctx, "+14155550123", time.Now())
//	_ = store.SaveFact(ctx, fact)
//	results, _ := store.Recall(ctx, "+14155550123", queryVec, 5)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCallers = `
CREATE TABLE IF NOT EXISTS callers (
    caller_id    TEXT         PRIMARY KEY,
    display_name TEXT         NOT NULL DEFAULT '',
    attributes   JSONB        NOT NULL DEFAULT '{}',
    first_seen   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    last_seen    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    call_count   INTEGER      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_callers_last_seen
    ON callers (last_seen);
`

// ddlFacts returns the fact-index DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlFacts(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS caller_facts (
    id          TEXT         PRIMARY KEY,
    caller_id   TEXT         NOT NULL,
    call_id     TEXT         NOT NULL DEFAULT '',
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    kind        TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_caller_facts_caller_id
    ON caller_facts (caller_id);

CREATE INDEX IF NOT EXISTS idx_caller_facts_created_at
    ON caller_facts (caller_id, created_at);

CREATE INDEX IF NOT EXISTS idx_caller_facts_embedding
    ON caller_facts USING hnsw (embedding vector_cosine_ops);

CREATE INDEX IF NOT EXISTS idx_caller_facts_fts
    ON caller_facts USING GIN (to_tsvector('english', content));
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires a
// manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlCallers,
		ddlFacts(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
