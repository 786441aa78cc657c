package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/voxgate/voxgate/pkg/memory"
)

// defaultFactLimit caps RecentFacts and SearchFacts results when the caller
// passes limit <= 0.
const defaultFactLimit = 20

// SaveFact implements [memory.FactIndex]. It upserts a pre-embedded
// [memory.Fact] into the caller_facts table. If a fact with the same ID
// already exists it is completely replaced.
func (s *Store) SaveFact(ctx context.Context, fact memory.Fact) error {
	if fact.ID == "" {
		return errors.New("memory store: save fact: fact id must not be empty")
	}
	if fact.CallerID == "" {
		return errors.New("memory store: save fact: caller id must not be empty")
	}

	const q = `
		INSERT INTO caller_facts
		    (id, caller_id, call_id, content, embedding, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    caller_id  = EXCLUDED.caller_id,
		    call_id    = EXCLUDED.call_id,
		    content    = EXCLUDED.content,
		    embedding  = EXCLUDED.embedding,
		    kind       = EXCLUDED.kind,
		    created_at = EXCLUDED.created_at`

	createdAt := fact.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, q,
		fact.ID,
		fact.CallerID,
		fact.CallID,
		fact.Content,
		pgvector.NewVector(fact.Embedding),
		fact.Kind,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("memory store: save fact: %w", err)
	}
	return nil
}

// Recall implements [memory.FactIndex]. It finds the topK facts for callerID
// whose embeddings are closest (cosine distance) to the supplied query
// embedding, ordered by ascending distance (most similar first).
func (s *Store) Recall(ctx context.Context, callerID string, embedding []float32, topK int) ([]memory.FactResult, error) {
	if topK <= 0 {
		topK = defaultFactLimit
	}

	const q = `
		SELECT id, caller_id, call_id, content, embedding, kind, created_at,
		       embedding <=> $2 AS distance
		FROM   caller_facts
		WHERE  caller_id = $1
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, callerID, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("memory store: recall: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.FactResult, error) {
		var (
			fr  memory.FactResult
			vec pgvector.Vector
		)
		if err := row.Scan(
			&fr.Fact.ID,
			&fr.Fact.CallerID,
			&fr.Fact.CallID,
			&fr.Fact.Content,
			&vec,
			&fr.Fact.Kind,
			&fr.Fact.CreatedAt,
			&fr.Distance,
		); err != nil {
			return memory.FactResult{}, err
		}
		fr.Fact.Embedding = vec.Slice()
		return fr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: recall scan: %w", err)
	}
	if results == nil {
		results = []memory.FactResult{}
	}
	return results, nil
}

// RecentFacts implements [memory.FactIndex]. Facts are returned newest first.
func (s *Store) RecentFacts(ctx context.Context, callerID string, limit int) ([]memory.Fact, error) {
	if limit <= 0 {
		limit = defaultFactLimit
	}

	const q = `
		SELECT id, caller_id, call_id, content, embedding, kind, created_at
		FROM   caller_facts
		WHERE  caller_id = $1
		ORDER  BY created_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, callerID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory store: recent facts: %w", err)
	}
	return collectFacts(rows)
}

// SearchFacts implements [memory.FactIndex]. It performs a PostgreSQL
// full-text search over the content column, scoped to callerID. The query is
// passed to plainto_tsquery so no special operator syntax is required.
func (s *Store) SearchFacts(ctx context.Context, callerID, query string, limit int) ([]memory.Fact, error) {
	if limit <= 0 {
		limit = defaultFactLimit
	}

	const q = `
		SELECT id, caller_id, call_id, content, embedding, kind, created_at
		FROM   caller_facts
		WHERE  caller_id = $1
		  AND  to_tsvector('english', content) @@ plainto_tsquery('english', $2)
		ORDER  BY ts_rank(to_tsvector('english', content), plainto_tsquery('english', $2)) DESC
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, callerID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("memory store: search facts: %w", err)
	}
	return collectFacts(rows)
}

// collectFacts scans pgx rows into a slice of Fact values.
func collectFacts(rows pgx.Rows) ([]memory.Fact, error) {
	facts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Fact, error) {
		var (
			f   memory.Fact
			vec pgvector.Vector
		)
		if err := row.Scan(
			&f.ID,
			&f.CallerID,
			&f.CallID,
			&f.Content,
			&vec,
			&f.Kind,
			&f.CreatedAt,
		); err != nil {
			return memory.Fact{}, err
		}
		f.Embedding = vec.Slice()
		return f, nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: scan facts: %w", err)
	}
	if facts == nil {
		facts = []memory.Fact{}
	}
	return facts, nil
}
