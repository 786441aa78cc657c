package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voxgate/voxgate/pkg/memory"
)

// UpsertCaller implements [memory.Directory]. FirstSeen is preserved when the
// caller already exists; every other field is overwritten.
func (s *Store) UpsertCaller(ctx context.Context, profile memory.CallerProfile) error {
	if profile.CallerID == "" {
		return errors.New("memory store: upsert caller: caller id must not be empty")
	}

	attrs := profile.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}

	const q = `
		INSERT INTO callers
		    (caller_id, display_name, attributes, first_seen, last_seen, call_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (caller_id) DO UPDATE SET
		    display_name = EXCLUDED.display_name,
		    attributes   = EXCLUDED.attributes,
		    last_seen    = EXCLUDED.last_seen,
		    call_count   = EXCLUDED.call_count`

	_, err := s.pool.Exec(ctx, q,
		profile.CallerID,
		profile.DisplayName,
		attrs,
		profile.FirstSeen,
		profile.LastSeen,
		profile.CallCount,
	)
	if err != nil {
		return fmt.Errorf("memory store: upsert caller: %w", err)
	}
	return nil
}

// GetCaller implements [memory.Directory]. Returns (nil, nil) when the caller
// is unknown.
func (s *Store) GetCaller(ctx context.Context, callerID string) (*memory.CallerProfile, error) {
	const q = `
		SELECT caller_id, display_name, attributes, first_seen, last_seen, call_count
		FROM   callers
		WHERE  caller_id = $1`

	var p memory.CallerProfile
	err := s.pool.QueryRow(ctx, q, callerID).Scan(
		&p.CallerID,
		&p.DisplayName,
		&p.Attributes,
		&p.FirstSeen,
		&p.LastSeen,
		&p.CallCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory store: get caller: %w", err)
	}
	return &p, nil
}

// TouchCaller implements [memory.Directory]. An unknown caller is created
// with FirstSeen = at and CallCount = 1; an existing caller gets LastSeen
// bumped and CallCount incremented.
func (s *Store) TouchCaller(ctx context.Context, callerID string, at time.Time) error {
	if callerID == "" {
		return errors.New("memory store: touch caller: caller id must not be empty")
	}

	const q = `
		INSERT INTO callers (caller_id, first_seen, last_seen, call_count)
		VALUES ($1, $2, $2, 1)
		ON CONFLICT (caller_id) DO UPDATE SET
		    last_seen  = EXCLUDED.last_seen,
		    call_count = callers.call_count + 1`

	if _, err := s.pool.Exec(ctx, q, callerID, at); err != nil {
		return fmt.Errorf("memory store: touch caller: %w", err)
	}
	return nil
}

// DeleteCaller implements [memory.Directory]. The profile and all facts are
// removed in one transaction so an erasure request cannot half-succeed.
func (s *Store) DeleteCaller(ctx context.Context, callerID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("memory store: delete caller: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM caller_facts WHERE caller_id = $1`, callerID); err != nil {
		return fmt.Errorf("memory store: delete caller facts: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM callers WHERE caller_id = $1`, callerID); err != nil {
		return fmt.Errorf("memory store: delete caller: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("memory store: delete caller: commit: %w", err)
	}
	return nil
}
