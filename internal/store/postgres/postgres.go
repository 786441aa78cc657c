// Package postgres provides the pgx-backed implementation of
// [store.Store]. It owns its own schema (calls and transcript_lines tables)
// and migrates it on start.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxgate/voxgate/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS calls (
    call_id        TEXT         PRIMARY KEY,
    agent_id       TEXT         NOT NULL DEFAULT '',
    caller_id      TEXT         NOT NULL DEFAULT '',
    started_at     TIMESTAMPTZ  NOT NULL,
    ended_at       TIMESTAMPTZ,
    end_reason     TEXT         NOT NULL DEFAULT '',
    recording_path TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_calls_started_at
    ON calls (started_at DESC);

CREATE INDEX IF NOT EXISTS idx_calls_caller_id
    ON calls (caller_id);

CREATE TABLE IF NOT EXISTS transcript_lines (
    call_id  TEXT         NOT NULL,
    seq      INTEGER      NOT NULL,
    role     TEXT         NOT NULL,
    content  TEXT         NOT NULL,
    at       TIMESTAMPTZ  NOT NULL,
    PRIMARY KEY (call_id, seq)
);
`

// Store is the PostgreSQL-backed call record store.
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and runs the schema migration.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("call store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("call store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("call store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping verifies database connectivity. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// BeginCall implements [store.Store].
func (s *Store) BeginCall(ctx context.Context, rec store.CallRecord) error {
	const q = `
		INSERT INTO calls (call_id, agent_id, caller_id, started_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, rec.CallID, rec.AgentID, rec.CallerID, rec.StartedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicateCall
	}
	if err != nil {
		return fmt.Errorf("call store: begin call: %w", err)
	}
	return nil
}

// EndCall implements [store.Store].
func (s *Store) EndCall(ctx context.Context, callID string, endedAt time.Time, reason, recordingPath string) error {
	const q = `
		UPDATE calls
		SET    ended_at   = $2,
		       end_reason = $3,
		       recording_path = CASE WHEN $4 = '' THEN recording_path ELSE $4 END
		WHERE  call_id = $1`

	tag, err := s.pool.Exec(ctx, q, callID, endedAt, reason, recordingPath)
	if err != nil {
		return fmt.Errorf("call store: end call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetCall implements [store.Store].
func (s *Store) GetCall(ctx context.Context, callID string) (store.CallRecord, error) {
	const q = `
		SELECT call_id, agent_id, caller_id, started_at, ended_at, end_reason, recording_path
		FROM   calls
		WHERE  call_id = $1`

	rec, err := scanCall(s.pool.QueryRow(ctx, q, callID))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.CallRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.CallRecord{}, fmt.Errorf("call store: get call: %w", err)
	}
	return rec, nil
}

// RecentCalls implements [store.Store].
func (s *Store) RecentCalls(ctx context.Context, limit int) ([]store.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `
		SELECT call_id, agent_id, caller_id, started_at, ended_at, end_reason, recording_path
		FROM   calls
		ORDER  BY started_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("call store: recent calls: %w", err)
	}

	calls, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.CallRecord, error) {
		return scanCall(row)
	})
	if err != nil {
		return nil, fmt.Errorf("call store: recent calls scan: %w", err)
	}
	if calls == nil {
		calls = []store.CallRecord{}
	}
	return calls, nil
}

// AppendTranscript implements [store.Store].
func (s *Store) AppendTranscript(ctx context.Context, line store.TranscriptLine) error {
	const q = `
		INSERT INTO transcript_lines (call_id, seq, role, content, at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q, line.CallID, line.Seq, line.Role, line.Content, line.At)
	if err != nil {
		return fmt.Errorf("call store: append transcript: %w", err)
	}
	return nil
}

// Transcript implements [store.Store].
func (s *Store) Transcript(ctx context.Context, callID string) ([]store.TranscriptLine, error) {
	const q = `
		SELECT call_id, seq, role, content, at
		FROM   transcript_lines
		WHERE  call_id = $1
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q, callID)
	if err != nil {
		return nil, fmt.Errorf("call store: transcript: %w", err)
	}

	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.TranscriptLine, error) {
		var l store.TranscriptLine
		err := row.Scan(&l.CallID, &l.Seq, &l.Role, &l.Content, &l.At)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("call store: transcript scan: %w", err)
	}
	if lines == nil {
		lines = []store.TranscriptLine{}
	}
	return lines, nil
}

// scanCall scans one calls row, mapping a NULL ended_at to the zero time.
func scanCall(row pgx.Row) (store.CallRecord, error) {
	var (
		rec   store.CallRecord
		ended *time.Time
	)
	err := row.Scan(
		&rec.CallID,
		&rec.AgentID,
		&rec.CallerID,
		&rec.StartedAt,
		&ended,
		&rec.EndReason,
		&rec.RecordingPath,
	)
	if err != nil {
		return store.CallRecord{}, err
	}
	if ended != nil {
		rec.EndedAt = *ended
	}
	return rec, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
