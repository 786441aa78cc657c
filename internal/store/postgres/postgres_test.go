package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxgate/voxgate/internal/store"
	"github.com/voxgate/voxgate/internal/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if VOXGATE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOXGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOXGATE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(pool.Close)
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS transcript_lines`,
		`DROP TABLE IF EXISTS calls`,
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema: %v", err)
		}
	}

	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestCallLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Now().Truncate(time.Millisecond)
	rec := store.CallRecord{
		CallID:    "call-1",
		AgentID:   "reception",
		CallerID:  "+14155550123",
		StartedAt: started,
	}
	if err := s.BeginCall(ctx, rec); err != nil {
		t.Fatalf("BeginCall: %v", err)
	}

	got, err := s.GetCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if !got.EndedAt.IsZero() || got.EndReason != "" {
		t.Errorf("live call should have no end fields: %+v", got)
	}

	ended := time.Now().Truncate(time.Millisecond)
	if err := s.EndCall(ctx, "call-1", ended, "hangup", "/recordings/call-1.wav"); err != nil {
		t.Fatalf("EndCall: %v", err)
	}

	got, err = s.GetCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("GetCall after end: %v", err)
	}
	if !got.EndedAt.Equal(ended) || got.EndReason != "hangup" {
		t.Errorf("end fields not persisted: %+v", got)
	}
	if got.RecordingPath != "/recordings/call-1.wav" {
		t.Errorf("RecordingPath = %q", got.RecordingPath)
	}
}

func TestBeginCall_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := store.CallRecord{CallID: "call-1", StartedAt: time.Now()}
	if err := s.BeginCall(ctx, rec); err != nil {
		t.Fatalf("BeginCall: %v", err)
	}
	if err := s.BeginCall(ctx, rec); !errors.Is(err, store.ErrDuplicateCall) {
		t.Errorf("expected ErrDuplicateCall, got %v", err)
	}
}

func TestEndCall_Unknown(t *testing.T) {
	s := newTestStore(t)

	err := s.EndCall(context.Background(), "nope", time.Now(), "hangup", "")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetCall_Unknown(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCall(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentCalls_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		err := s.BeginCall(ctx, store.CallRecord{
			CallID:    id,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("BeginCall(%s): %v", id, err)
		}
	}

	calls, err := s.RecentCalls(ctx, 2)
	if err != nil {
		t.Fatalf("RecentCalls: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].CallID != "new" || calls[1].CallID != "mid" {
		t.Errorf("order = [%s %s], want [new mid]", calls[0].CallID, calls[1].CallID)
	}
}

func TestTranscript_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.BeginCall(ctx, store.CallRecord{CallID: "call-1", StartedAt: time.Now()}); err != nil {
		t.Fatalf("BeginCall: %v", err)
	}

	at := time.Now().Truncate(time.Millisecond)
	lines := []store.TranscriptLine{
		{CallID: "call-1", Seq: 1, Role: store.RoleBot, Content: "Hello, how can I help?", At: at},
		{CallID: "call-1", Seq: 2, Role: store.RoleCaller, Content: "I'd like to book an appointment.", At: at.Add(3 * time.Second)},
	}
	for _, l := range lines {
		if err := s.AppendTranscript(ctx, l); err != nil {
			t.Fatalf("AppendTranscript(seq %d): %v", l.Seq, err)
		}
	}

	got, err := s.Transcript(ctx, "call-1")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got))
	}
	if got[0].Role != store.RoleBot || got[1].Content != "I'd like to book an appointment." {
		t.Errorf("unexpected lines: %+v", got)
	}
}

func TestTranscript_UnknownCallEmpty(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Transcript(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty transcript, got %d lines", len(got))
	}
}
