package transcript

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voxgate/voxgate/internal/store"
)

func TestAssembler_SequencesAndPersists(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	a := NewAssembler("call-1", ms, nil)
	ctx := context.Background()
	now := time.Now()

	if err := a.AddSystemLine(ctx, "returning caller, prefers afternoons", now); err != nil {
		t.Fatalf("AddSystemLine: %v", err)
	}
	if err := a.AddBotLine(ctx, "Hello, how can I help?", now.Add(time.Second)); err != nil {
		t.Fatalf("AddBotLine: %v", err)
	}
	added, err := a.AddUserFinal(ctx, "I'd like to book an appointment.", now.Add(4*time.Second))
	if err != nil {
		t.Fatalf("AddUserFinal: %v", err)
	}
	if !added {
		t.Fatal("user final should have been added")
	}

	lines := a.Lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, line := range lines {
		if line.Seq != i+1 {
			t.Errorf("line %d has seq %d", i, line.Seq)
		}
		if line.CallID != "call-1" {
			t.Errorf("line %d has call ID %q", i, line.CallID)
		}
	}

	persisted, err := ms.Transcript(ctx, "call-1")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(persisted) != 3 {
		t.Errorf("expected 3 persisted lines, got %d", len(persisted))
	}
}

func TestAssembler_DuplicateUserFinalSkipped(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	a := NewAssembler("call-1", ms, NewDeduper())
	ctx := context.Background()
	now := time.Now()

	added, err := a.AddUserFinal(ctx, "hello there", now)
	if err != nil || !added {
		t.Fatalf("first final: added=%v err=%v", added, err)
	}
	added, err = a.AddUserFinal(ctx, "hello there", now.Add(300*time.Millisecond))
	if err != nil {
		t.Fatalf("second final: %v", err)
	}
	if added {
		t.Error("duplicate final should have been skipped")
	}
	if len(a.Lines()) != 1 {
		t.Errorf("expected 1 line, got %d", len(a.Lines()))
	}
}

func TestAssembler_EmptyLinesIgnored(t *testing.T) {
	t.Parallel()
	a := NewAssembler("call-1", store.NewMemStore(), nil)
	ctx := context.Background()

	added, err := a.AddUserFinal(ctx, "  ", time.Now())
	if err != nil {
		t.Fatalf("AddUserFinal: %v", err)
	}
	if added {
		t.Error("blank user final should be ignored")
	}
	if err := a.AddBotLine(ctx, "", time.Now()); err != nil {
		t.Fatalf("AddBotLine: %v", err)
	}
	if len(a.Lines()) != 0 {
		t.Errorf("expected no lines, got %d", len(a.Lines()))
	}
}

func TestAssembler_Render(t *testing.T) {
	t.Parallel()
	a := NewAssembler("call-1", store.NewMemStore(), nil)
	ctx := context.Background()
	at := time.Date(2026, 8, 24, 15, 4, 5, 0, time.UTC)

	if err := a.AddBotLine(ctx, "Hello!", at); err != nil {
		t.Fatalf("AddBotLine: %v", err)
	}
	if _, err := a.AddUserFinal(ctx, "Hi.", at.Add(2*time.Second)); err != nil {
		t.Fatalf("AddUserFinal: %v", err)
	}

	got := a.Render()
	want := "[(15:04:05) bot: Hello!]\n[(15:04:07) caller: Hi.]\n"
	if got != want {
		t.Errorf("Render:\n got %q\nwant %q", got, want)
	}
}

// failingStore wraps a Store and fails every AppendTranscript call.
type failingStore struct {
	store.Store
	err error
}

func (f *failingStore) AppendTranscript(ctx context.Context, line store.TranscriptLine) error {
	return f.err
}

func TestAssembler_StoreErrorSurfaced(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("db down")
	fs := &failingStore{Store: store.NewMemStore(), err: wantErr}
	a := NewAssembler("call-1", fs, nil)

	err := a.AddBotLine(context.Background(), "Hello!", time.Now())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if !strings.Contains(err.Error(), "transcript:") {
		t.Errorf("error not wrapped with package prefix: %v", err)
	}
	// The line is still kept in memory so Render works without the store.
	if len(a.Lines()) != 1 {
		t.Errorf("expected line kept locally, got %d", len(a.Lines()))
	}
}
