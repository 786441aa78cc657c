package transcript

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/voxgate/voxgate/internal/store"
)

// Assembler builds the ordered transcript of one call. It assigns sequence
// numbers, runs user finals through a [Deduper], and appends accepted lines
// to the call store.
//
// Safe for concurrent use; the turn sink and the response loop append from
// different goroutines.
type Assembler struct {
	callID string
	st     store.Store
	dedup  *Deduper

	mu    sync.Mutex
	seq   int
	lines []store.TranscriptLine
}

// NewAssembler returns an Assembler for callID writing through st.
// dedup may be nil to disable duplicate suppression.
func NewAssembler(callID string, st store.Store, dedup *Deduper) *Assembler {
	return &Assembler{
		callID: callID,
		st:     st,
		dedup:  dedup,
	}
}

// AddUserFinal records a completed user turn. It returns false when the text
// was suppressed as a near-duplicate or was empty.
func (a *Assembler) AddUserFinal(ctx context.Context, text string, at time.Time) (bool, error) {
	if a.dedup != nil && a.dedup.IsDuplicate(text, at) {
		return false, nil
	}
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	return true, a.append(ctx, store.RoleCaller, text, at)
}

// AddBotLine records text the bot spoke. Interrupted responses should pass
// only the sentences that actually reached the caller.
func (a *Assembler) AddBotLine(ctx context.Context, text string, at time.Time) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return a.append(ctx, store.RoleBot, text, at)
}

// AddSystemLine records a synthetic line such as the injected memory context.
func (a *Assembler) AddSystemLine(ctx context.Context, text string, at time.Time) error {
	return a.append(ctx, store.RoleSystem, text, at)
}

func (a *Assembler) append(ctx context.Context, role store.Role, text string, at time.Time) error {
	a.mu.Lock()
	a.seq++
	line := store.TranscriptLine{
		CallID:  a.callID,
		Seq:     a.seq,
		Role:    role,
		Content: text,
		At:      at,
	}
	a.lines = append(a.lines, line)
	a.mu.Unlock()

	if err := a.st.AppendTranscript(ctx, line); err != nil {
		return fmt.Errorf("transcript: append line %d: %w", line.Seq, err)
	}
	return nil
}

// Lines returns a copy of all lines recorded so far, in order.
func (a *Assembler) Lines() []store.TranscriptLine {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]store.TranscriptLine, len(a.lines))
	copy(out, a.lines)
	return out
}

// Render formats the transcript as one line per utterance:
//
//	[(15:04:05) caller: I'd like to book an appointment.]
//
// Used for the post-call memory ingest.
func (a *Assembler) Render() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	for _, line := range a.lines {
		fmt.Fprintf(&b, "[(%s) %s: %s]\n", line.At.Format("15:04:05"), line.Role, line.Content)
	}
	return b.String()
}
