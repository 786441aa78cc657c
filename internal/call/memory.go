package call

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxgate/voxgate/internal/store"
	"github.com/voxgate/voxgate/pkg/memory"
)

// memoryTopK bounds how many recalled facts are injected at call start.
const memoryTopK = 6

// recallQuery is the generic probe embedded at call start. The caller has not
// said anything yet, so the query asks for the durable context a greeting can
// use.
const recallQuery = "caller profile, preferences, goals, what we last discussed"

// memoryEnabled reports whether this call participates in caller memory.
func (s *Session) memoryEnabled() (callerID string, ok bool) {
	callerID = s.p.Media.Start().CallerNumber()
	if !s.p.Agent.EnableMemory || callerID == "" || s.p.Pipeline.Memory == nil {
		return "", false
	}
	return callerID, true
}

// bootstrapMemory records the call in the caller directory and builds the
// memory block injected into the system prompt. Entirely best-effort: a cold
// or failing memory store degrades to a first-contact conversation.
func (s *Session) bootstrapMemory(ctx context.Context) {
	callerID, ok := s.memoryEnabled()
	if !ok {
		return
	}
	mem := s.p.Pipeline.Memory

	if err := mem.TouchCaller(ctx, callerID, time.Now()); err != nil {
		s.log.Warn("caller directory touch failed", "error", err)
	}

	var b strings.Builder
	profile, err := mem.GetCaller(ctx, callerID)
	switch {
	case err != nil:
		s.log.Warn("caller profile lookup failed", "error", err)
	case profile != nil && profile.CallCount > 1:
		name := profile.DisplayName
		if name == "" {
			name = "unknown name"
		}
		fmt.Fprintf(&b, "Caller: %s, %d previous calls, first seen %s.\n",
			name, profile.CallCount-1, profile.FirstSeen.Format("2006-01-02"))
	}

	facts := 0
	if s.p.Pipeline.Embedder != nil {
		emb, err := s.p.Pipeline.Embedder.Embed(ctx, recallQuery)
		if err != nil {
			s.log.Warn("recall query embedding failed", "error", err)
		} else {
			results, err := mem.Recall(ctx, callerID, emb, memoryTopK)
			if err != nil {
				s.log.Warn("caller memory recall failed", "error", err)
			}
			for _, r := range results {
				fmt.Fprintf(&b, "- %s\n", r.Fact.Content)
				facts++
			}
		}
	}

	if b.Len() == 0 {
		return
	}
	block := "You have spoken with this caller before. Known context:\n" + b.String()

	s.mu.Lock()
	s.memoryBlock = block
	s.mu.Unlock()

	if err := s.asm.AddSystemLine(ctx, block, time.Now()); err != nil {
		s.log.Warn("transcript append failed", "error", err)
	}
	s.log.Info("caller memory injected", "facts", facts)
}

// ingestMemory embeds every caller utterance from the finished call and saves
// each as a fact, so the next call can recall what was discussed.
func (s *Session) ingestMemory(ctx context.Context) {
	callerID, ok := s.memoryEnabled()
	if !ok || s.p.Pipeline.Embedder == nil {
		return
	}

	var texts []string
	var times []time.Time
	for _, line := range s.asm.Lines() {
		if line.Role != store.RoleCaller {
			continue
		}
		if text := strings.TrimSpace(line.Content); text != "" {
			texts = append(texts, text)
			times = append(times, line.At)
		}
	}
	if len(texts) == 0 {
		return
	}

	vectors, err := s.p.Pipeline.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.log.Warn("transcript embedding failed", "error", err)
		return
	}

	saved := 0
	for i, text := range texts {
		fact := memory.Fact{
			ID:        uuid.NewString(),
			CallerID:  callerID,
			CallID:    s.p.CallID,
			Content:   text,
			Embedding: vectors[i],
			Kind:      "utterance",
			CreatedAt: times[i],
		}
		if err := s.p.Pipeline.Memory.SaveFact(ctx, fact); err != nil {
			s.log.Warn("fact not saved", "error", err)
			continue
		}
		saved++
	}
	s.log.Info("transcript ingested into caller memory", "facts", saved)
}
