package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// Used in tests and in deployments that run without a database.
// The zero value is ready to use.
type MemStore struct {
	mu          sync.RWMutex
	calls       map[string]CallRecord
	transcripts map[string][]TranscriptLine
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		calls:       make(map[string]CallRecord),
		transcripts: make(map[string][]TranscriptLine),
	}
}

// BeginCall implements [Store.BeginCall].
func (s *MemStore) BeginCall(ctx context.Context, rec CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls == nil {
		s.calls = make(map[string]CallRecord)
	}

	if _, exists := s.calls[rec.CallID]; exists {
		return ErrDuplicateCall
	}

	rec.EndedAt = time.Time{}
	rec.EndReason = ""
	rec.RecordingPath = ""
	s.calls[rec.CallID] = rec
	return nil
}

// EndCall implements [Store.EndCall].
func (s *MemStore) EndCall(ctx context.Context, callID string, endedAt time.Time, reason, recordingPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.calls[callID]
	if !ok {
		return ErrNotFound
	}

	rec.EndedAt = endedAt
	rec.EndReason = reason
	if recordingPath != "" {
		rec.RecordingPath = recordingPath
	}
	s.calls[callID] = rec
	return nil
}

// GetCall implements [Store.GetCall].
func (s *MemStore) GetCall(ctx context.Context, callID string) (CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.calls[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

// RecentCalls implements [Store.RecentCalls].
func (s *MemStore) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]CallRecord, 0, len(s.calls))
	for _, rec := range s.calls {
		result = append(result, rec)
	}
	slices.SortFunc(result, func(a, b CallRecord) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AppendTranscript implements [Store.AppendTranscript].
func (s *MemStore) AppendTranscript(ctx context.Context, line TranscriptLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transcripts == nil {
		s.transcripts = make(map[string][]TranscriptLine)
	}

	s.transcripts[line.CallID] = append(s.transcripts[line.CallID], line)
	return nil
}

// Transcript implements [Store.Transcript].
func (s *MemStore) Transcript(ctx context.Context, callID string) ([]TranscriptLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := slices.Clone(s.transcripts[callID])
	slices.SortFunc(lines, func(a, b TranscriptLine) int {
		return a.Seq - b.Seq
	})
	if lines == nil {
		lines = []TranscriptLine{}
	}
	return lines, nil
}

// defaultRecentLimit caps RecentCalls when limit <= 0.
const defaultRecentLimit = 50
