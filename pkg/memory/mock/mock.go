// Package mock provides a configurable in-memory implementation of
// [memory.Store] for tests. All fields are plain exported values so tests can
// pre-load results and inspect recorded calls without a mocking framework.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxgate/voxgate/pkg/memory"
)

// Compile-time interface check.
var _ memory.Store = (*Store)(nil)

// UpsertCallerCall records a single UpsertCaller invocation.
type UpsertCallerCall struct {
	Ctx     context.Context
	Profile memory.CallerProfile
}

// TouchCallerCall records a single TouchCaller invocation.
type TouchCallerCall struct {
	Ctx      context.Context
	CallerID string
	At       time.Time
}

// SaveFactCall records a single SaveFact invocation.
type SaveFactCall struct {
	Ctx  context.Context
	Fact memory.Fact
}

// RecallCall records a single Recall invocation.
type RecallCall struct {
	Ctx       context.Context
	CallerID  string
	Embedding []float32
	TopK      int
}

// SearchFactsCall records a single SearchFacts invocation.
type SearchFactsCall struct {
	Ctx      context.Context
	CallerID string
	Query    string
	Limit    int
}

// Store is a configurable [memory.Store] double. Set the Result/Err fields
// before use; call records accumulate until Reset. Safe for concurrent use.
type Store struct {
	mu sync.Mutex

	UpsertCallerErr   error
	GetCallerResult   *memory.CallerProfile
	GetCallerErr      error
	TouchCallerErr    error
	DeleteCallerErr   error
	SaveFactErr       error
	RecallResult      []memory.FactResult
	RecallErr         error
	RecentFactsResult []memory.Fact
	RecentFactsErr    error
	SearchFactsResult []memory.Fact
	SearchFactsErr    error

	UpsertCallerCalls []UpsertCallerCall
	GetCallerCalls    []string
	TouchCallerCalls  []TouchCallerCall
	DeleteCallerCalls []string
	SaveFactCalls     []SaveFactCall
	RecallCalls       []RecallCall
	RecentFactsCalls  []string
	SearchFactsCalls  []SearchFactsCall
}

// UpsertCaller implements [memory.Directory].
func (s *Store) UpsertCaller(ctx context.Context, profile memory.CallerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertCallerCalls = append(s.UpsertCallerCalls, UpsertCallerCall{Ctx: ctx, Profile: profile})
	return s.UpsertCallerErr
}

// GetCaller implements [memory.Directory].
func (s *Store) GetCaller(ctx context.Context, callerID string) (*memory.CallerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCallerCalls = append(s.GetCallerCalls, callerID)
	return s.GetCallerResult, s.GetCallerErr
}

// TouchCaller implements [memory.Directory].
func (s *Store) TouchCaller(ctx context.Context, callerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TouchCallerCalls = append(s.TouchCallerCalls, TouchCallerCall{Ctx: ctx, CallerID: callerID, At: at})
	return s.TouchCallerErr
}

// DeleteCaller implements [memory.Directory].
func (s *Store) DeleteCaller(ctx context.Context, callerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCallerCalls = append(s.DeleteCallerCalls, callerID)
	return s.DeleteCallerErr
}

// SaveFact implements [memory.FactIndex].
func (s *Store) SaveFact(ctx context.Context, fact memory.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveFactCalls = append(s.SaveFactCalls, SaveFactCall{Ctx: ctx, Fact: fact})
	return s.SaveFactErr
}

// Recall implements [memory.FactIndex].
func (s *Store) Recall(ctx context.Context, callerID string, embedding []float32, topK int) ([]memory.FactResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RecallCalls = append(s.RecallCalls, RecallCall{Ctx: ctx, CallerID: callerID, Embedding: embedding, TopK: topK})
	return s.RecallResult, s.RecallErr
}

// RecentFacts implements [memory.FactIndex].
func (s *Store) RecentFacts(ctx context.Context, callerID string, limit int) ([]memory.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RecentFactsCalls = append(s.RecentFactsCalls, callerID)
	return s.RecentFactsResult, s.RecentFactsErr
}

// SearchFacts implements [memory.FactIndex].
func (s *Store) SearchFacts(ctx context.Context, callerID, query string, limit int) ([]memory.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchFactsCalls = append(s.SearchFactsCalls, SearchFactsCall{Ctx: ctx, CallerID: callerID, Query: query, Limit: limit})
	return s.SearchFactsResult, s.SearchFactsErr
}

// SaveFactCount returns the number of SaveFact calls recorded so far.
func (s *Store) SaveFactCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SaveFactCalls)
}

// Reset clears all recorded calls while leaving configured results in place.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertCallerCalls = nil
	s.GetCallerCalls = nil
	s.TouchCallerCalls = nil
	s.DeleteCallerCalls = nil
	s.SaveFactCalls = nil
	s.RecallCalls = nil
	s.RecentFactsCalls = nil
	s.SearchFactsCalls = nil
}
