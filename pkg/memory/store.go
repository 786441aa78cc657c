// Package memory defines the caller-memory layer used to give the voice bot
// continuity across calls from the same phone number.
//
// The layer has two parts:
//
//   - [Directory]: a profile record per caller (phone number), tracking name,
//     attributes, and call history.
//   - [FactIndex]: a vector store of [Fact] records extracted from past
//     transcripts, queried by embedding similarity at call start so the bot
//     can greet a returning caller with context.
//
// The interfaces are public so external packages can supply alternative
// storage backends (Postgres/pgvector, in-memory, ...) without depending on
// voxgate internals. Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// Directory manages per-caller profile records keyed by phone number.
type Directory interface {
	// UpsertCaller inserts or replaces the profile for profile.CallerID.
	// FirstSeen is preserved on update; all other fields are overwritten.
	UpsertCaller(ctx context.Context, profile CallerProfile) error

	// GetCaller retrieves the profile for callerID.
	// Returns (nil, nil) when the caller is unknown.
	GetCaller(ctx context.Context, callerID string) (*CallerProfile, error)

	// TouchCaller records a new call from callerID at the given instant:
	// LastSeen is updated and CallCount incremented. Unknown callers are
	// created with FirstSeen = at and CallCount = 1.
	TouchCaller(ctx context.Context, callerID string, at time.Time) error

	// DeleteCaller removes the caller's profile and every stored fact.
	// Deleting an unknown caller is not an error. This is the erasure path
	// for data-removal requests, so implementations must not leave facts
	// behind.
	DeleteCaller(ctx context.Context, callerID string) error
}

// FactIndex stores and recalls embedded facts about callers.
//
// Callers are responsible for producing embeddings before calling SaveFact or
// Recall; the index never talks to an embedding provider itself.
type FactIndex interface {
	// SaveFact upserts a pre-embedded [Fact]. If a fact with the same ID
	// already exists it is completely replaced.
	SaveFact(ctx context.Context, fact Fact) error

	// Recall finds the topK facts for callerID whose embeddings are closest
	// to the query embedding. Results are ordered by ascending Distance
	// (most similar first). Returns an empty (non-nil) slice when the caller
	// has no facts.
	Recall(ctx context.Context, callerID string, embedding []float32, topK int) ([]FactResult, error)

	// RecentFacts returns the caller's most recently recorded facts, newest
	// first, capped at limit. A limit of 0 applies an implementation
	// default. Returns an empty (non-nil) slice when the caller has no
	// facts.
	RecentFacts(ctx context.Context, callerID string, limit int) ([]Fact, error)

	// SearchFacts performs keyword search over the caller's fact content.
	// Use this when no embedding vector is available; for semantic recall
	// prefer [FactIndex.Recall]. Returns an empty (non-nil) slice when
	// nothing matches.
	SearchFacts(ctx context.Context, callerID, query string, limit int) ([]Fact, error)
}

// Store combines the directory and fact index behind one backend.
type Store interface {
	Directory
	FactIndex
}
