// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider maps text strings to dense float32 vectors (e.g.,
// OpenAI text-embedding-3 or a local Ollama model). The caller-memory layer
// uses these vectors to recall facts from earlier calls by semantic similarity,
// so the bot can greet a returning caller with context instead of a cold start.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All embedding vectors returned by a single Provider instance must share the
// same dimensionality (returned by Dimensions). Callers must not mix vectors
// from different Provider instances in the same similarity computation unless
// both use the same model and space. In practice this means a memory store
// created with one embedding model must be re-indexed before switching models.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails or
	// ctx is cancelled.
	//
	// Text is passed through verbatim. Models that expect a task prefix (e.g.,
	// "query: " for nomic-embed-text retrieval) rely on the caller to add it.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of texts in a single
	// provider call, which is typically far cheaper than calling Embed in a
	// loop. The returned slice has the same length as texts and the i-th
	// element corresponds to texts[i].
	//
	// Returns an error if any single embedding fails or if ctx is cancelled.
	// Partial results are not returned; on error the entire slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider. Constant for the lifetime of the Provider instance; the memory
	// store uses it to size its pgvector column.
	Dimensions() int

	// ModelID returns the provider-specific model identifier (e.g.,
	// "text-embedding-3-small"). Used for logging and for detecting model
	// mismatches against an existing vector index.
	ModelID() string
}
