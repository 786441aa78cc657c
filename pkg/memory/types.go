package memory

import "time"

// CallerProfile is the directory record for a phone number the gateway has
// spoken with before. It carries the stable identity; per-call knowledge
// lives in [Fact] records.
type CallerProfile struct {
	// CallerID is the caller's E.164 phone number (e.g., "+14155550123").
	// It is the primary key of the directory.
	CallerID string

	// DisplayName is the name the caller gave, if any.
	DisplayName string

	// Attributes holds arbitrary key/value metadata about the caller
	// (preferred language, account reference, notes).
	Attributes map[string]any

	// FirstSeen is when this caller first reached the gateway.
	FirstSeen time.Time

	// LastSeen is when this caller last reached the gateway.
	LastSeen time.Time

	// CallCount is the total number of calls from this number.
	CallCount int
}

// Fact is a single remembered statement about a caller, extracted from a call
// transcript and stored with its pre-computed embedding so recall does not
// need to re-embed on lookup.
type Fact struct {
	// ID is the unique identifier for this fact (e.g., a UUID).
	ID string

	// CallerID is the phone number this fact belongs to.
	CallerID string

	// CallID is the call during which the fact was established.
	CallID string

	// Content is the fact text ("prefers afternoon appointments",
	// "has a dog named Rufus").
	Content string

	// Embedding is the vector representation of Content. Dimension must
	// match the store configuration (e.g., 1536 for text-embedding-3-small).
	Embedding []float32

	// Kind is an optional coarse label ("preference", "identity", "context").
	Kind string

	// CreatedAt is when this fact was recorded.
	CreatedAt time.Time
}

// FactResult pairs a recalled fact with its vector-space distance from the
// query embedding. Lower Distance values indicate higher semantic similarity.
type FactResult struct {
	// Fact is the recalled record.
	Fact Fact

	// Distance is the cosine distance to the query embedding.
	Distance float64
}
