// Package transcript assembles the per-call transcript from completed turns
// and suppresses near-duplicate final transcripts.
//
// Streaming STT backends occasionally emit the same final utterance twice,
// usually after a reconnect or when an endpointing revision re-finalises the
// segment with minor punctuation differences. The [Deduper] catches these by
// comparing each incoming final against the previous one with Jaro-Winkler
// similarity inside a short time window. The [Assembler] numbers accepted
// lines and hands them to the call store.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
)

const (
	defaultSimilarityThreshold = 0.92
	defaultDedupeWindow        = 2 * time.Second
)

// DeduperOption is a functional option for configuring a [Deduper].
type DeduperOption func(*Deduper)

// WithSimilarityThreshold sets the minimum Jaro-Winkler score at which two
// consecutive finals are treated as the same utterance. Default: 0.92.
func WithSimilarityThreshold(threshold float64) DeduperOption {
	return func(d *Deduper) {
		d.threshold = threshold
	}
}

// WithDedupeWindow sets how long after a final a near-identical repeat is
// suppressed. Finals spaced further apart are always kept, since a caller may
// legitimately repeat themselves. Default: 2s.
func WithDedupeWindow(window time.Duration) DeduperOption {
	return func(d *Deduper) {
		d.window = window
	}
}

// Deduper suppresses near-duplicate final transcripts. It remembers only the
// most recent accepted final, so it catches back-to-back repeats without
// ever filtering a genuine later repetition.
//
// Safe for concurrent use.
type Deduper struct {
	mu        sync.Mutex
	threshold float64
	window    time.Duration

	lastText string
	lastAt   time.Time
}

// NewDeduper returns a [Deduper] configured with the supplied options.
func NewDeduper(opts ...DeduperOption) *Deduper {
	d := &Deduper{
		threshold: defaultSimilarityThreshold,
		window:    defaultDedupeWindow,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// IsDuplicate reports whether text is a near-duplicate of the previous final.
// When it returns false, text becomes the new comparison baseline.
func (d *Deduper) IsDuplicate(text string, at time.Time) bool {
	norm := normalise(text)
	if norm == "" {
		// Empty finals carry no content; let the caller discard them.
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastText != "" && at.Sub(d.lastAt) <= d.window {
		if matchr.JaroWinkler(norm, d.lastText, false) >= d.threshold {
			return true
		}
	}

	d.lastText = norm
	d.lastAt = at
	return false
}

// normalise lowercases text, strips trailing sentence punctuation per token
// and collapses whitespace, so "Book it for Tuesday." and "book it for
// tuesday" compare as equal.
func normalise(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	for i, f := range fields {
		fields[i] = strings.TrimRight(f, ".,!?;:")
	}
	return strings.Join(fields, " ")
}
