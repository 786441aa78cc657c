// Package eot defines the Classifier interface for end-of-turn detection
// backends.
//
// An end-of-turn classifier inspects a window of recent caller audio and
// estimates whether the caller has finished their utterance or is merely
// pausing mid-sentence. The turn controller uses the verdict to close a turn
// faster than a fixed silence timeout would, while an independent timeout
// still backstops slow or unavailable classifiers.
//
// The model itself is a black box: implementations may run a local network,
// call a remote inference service, or fake the answer in tests. All
// implementations must be safe for concurrent use.
package eot

import "context"

// Verdict is the classifier's judgment on one audio window.
type Verdict struct {
	// Complete reports whether the model considers the utterance finished.
	Complete bool

	// Probability is the model's confidence in the Complete judgment,
	// in [0.0, 1.0].
	Probability float64
}

// Classifier scores audio windows for utterance completeness.
type Classifier interface {
	// Classify scores one window of raw little-endian 16-bit PCM mono audio.
	// The window should cover the tail of the caller's speech plus the
	// trailing silence; sampleRate is the rate of the supplied samples in Hz.
	//
	// Classify blocks until a verdict is available, an error occurs, or ctx
	// is done. Callers race it against their own deadline, so a slow
	// implementation degrades latency but never correctness.
	Classify(ctx context.Context, pcm []byte, sampleRate int) (Verdict, error)
}
