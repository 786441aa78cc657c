// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-call session. Each session maintains its own internal state
// (energy history, debounce counters) so that concurrent calls can be
// processed independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// detection result, making it suitable for the low-latency media loop that
// gates STT input and drives turn-taking.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import "time"

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. Telephony streams use 8000 or 16000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Most
	// detectors operate on fixed frame sizes (10, 20, or 30 ms). ProcessFrame
	// returns an error if the supplied frame does not match this size.
	FrameSizeMs int

	// Confidence is the speech probability above which a frame counts toward
	// a speech onset. Range: [0.0, 1.0]. Higher values reduce false positives
	// from line noise at the cost of increased onset latency.
	Confidence float64

	// MinVolume is the minimum normalized signal level for a frame to count
	// as speech regardless of probability. Range: [0.0, 1.0]. Filters out
	// faint background chatter that telephony codecs tend to amplify.
	MinVolume float64

	// StartWindow is how long speech must persist before the session reports
	// VADSpeechStart. Short bursts below this window are ignored.
	StartWindow time.Duration

	// StopWindow is how long silence must persist before the session reports
	// VADSpeechEnd. Pauses shorter than this window keep the segment open.
	StopWindow time.Duration
}

// SessionHandle represents an active VAD session for a single audio stream.
// Each session maintains its own detection state; Reset clears this state
// without closing the session.
//
// A SessionHandle should not be shared between goroutines unless the
// implementation explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection
	// result. The frame must be raw little-endian 16-bit PCM at the
	// SampleRate and FrameSizeMs configured when the session was created.
	// Returns an error if the frame size is wrong or if the engine
	// encounters an internal failure.
	//
	// This method is called synchronously in the media loop; it must not
	// block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears all accumulated detection state (debounce counters,
	// energy history) without closing the session. Use this when the audio
	// stream is interrupted or restarted so that stale state from the
	// previous segment does not affect subsequent frames.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// ProcessFrame returns an error and Reset is a no-op. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration. The
	// session is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid (unsupported sample
	// rate, threshold out of range) or if the engine cannot allocate
	// resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
