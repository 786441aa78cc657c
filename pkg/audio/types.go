// Package audio defines the frame and segment types shared by the media
// pipeline, plus format conversion and WAV encoding helpers.
//
// Telephony legs carry 16-bit little-endian PCM, usually 8000 Hz mono
// (narrowband) or 16000 Hz mono (wideband). Providers speak other rates:
// ElevenLabs streams pcm_16000 or pcm_24000, Deepgram accepts whatever the
// leg delivers. The [FormatConverter] bridges the two worlds.
//
// This package lives under pkg/ because external transport adapters are
// expected to produce and consume these types.
package audio

import (
	"sync/atomic"
	"time"
)

// AudioFrame represents a single frame of audio flowing through the pipeline.
// Frames are the atomic unit of transport: read from the telephony media
// stream, fed to VAD and STT, and written back toward the caller.
type AudioFrame struct {
	// Data is raw 16-bit little-endian PCM.
	Data []byte

	// SampleRate in Hz (8000 for narrowband telephony, 16000 for wideband).
	SampleRate int

	// Channels: 1 for a phone leg; 2 only inside recording paths that keep
	// caller and bot on separate channels.
	Channels int

	// Timestamp marks when this frame was captured, relative to call start.
	Timestamp time.Duration
}

// InterruptReason identifies why bot playback was cut short. It is passed to
// [Player.Interrupt] so the playout queue can apply reason-specific behaviour.
type InterruptReason int

const (
	// BargeIn indicates the caller started speaking while the bot was still
	// talking. The bot yields the floor; queued segments are discarded.
	BargeIn InterruptReason = iota

	// Preempted indicates a higher-priority segment displaced the current
	// one. Queued segments are preserved.
	Preempted

	// Shutdown indicates the call session is tearing down.
	Shutdown
)

// String returns the human-readable name of the interrupt reason.
func (r InterruptReason) String() string {
	switch r {
	case BargeIn:
		return "BARGE_IN"
	case Preempted:
		return "PREEMPTED"
	case Shutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// Segment is a unit of bot speech submitted to a [Player]. Audio is streamed:
// chunks arrive incrementally on the Audio channel, so playback can begin
// before synthesis is complete.
type Segment struct {
	// Source labels where this segment came from, for logging ("greeting",
	// "response", "timeout_prompt").
	Source string

	// Audio is a read-only channel of raw PCM chunks. The channel is closed
	// by the producer when the segment ends or when a mid-stream error
	// occurs. After the channel closes, call [Segment.Err] to check whether
	// synthesis completed cleanly.
	Audio <-chan []byte

	// SampleRate is the sample rate in Hz of the PCM on the Audio channel.
	// Must be > 0.
	SampleRate int

	// Channels is the number of audio channels. Must be > 0.
	Channels int

	// Priority controls scheduling when multiple segments are queued.
	// Higher values preempt lower ones. Equal-priority segments are played
	// in FIFO order.
	Priority int

	// streamErr stores the error that caused the Audio channel to close
	// early. Access via Err and SetStreamErr.
	streamErr atomic.Pointer[error]
}

// Err returns the error that caused the Audio channel to close prematurely,
// or nil if the stream completed successfully. Callers should check Err after
// the Audio channel is closed.
func (s *Segment) Err() error {
	if p := s.streamErr.Load(); p != nil {
		return *p
	}
	return nil
}

// SetStreamErr records a mid-stream error. The producer should call this
// before closing the Audio channel so the [Player] can distinguish a clean
// completion from a failure.
func (s *Segment) SetStreamErr(err error) {
	s.streamErr.Store(&err)
}

// Player manages the bot speech output queue for one call. It sits between
// the response loop and the transport, ensuring segments play one at a time,
// that high-priority speech can interrupt lower-priority speech, and that
// barge-in flushes pending audio immediately.
//
// Implementations must be safe for concurrent use.
type Player interface {
	// Enqueue schedules segment for playback. The priority parameter
	// overrides segment.Priority, allowing call-site context to elevate or
	// demote a segment without mutating the struct.
	//
	// If the new segment has higher priority than the one currently playing,
	// the current segment is interrupted with [Preempted] semantics.
	Enqueue(segment *Segment, priority int)

	// Interrupt immediately stops the currently playing segment for the
	// given reason. [BargeIn] and [Shutdown] also clear the queue; a
	// [Preempted] interrupt preserves it. If nothing is playing and the
	// queue is empty, Interrupt is a no-op.
	Interrupt(reason InterruptReason)

	// SetGap configures the minimum silence duration inserted between
	// consecutive segments. A gap of zero plays segments back-to-back.
	// Changes take effect before the next segment starts.
	SetGap(d time.Duration)
}
