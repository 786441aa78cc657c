// Package energy implements a pure-Go voice activity detector based on RMS
// signal energy with hysteresis.
//
// It needs no model weights and no cgo, which makes it the default detector
// for telephony streams: narrowband calls have a high enough signal-to-noise
// ratio that energy gating plus debouncing is sufficient to drive
// turn-taking, and the per-frame cost is a single pass over the samples.
package energy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/vad"
)

// speechRefRMS is the fraction of full-scale RMS that maps to a normalized
// level of 1.0. Telephony speech typically sits around 3–10% of full scale;
// anchoring the scale here makes the 0..1 thresholds in vad.Config usable.
const speechRefRMS = 0.05

// smoothingAlpha is the weight of the current frame in the exponential
// moving average used for the probability score. Higher values react faster
// and flicker more.
const smoothingAlpha = 0.5

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("energy vad: session closed")

// Engine creates RMS-based VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns an Engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg and returns a detector session for one stream.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate != 8000 && cfg.SampleRate != 16000 {
		return nil, fmt.Errorf("energy vad: unsupported sample rate %d (want 8000 or 16000)", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy vad: frame size must be positive, got %dms", cfg.FrameSizeMs)
	}
	if cfg.Confidence < 0 || cfg.Confidence > 1 {
		return nil, fmt.Errorf("energy vad: confidence %.2f outside [0,1]", cfg.Confidence)
	}
	if cfg.MinVolume < 0 || cfg.MinVolume > 1 {
		return nil, fmt.Errorf("energy vad: min volume %.2f outside [0,1]", cfg.MinVolume)
	}
	if cfg.StartWindow < 0 || cfg.StopWindow < 0 {
		return nil, fmt.Errorf("energy vad: debounce windows must not be negative")
	}

	frameMs := cfg.FrameSizeMs
	s := &session{
		cfg:        cfg,
		frameBytes: cfg.SampleRate * frameMs / 1000 * 2,
	}
	s.startFrames = max(1, int(cfg.StartWindow.Milliseconds())/frameMs)
	s.stopFrames = max(1, int(cfg.StopWindow.Milliseconds())/frameMs)
	return s, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	mu  sync.Mutex
	cfg vad.Config

	frameBytes  int
	startFrames int
	stopFrames  int

	prob         float64
	inSpeech     bool
	speechCount  int
	silenceCount int
	closed       bool
}

// ProcessFrame classifies one PCM frame. It applies hysteresis: speech must
// persist for the configured start window before VADSpeechStart fires, and
// silence must persist for the stop window before VADSpeechEnd fires.
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.VADEvent{}, ErrSessionClosed
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy vad: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	level := normalizedLevel(frame)
	s.prob = smoothingAlpha*level + (1-smoothingAlpha)*s.prob

	speechy := s.prob >= s.cfg.Confidence && level >= s.cfg.MinVolume
	ev := vad.VADEvent{Probability: s.prob, Level: level}

	if s.inSpeech {
		if speechy {
			s.silenceCount = 0
			ev.Type = vad.VADSpeechContinue
			return ev, nil
		}
		s.silenceCount++
		if s.silenceCount >= s.stopFrames {
			s.inSpeech = false
			s.silenceCount = 0
			ev.Type = vad.VADSpeechEnd
			return ev, nil
		}
		// A pause shorter than the stop window keeps the segment open.
		ev.Type = vad.VADSpeechContinue
		return ev, nil
	}

	if speechy {
		s.speechCount++
		if s.speechCount >= s.startFrames {
			s.inSpeech = true
			s.speechCount = 0
			ev.Type = vad.VADSpeechStart
			return ev, nil
		}
	} else {
		s.speechCount = 0
	}
	ev.Type = vad.VADSilence
	return ev, nil
}

// Reset clears detection state without closing the session.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prob = 0
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

// Close marks the session closed. Safe to call multiple times.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// normalizedLevel returns the frame's RMS mapped onto [0,1], where 1.0
// corresponds to speechRefRMS of full scale.
func normalizedLevel(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(frame[i*2:])))
		sum += sample * sample
	}
	rms := math.Sqrt(sum/float64(n)) / 32768.0
	return min(1, rms/speechRefRMS)
}
