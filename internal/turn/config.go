package turn

import (
	"errors"
	"fmt"
	"time"
)

// VADConfig holds the thresholds governing the voice-activity detector that
// feeds this controller. The detector applies them itself; the controller
// only records them so a session snapshot is self-describing.
type VADConfig struct {
	// Confidence is the minimum speech probability to count a frame as voiced.
	Confidence float64

	// MinVolume is the minimum normalized frame energy to count as voiced.
	MinVolume float64

	// Start is how long voiced frames must persist before a start event.
	Start time.Duration

	// Stop is how long silence must persist before a stop event.
	Stop time.Duration
}

// ClassifierConfig holds the end-of-turn classifier parameters.
type ClassifierConfig struct {
	// Enabled toggles the classifier path. When false, turns complete on the
	// silence fallback alone.
	Enabled bool

	// CompleteThreshold is the minimum confidence for a COMPLETE verdict to
	// finish the turn.
	CompleteThreshold float64

	// PreSpeech is the lead-in audio included before detected speech when a
	// window is sent for classification.
	PreSpeech time.Duration

	// MaxWindow caps the trailing audio sent for classification.
	MaxWindow time.Duration
}

// Config is the immutable per-session snapshot of every knob the controller
// consults. It is captured once at call setup and read-only afterwards;
// retuning a live call means tearing the controller down and building a new
// one.
type Config struct {
	VAD        VADConfig
	Classifier ClassifierConfig

	// StopTimeout bounds how long the controller waits in EVALUATING_END for
	// a classifier verdict before forcing the turn complete. Kept short for
	// telephony: utterances like "yes" leave the classifier little audio to
	// work with.
	StopTimeout time.Duration

	// SilenceFallback is the wait before completing a turn when the
	// classifier is disabled.
	SilenceFallback time.Duration

	// Interruptions allows detected user speech to cancel in-flight bot
	// playback.
	Interruptions bool

	// MuteUntilBotReady drops all user signals until the bot's first
	// utterance finishes. Callers should only set it when a non-empty
	// greeting is configured.
	MuteUntilBotReady bool
}

// Defaults tuned for 8 kHz telephony legs.
const (
	DefaultVADConfidence     = 0.7
	DefaultVADMinVolume      = 0.6
	DefaultVADStart          = 200 * time.Millisecond
	DefaultVADStop           = 500 * time.Millisecond
	DefaultVADStopNoEOT      = 800 * time.Millisecond
	DefaultCompleteThreshold = 0.5
	DefaultPreSpeech         = 500 * time.Millisecond
	DefaultMaxWindow         = 8 * time.Second
	DefaultStopTimeout       = 1500 * time.Millisecond
	DefaultSilenceFallback   = 1 * time.Second
)

// DefaultConfig returns the telephony defaults with the classifier and
// interruptions enabled.
func DefaultConfig() Config {
	return Config{
		VAD: VADConfig{
			Confidence: DefaultVADConfidence,
			MinVolume:  DefaultVADMinVolume,
			Start:      DefaultVADStart,
			Stop:       DefaultVADStop,
		},
		Classifier: ClassifierConfig{
			Enabled:           true,
			CompleteThreshold: DefaultCompleteThreshold,
			PreSpeech:         DefaultPreSpeech,
			MaxWindow:         DefaultMaxWindow,
		},
		StopTimeout:     DefaultStopTimeout,
		SilenceFallback: DefaultSilenceFallback,
		Interruptions:   true,
	}
}

// Validate reports every invalid field joined into one error. Construction
// must fail fast on a bad snapshot; nothing is checked again during signal
// processing.
func (c Config) Validate() error {
	var errs []error
	if c.VAD.Confidence < 0 || c.VAD.Confidence > 1 {
		errs = append(errs, fmt.Errorf("vad confidence %v outside [0, 1]", c.VAD.Confidence))
	}
	if c.VAD.MinVolume < 0 || c.VAD.MinVolume > 1 {
		errs = append(errs, fmt.Errorf("vad min volume %v outside [0, 1]", c.VAD.MinVolume))
	}
	if c.VAD.Start <= 0 {
		errs = append(errs, errors.New("vad start window must be positive"))
	}
	if c.VAD.Stop <= 0 {
		errs = append(errs, errors.New("vad stop window must be positive"))
	}
	if c.Classifier.Enabled {
		if c.Classifier.CompleteThreshold < 0 || c.Classifier.CompleteThreshold > 1 {
			errs = append(errs, fmt.Errorf("classifier threshold %v outside [0, 1]", c.Classifier.CompleteThreshold))
		}
		if c.Classifier.MaxWindow <= 0 {
			errs = append(errs, errors.New("classifier max window must be positive"))
		}
		if c.Classifier.PreSpeech < 0 {
			errs = append(errs, errors.New("classifier pre-speech lead-in must not be negative"))
		}
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, errors.New("stop timeout must be positive"))
	}
	if !c.Classifier.Enabled && c.SilenceFallback <= 0 {
		errs = append(errs, errors.New("silence fallback must be positive when the classifier is disabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("turn config: %w", errors.Join(errs...))
	}
	return nil
}
