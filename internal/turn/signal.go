// Package turn implements the per-call turn-taking and interruption
// controller. It consumes voice-activity, transcript, end-of-turn classifier
// and bot-speech signals for one conversation side and decides when the user
// has started speaking, when their turn is complete, and whether detected
// speech should cancel bot output currently in flight.
//
// One Controller exists per active call. All signal intake is serialized
// through [Controller.Process]; controllers for different calls are fully
// independent.
package turn

import "time"

// SignalKind identifies the variant of a [Signal].
type SignalKind int

const (
	// SignalVADStart marks the onset of detected user speech.
	SignalVADStart SignalKind = iota

	// SignalVADStop marks the end of detected user speech.
	SignalVADStop

	// SignalClassifierScore carries an end-of-turn classifier verdict for the
	// trailing audio window.
	SignalClassifierScore

	// SignalTranscriptInterim carries a provisional transcript for the current
	// utterance. Later interims replace earlier ones.
	SignalTranscriptInterim

	// SignalTranscriptFinal carries an authoritative transcript fragment.
	SignalTranscriptFinal

	// SignalBotSpeechStart marks the start of bot audio playback.
	SignalBotSpeechStart

	// SignalBotSpeechStop marks the end of bot audio playback.
	SignalBotSpeechStop
)

// String returns the signal kind name used in logs.
func (k SignalKind) String() string {
	switch k {
	case SignalVADStart:
		return "vad_start"
	case SignalVADStop:
		return "vad_stop"
	case SignalClassifierScore:
		return "classifier_score"
	case SignalTranscriptInterim:
		return "transcript_interim"
	case SignalTranscriptFinal:
		return "transcript_final"
	case SignalBotSpeechStart:
		return "bot_speech_start"
	case SignalBotSpeechStop:
		return "bot_speech_stop"
	default:
		return "unknown"
	}
}

// Signal is one event consumed by the Controller. Signals are immutable once
// constructed; Timestamp comes from the monotonic clock of the emitting
// source. Only the fields relevant to the Kind are populated.
type Signal struct {
	Kind      SignalKind
	Timestamp time.Time

	// Text is set for transcript signals.
	Text string

	// Completeness and Confidence are set for classifier signals.
	// Completeness above 0.5 means the classifier judged the utterance
	// complete; Confidence is the model's score for that verdict.
	Completeness float64
	Confidence   float64
}

// VADStart builds a speech-onset signal.
func VADStart(ts time.Time) Signal {
	return Signal{Kind: SignalVADStart, Timestamp: ts}
}

// VADStop builds a speech-end signal.
func VADStop(ts time.Time) Signal {
	return Signal{Kind: SignalVADStop, Timestamp: ts}
}

// ClassifierScore builds an end-of-turn classifier result signal.
func ClassifierScore(ts time.Time, completeness, confidence float64) Signal {
	return Signal{Kind: SignalClassifierScore, Timestamp: ts, Completeness: completeness, Confidence: confidence}
}

// TranscriptInterim builds a provisional transcript signal.
func TranscriptInterim(ts time.Time, text string) Signal {
	return Signal{Kind: SignalTranscriptInterim, Timestamp: ts, Text: text}
}

// TranscriptFinal builds an authoritative transcript signal.
func TranscriptFinal(ts time.Time, text string) Signal {
	return Signal{Kind: SignalTranscriptFinal, Timestamp: ts, Text: text}
}

// BotSpeechStart builds a bot playback start signal.
func BotSpeechStart(ts time.Time) Signal {
	return Signal{Kind: SignalBotSpeechStart, Timestamp: ts}
}

// BotSpeechStop builds a bot playback stop signal.
func BotSpeechStop(ts time.Time) Signal {
	return Signal{Kind: SignalBotSpeechStop, Timestamp: ts}
}

// State is the controller's position in the turn lifecycle. Exactly one State
// is active per call; it is owned by the Controller and mutated only through
// signal processing.
type State int

const (
	// StateIdle means no user speech is in progress.
	StateIdle State = iota

	// StateUserSpeaking means a user turn is open and audio is arriving.
	StateUserSpeaking

	// StateEvaluatingEnd means speech paused and the controller is waiting for
	// a completion decision from the classifier or the timeout guard.
	StateEvaluatingEnd

	// StateUserTurnComplete is the transient state while a finished turn is
	// flushed to the sink. The controller returns to StateIdle immediately
	// after the flush.
	StateUserTurnComplete

	// StateMuted means all user signals are being dropped, typically while the
	// greeting plays.
	StateMuted
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateUserSpeaking:
		return "USER_SPEAKING"
	case StateEvaluatingEnd:
		return "EVALUATING_END"
	case StateUserTurnComplete:
		return "USER_TURN_COMPLETE"
	case StateMuted:
		return "MUTED"
	default:
		return "UNKNOWN"
	}
}

// DecisionReason says which path completed (or refused to complete) a turn.
type DecisionReason string

const (
	// ReasonClassifier means the end-of-turn classifier reported a confident
	// COMPLETE verdict.
	ReasonClassifier DecisionReason = "classifier"

	// ReasonTimeout means the timeout guard fired before any other decision.
	ReasonTimeout DecisionReason = "timeout"

	// ReasonSilence means the classifier is disabled and the configured
	// silence window elapsed.
	ReasonSilence DecisionReason = "silence"
)
