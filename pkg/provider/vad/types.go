package vad

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Probability is the speech probability score (0.0–1.0).
	Probability float64

	// Level is the normalized signal level of the frame (0.0–1.0). Engines
	// that have no notion of volume report 0.
	Level float64
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSilence indicates no speech detected.
	VADSilence VADEventType = iota

	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd
)

// String returns the lowercase name of the event type.
func (t VADEventType) String() string {
	switch t {
	case VADSilence:
		return "silence"
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	default:
		return "unknown"
	}
}
