package turn

// Interruption decision reasons.
const (
	InterruptAllowed  = "allowed"
	InterruptDisabled = "interruptions_disabled"
	InterruptMuted    = "muted"
	InterruptBotIdle  = "bot_idle"
	InterruptTurnOpen = "turn_already_open"
)

// InterruptionDecision is the outcome of arbitrating one speech-onset event
// against in-flight bot playback. It is computed fresh per event, consulted
// once and discarded; nothing about it is persisted.
type InterruptionDecision struct {
	Allow  bool
	Reason string
}

// decideInterruption arbitrates a VAD start. Interruption is allowed only
// when the session permits it, the mute gate is open, the bot is actually
// speaking, and no user turn is already open (an open turn means the cancel,
// if any, already happened).
func decideInterruption(enabled, muted, botSpeaking bool, state State) InterruptionDecision {
	switch {
	case muted:
		return InterruptionDecision{Reason: InterruptMuted}
	case !botSpeaking:
		return InterruptionDecision{Reason: InterruptBotIdle}
	case !enabled:
		return InterruptionDecision{Reason: InterruptDisabled}
	case state == StateUserSpeaking || state == StateEvaluatingEnd:
		return InterruptionDecision{Reason: InterruptTurnOpen}
	default:
		return InterruptionDecision{Allow: true, Reason: InterruptAllowed}
	}
}
