package turn

// muteGate tracks the greeting-protection window. While engaged, user-side
// signals are dropped before they reach the state machine; they are never
// buffered for replay, so a caller's background noise cannot pre-empt the
// greeting. Deactivation is idempotent.
type muteGate struct {
	active bool
}

func (g *muteGate) activate() { g.active = true }

// deactivate opens the gate and reports whether this call actually released
// it. A repeated bot-speech-stop after release is a no-op.
func (g *muteGate) deactivate() bool {
	if !g.active {
		return false
	}
	g.active = false
	return true
}

func (g *muteGate) engaged() bool { return g.active }
