package turn

import (
	"strings"
	"time"
)

// PendingTurn accumulates the transcript of one in-progress user turn. It is
// created when speech first starts, appended to while the turn is open, and
// either flushed to the sink on completion or discarded on mute activation or
// call teardown. The Controller owns at most one PendingTurn at a time.
type PendingTurn struct {
	seq     uint64
	started time.Time

	// finals is the ordered list of authoritative transcript fragments.
	// Append-only.
	finals []string

	// interim is the latest provisional transcript. Replaced on every interim
	// signal and cleared when a final fragment lands.
	interim string
}

func newPendingTurn(seq uint64, started time.Time) *PendingTurn {
	return &PendingTurn{seq: seq, started: started}
}

// Started returns the timestamp of the first speech-onset signal of this turn.
func (p *PendingTurn) Started() time.Time { return p.started }

// AppendFinal records an authoritative transcript fragment and drops any
// provisional text it supersedes.
func (p *PendingTurn) AppendFinal(text string) {
	text = strings.TrimSpace(text)
	if text != "" {
		p.finals = append(p.finals, text)
	}
	p.interim = ""
}

// SetInterim replaces the provisional transcript for the current utterance.
func (p *PendingTurn) SetInterim(text string) {
	p.interim = strings.TrimSpace(text)
}

// Text assembles the turn transcript: all final fragments in order, plus the
// trailing interim if no final superseded it yet.
func (p *PendingTurn) Text() string {
	parts := p.finals
	if p.interim != "" {
		parts = append(parts[:len(parts):len(parts)], p.interim)
	}
	return strings.Join(parts, " ")
}

// Empty reports whether no transcript text accumulated. Empty turns are
// silence or noise blips and are discarded without downstream emission.
func (p *PendingTurn) Empty() bool {
	return len(p.finals) == 0 && p.interim == ""
}
