package turn

import (
	"log/slog"
	"sync"
	"time"
)

// Role values carried on sink records.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Record is the consumer-facing output of the controller: one finalized
// utterance with the timestamp of its first speech onset.
type Record struct {
	// Seq is the controller-assigned turn sequence number, strictly
	// increasing per session. The sink uses it to reject duplicates.
	Seq       uint64
	Role      string
	Text      string
	Timestamp time.Time
}

// Consumer receives finalized records, typically a transcript recorder or the
// response pipeline's context assembler.
type Consumer func(Record) error

// Sink is the single point where a completed turn becomes externally visible.
// It guarantees exactly-once emission per turn sequence number and never lets
// a failing consumer reach the controller: losing one transcript line is
// recoverable, a corrupted state machine is not.
type Sink struct {
	log      *slog.Logger
	consumer Consumer

	mu      sync.Mutex
	lastSeq uint64
}

// NewSink builds a sink delivering to consumer. A nil consumer discards
// records after the duplicate check.
func NewSink(consumer Consumer, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{log: log, consumer: consumer}
}

// Emit delivers rec downstream and reports whether it was actually emitted.
// Records at or below the last emitted sequence number are dropped as
// duplicates. Consumer errors are logged and swallowed.
func (s *Sink) Emit(rec Record) bool {
	s.mu.Lock()
	if rec.Seq <= s.lastSeq {
		s.mu.Unlock()
		s.log.Debug("duplicate turn record dropped", "seq", rec.Seq, "last_seq", s.lastSeq)
		return false
	}
	s.lastSeq = rec.Seq
	s.mu.Unlock()

	if s.consumer == nil {
		return true
	}
	if err := s.consumer(rec); err != nil {
		s.log.Warn("turn record consumer failed",
			"seq", rec.Seq,
			"role", rec.Role,
			"error", err)
	}
	return true
}
