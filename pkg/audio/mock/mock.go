// Package mock provides an in-memory mock implementation of the
// [audio.Player] interface for use in unit tests.
//
// The mock records every method call so tests can assert on call order and
// arguments. It never plays audio; enqueued segments are drained in the
// background to avoid leaking producer goroutines.
package mock

import (
	"sync"
	"time"

	"github.com/voxgate/voxgate/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Player = (*Player)(nil)

// EnqueueCall records a single invocation of Enqueue.
type EnqueueCall struct {
	// Segment is the segment passed to Enqueue.
	Segment *audio.Segment
	// Priority is the priority passed to Enqueue.
	Priority int
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// KeepAudio, when set, stops Enqueue from draining each segment's Audio
	// channel on a background goroutine. Leave it false so producers writing
	// to unbuffered channels do not hang the test.
	KeepAudio bool

	// EnqueueCalls records every call to Enqueue in order.
	EnqueueCalls []EnqueueCall

	// InterruptCalls records the reason of every Interrupt call in order.
	InterruptCalls []audio.InterruptReason

	// SetGapCalls records every duration passed to SetGap in order.
	SetGapCalls []time.Duration
}

// Enqueue records the call and, unless KeepAudio is set, drains the segment's
// Audio channel in the background.
func (p *Player) Enqueue(segment *audio.Segment, priority int) {
	p.mu.Lock()
	p.EnqueueCalls = append(p.EnqueueCalls, EnqueueCall{Segment: segment, Priority: priority})
	keep := p.KeepAudio
	p.mu.Unlock()

	if !keep && segment != nil && segment.Audio != nil {
		go audio.Drain(segment.Audio)
	}
}

// Interrupt records the call.
func (p *Player) Interrupt(reason audio.InterruptReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InterruptCalls = append(p.InterruptCalls, reason)
}

// SetGap records the call.
func (p *Player) SetGap(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SetGapCalls = append(p.SetGapCalls, d)
}

// EnqueueCount returns the number of Enqueue calls so far. Thread-safe.
func (p *Player) EnqueueCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EnqueueCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EnqueueCalls = nil
	p.InterruptCalls = nil
	p.SetGapCalls = nil
}
