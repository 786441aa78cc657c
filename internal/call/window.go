package call

import (
	"sync"
	"time"
)

// captureWindow keeps the trailing caller audio that is handed to the
// end-of-turn classifier when speech stops. It holds at most the configured
// duration of 16-bit mono PCM; older audio is discarded as new chunks arrive.
//
// Safe for concurrent use: the media loop appends while the classifier
// goroutine snapshots.
type captureWindow struct {
	mu  sync.Mutex
	max int
	buf []byte
}

// newCaptureWindow sizes the window for d of audio at sampleRate Hz.
func newCaptureWindow(d time.Duration, sampleRate int) *captureWindow {
	max := int(d.Seconds() * float64(sampleRate) * 2)
	if max <= 0 {
		max = sampleRate * 2
	}
	return &captureWindow{max: max}
}

// Append adds one PCM chunk, evicting the oldest audio beyond the window cap.
func (w *captureWindow) Append(chunk []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, chunk...)
	if over := len(w.buf) - w.max; over > 0 {
		w.buf = append(w.buf[:0], w.buf[over:]...)
	}
}

// Snapshot returns a copy of the buffered audio.
func (w *captureWindow) Snapshot() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// Reset discards the buffered audio.
func (w *captureWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = w.buf[:0]
}
