// Package mock provides a test double for the eot package interfaces.
//
// Queue verdicts in Verdicts for successive Classify calls, or set Verdict
// for a constant answer. ClassifyCalls records what the controller sent.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/eot"
)

// ClassifyCall records a single invocation of Classifier.Classify.
type ClassifyCall struct {
	// PCM is a copy of the audio window passed to Classify.
	PCM []byte

	// SampleRate is the sample rate passed to Classify.
	SampleRate int
}

// Classifier is a mock implementation of eot.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Verdict is returned by every Classify call once Verdicts is exhausted.
	Verdict eot.Verdict

	// Verdicts, if non-nil, is returned one element per Classify call.
	Verdicts []eot.Verdict

	// ClassifyErr, if non-nil, is returned as the error from Classify.
	ClassifyErr error

	// Delay, if non-zero, makes Classify wait before answering (or return
	// early with ctx.Err() when the context is cancelled first).
	Delay func(ctx context.Context) error

	// ClassifyCalls records every call to Classify in order.
	ClassifyCalls []ClassifyCall

	next int
}

// Classify records the call and returns the next queued verdict.
func (c *Classifier) Classify(ctx context.Context, pcm []byte, sampleRate int) (eot.Verdict, error) {
	if c.Delay != nil {
		if err := c.Delay(ctx); err != nil {
			return eot.Verdict{}, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	c.ClassifyCalls = append(c.ClassifyCalls, ClassifyCall{PCM: cp, SampleRate: sampleRate})
	if c.ClassifyErr != nil {
		return eot.Verdict{}, c.ClassifyErr
	}
	if c.next < len(c.Verdicts) {
		v := c.Verdicts[c.next]
		c.next++
		return v, nil
	}
	return c.Verdict, nil
}

// Reset clears all recorded calls. Thread-safe.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClassifyCalls = nil
	c.next = 0
}

// Ensure Classifier implements eot.Classifier at compile time.
var _ eot.Classifier = (*Classifier)(nil)
