package resilience

import (
	"context"

	"github.com/voxgate/voxgate/pkg/provider/eot"
)

// EOTBreaker wraps an [eot.Classifier] with a circuit breaker. The end-of-turn
// classifier sits on the critical path of every turn decision, so a struggling
// classifier service must fail fast: a rejected call makes the turn controller
// fall back to its silence timeout instead of stalling the caller.
type EOTBreaker struct {
	inner   eot.Classifier
	breaker *CircuitBreaker
}

// Compile-time interface assertion.
var _ eot.Classifier = (*EOTBreaker)(nil)

// NewEOTBreaker wraps inner with a breaker built from cfg.
func NewEOTBreaker(inner eot.Classifier, cfg CircuitBreakerConfig) *EOTBreaker {
	if cfg.Name == "" {
		cfg.Name = "eot"
	}
	return &EOTBreaker{
		inner:   inner,
		breaker: NewCircuitBreaker(cfg),
	}
}

// Classify forwards to the wrapped classifier unless the breaker is open, in
// which case it returns [ErrCircuitOpen] immediately.
func (b *EOTBreaker) Classify(ctx context.Context, pcm []byte, sampleRate int) (eot.Verdict, error) {
	var verdict eot.Verdict
	err := b.breaker.Execute(func() error {
		var innerErr error
		verdict, innerErr = b.inner.Classify(ctx, pcm, sampleRate)
		return innerErr
	})
	if err != nil {
		return eot.Verdict{}, err
	}
	return verdict, nil
}

// State exposes the breaker state for health reporting.
func (b *EOTBreaker) State() State {
	return b.breaker.State()
}
