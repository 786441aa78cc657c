// Package mock provides a test double for the embeddings.Provider interface.
//
// Provider hands back pre-canned vectors and records which texts were
// submitted, so memory-layer tests run without a live embedding model.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// EmbedCall is one recorded Embed invocation.
type EmbedCall struct {
	Ctx  context.Context
	Text string
}

// EmbedBatchCall is one recorded EmbedBatch invocation. Texts is a copy of
// the submitted slice.
type EmbedBatchCall struct {
	Ctx   context.Context
	Texts []string
}

// Provider is a scriptable embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is returned by every Embed call.
	EmbedResult []float32

	// EmbedErr makes Embed fail.
	EmbedErr error

	// EmbedBatchResult is returned by EmbedBatch. When nil, EmbedBatch
	// returns one nil vector per input text.
	EmbedBatchResult [][]float32

	// EmbedBatchErr makes EmbedBatch fail.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedCalls and EmbedBatchCalls record invocations in order.
	EmbedCalls      []EmbedCall
	EmbedBatchCalls []EmbedBatchCall
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text})
	return p.EmbedResult, p.EmbedErr
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: cp})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	return make([][]float32, len(texts)), nil
}

func (p *Provider) Dimensions() int { return p.DimensionsValue }

func (p *Provider) ModelID() string { return p.ModelIDValue }
