// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider to feed controlled completion chunks to consumers and to
// verify the requests the response loop builds.
//
// Example:
//
//	p := &mock.Provider{
//	    StreamChunks: []llm.Chunk{{Text: "Hello. "}, {Text: "Bye.", FinishReason: "stop"}},
//	}
//	ch, _ := p.StreamCompletion(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// StreamCompletionCall records a single invocation of StreamCompletion.
type StreamCompletionCall struct {
	// Ctx is the context passed to StreamCompletion.
	Ctx context.Context
	// Req is the CompletionRequest passed to StreamCompletion.
	Req llm.CompletionRequest
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// StreamChunks is the sequence of chunks emitted on the channel returned
	// by StreamCompletion.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned as the error from StreamCompletion
	// instead of starting a channel.
	StreamErr error

	// CompleteResult is returned by Complete. If nil, Complete returns an
	// empty response.
	CompleteResult *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// CountTokensResult is returned by CountTokens.
	CountTokensResult int

	// CountTokensErr, if non-nil, is returned as the error from CountTokens.
	CountTokensErr error

	// CapabilitiesResult is returned by Capabilities. The zero value reports
	// streaming support so loops exercise their streaming path by default.
	CapabilitiesResult llm.ModelCapabilities

	// --- Call records ---

	// StreamCompletionCalls records every call to StreamCompletion in order.
	StreamCompletionCalls []StreamCompletionCall

	// CompleteCalls records every call to Complete in order.
	CompleteCalls []CompleteCall
}

// StreamCompletion records the call and, if StreamErr is nil, returns a
// channel that emits StreamChunks then closes.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCompletionCalls = append(p.StreamCompletionCalls, StreamCompletionCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Complete records the call and returns CompleteResult, CompleteErr.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.CompleteResult != nil {
		return p.CompleteResult, nil
	}
	return &llm.CompletionResponse{}, nil
}

// CountTokens returns CountTokensResult, CountTokensErr.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CountTokensResult, p.CountTokensErr
}

// Capabilities returns CapabilitiesResult, defaulting SupportsStreaming to true.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	caps := p.CapabilitiesResult
	if caps == (llm.ModelCapabilities{}) {
		caps.SupportsStreaming = true
	}
	return caps
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCompletionCalls = nil
	p.CompleteCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
