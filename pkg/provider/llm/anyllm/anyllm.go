// Package anyllm adapts github.com/mozilla-ai/any-llm-go to the llm.Provider
// interface, giving the dialogue layer one constructor for every chat backend
// the gateway supports: OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral,
// Groq, llama.cpp, and llamafile.
//
//	p, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
package anyllm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/voxgate/voxgate/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// backends maps provider names to their any-llm-go constructors.
type backendFactory func(...anyllmlib.Option) (anyllmlib.Provider, error)

var backends = map[string]backendFactory{
	"openai":    func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(opts...) },
	"anthropic": func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(opts...) },
	"gemini":    func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(opts...) },
	"ollama":    func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(opts...) },
	"deepseek":  func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(opts...) },
	"mistral":   func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(opts...) },
	"groq":      func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(opts...) },
	"llamacpp":  func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(opts...) },
	"llamafile": func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(opts...) },
}

// Provider bridges one any-llm-go backend to llm.Provider.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New builds a Provider for the named backend and model. providerName must
// be one of the keys listed in the error message below; model is the
// backend's model identifier such as "gpt-4o-mini" or
// "claude-3-5-haiku-latest".
//
// Credentials come from opts (anyllmlib.WithAPIKey, anyllmlib.WithBaseURL)
// or, when absent, from the backend's usual environment variable such as
// OPENAI_API_KEY or ANTHROPIC_API_KEY.
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	factory, ok := backends[strings.ToLower(providerName)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: %s",
			providerName, strings.Join(backendNames(), ", "))
	}
	backend, err := factory(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

func backendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StreamCompletion starts a streaming completion and relays the backend's
// deltas as llm.Chunks. A backend error surfaces as a final chunk with
// FinishReason "error" once the delta stream drains.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	deltas, errs := p.backend.CompletionStream(ctx, p.params(req))

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		for delta := range deltas {
			if len(delta.Choices) == 0 {
				continue
			}
			choice := delta.Choices[0]
			select {
			case ch <- llm.Chunk{Text: choice.Delta.Content, FinishReason: choice.FinishReason}:
			case <-ctx.Done():
				return
			}
		}
		if err := <-errs; err != nil {
			select {
			case ch <- llm.Chunk{FinishReason: "error", Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// Complete runs a blocking completion and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if resp.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// CountTokens estimates token usage at roughly 4 characters per token plus a
// small per-message overhead for role and formatting tokens.
// TODO: swap in tiktoken-go for per-model accuracy once context trimming
// needs it.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += (len(m.Content)+3)/4 + 4
	}
	return total, nil
}

// Capabilities reports the limits of the configured model.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

// params translates a CompletionRequest into any-llm-go CompletionParams.
func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	out := anyllmlib.CompletionParams{Model: p.model, Messages: messages}
	if req.Temperature != 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		out.MaxTokens = &mt
	}
	return out
}

// capabilityRule matches a model-name prefix or substring to its limits.
type capabilityRule struct {
	prefix    string
	substring string
	window    int
	maxOutput int
}

// capabilityRules is checked in order; the first match wins.
var capabilityRules = []capabilityRule{
	{prefix: "gpt-4o", window: 128_000, maxOutput: 16_384},
	{prefix: "gpt-4-turbo", window: 128_000, maxOutput: 4_096},
	{prefix: "gpt-4", window: 8_192, maxOutput: 4_096},
	{prefix: "gpt-3.5-turbo", window: 16_385, maxOutput: 4_096},
	{prefix: "o1", window: 200_000, maxOutput: 100_000},
	{prefix: "o3", window: 200_000, maxOutput: 100_000},
	{substring: "claude-3-opus", window: 200_000, maxOutput: 4_096},
	// Sonnet and haiku families, plus newer Claude models.
	{prefix: "claude", window: 200_000, maxOutput: 8_192},
	{substring: "gemini-1.5-pro", window: 2_097_152, maxOutput: 8_192},
	{substring: "gemini-2.0-flash", window: 1_048_576, maxOutput: 8_192},
	{substring: "gemini-1.5-flash", window: 1_048_576, maxOutput: 8_192},
	{prefix: "gemini", window: 128_000, maxOutput: 8_192},
}

// modelCapabilities resolves the limits for known OpenAI, Anthropic, and
// Gemini model families. Unknown models get workable defaults.
func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		SupportsStreaming: true,
		ContextWindow:     128_000,
		MaxOutputTokens:   4_096,
	}

	lower := strings.ToLower(model)
	for _, rule := range capabilityRules {
		if rule.prefix != "" && !strings.HasPrefix(lower, rule.prefix) {
			continue
		}
		if rule.substring != "" && !strings.Contains(lower, rule.substring) {
			continue
		}
		caps.ContextWindow = rule.window
		caps.MaxOutputTokens = rule.maxOutput
		break
	}
	return caps
}
