package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/embeddings"
	"github.com/voxgate/voxgate/pkg/provider/eot"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	"github.com/voxgate/voxgate/pkg/provider/stt"
	"github.com/voxgate/voxgate/pkg/provider/tts"
	"github.com/voxgate/voxgate/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories holds the name-to-constructor mapping for one provider kind.
// Safe for concurrent use.
type factories[T any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]func(ProviderEntry) (T, error)
}

func newFactories[T any](kind string) *factories[T] {
	return &factories[T]{kind: kind, m: make(map[string]func(ProviderEntry) (T, error))}
}

// register stores a factory under name, replacing any previous registration.
func (f *factories[T]) register(name string, factory func(ProviderEntry) (T, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[name] = factory
}

// create runs the factory registered under entry.Name, or reports
// [ErrProviderNotRegistered].
func (f *factories[T]) create(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	factory, ok := f.m[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to constructor functions for each provider
// kind the gateway assembles at startup.
type Registry struct {
	llm        *factories[llm.Provider]
	stt        *factories[stt.Provider]
	tts        *factories[tts.Provider]
	eot        *factories[eot.Classifier]
	embeddings *factories[embeddings.Provider]
	vad        *factories[vad.Engine]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        newFactories[llm.Provider]("llm"),
		stt:        newFactories[stt.Provider]("stt"),
		tts:        newFactories[tts.Provider]("tts"),
		eot:        newFactories[eot.Classifier]("eot"),
		embeddings: newFactories[embeddings.Provider]("embeddings"),
		vad:        newFactories[vad.Engine]("vad"),
	}
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, factory)
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.stt.register(name, factory)
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.tts.register(name, factory)
}

// RegisterEOT registers an end-of-turn classifier factory under name.
func (r *Registry) RegisterEOT(name string, factory func(ProviderEntry) (eot.Classifier, error)) {
	r.eot.register(name, factory)
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.embeddings.register(name, factory)
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.vad.register(name, factory)
}

// CreateLLM instantiates the LLM provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry)
}

// CreateSTT instantiates the STT provider registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry)
}

// CreateTTS instantiates the TTS provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create(entry)
}

// CreateEOT instantiates the end-of-turn classifier registered under entry.Name.
func (r *Registry) CreateEOT(entry ProviderEntry) (eot.Classifier, error) {
	return r.eot.create(entry)
}

// CreateEmbeddings instantiates the embeddings provider registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.create(entry)
}

// CreateVAD instantiates the VAD engine registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return r.vad.create(entry)
}
