package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/resilience"
	"github.com/voxgate/voxgate/internal/store"
	"github.com/voxgate/voxgate/internal/transport"
	"github.com/voxgate/voxgate/pkg/audio/playout"
	"github.com/voxgate/voxgate/pkg/memory"
	"github.com/voxgate/voxgate/pkg/provider/embeddings"
	"github.com/voxgate/voxgate/pkg/provider/eot"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	"github.com/voxgate/voxgate/pkg/provider/stt"
	"github.com/voxgate/voxgate/pkg/provider/tts"
	"github.com/voxgate/voxgate/pkg/provider/vad"
)

// vadFrameMs is the frame duration VAD sessions are created with. Telephony
// trunks chunk media in 20 ms packets.
const vadFrameMs = 20

// defaultSampleRate applies when neither the trunk's start frame nor the
// server config declares a rate.
const defaultSampleRate = 8000

// Providers bundles the shared provider backends the manager builds each
// call's pipeline from. VAD, STT, TTS, and LLM are required. EOT is optional
// and disables the classifier path when nil; Embedder is optional and
// disables semantic recall.
type Providers struct {
	VAD      vad.Engine
	STT      stt.Provider
	TTS      tts.Provider
	LLM      llm.Provider
	EOT      eot.Classifier
	Embedder embeddings.Provider
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithMetrics sets the metrics recorder. Defaults to observe.DefaultMetrics.
func WithMetrics(met *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = met }
}

// Manager accepts calls from the transport and runs one [Session] per call.
// It holds the shared provider backends; per-call sessions get their own VAD
// and STT streams.
type Manager struct {
	cfg     atomic.Pointer[config.Config]
	prov    Providers
	calls   store.Store
	memory  memory.Store
	eot     eot.Classifier
	metrics *observe.Metrics
	log     *slog.Logger
}

// Compile-time interface assertion.
var _ transport.CallHandler = (*Manager)(nil)

// NewManager builds a Manager. mem may be nil to disable caller memory. The
// end-of-turn classifier, when present, is wrapped in a circuit breaker so a
// struggling classifier service fails fast instead of stalling every turn.
func NewManager(cfg *config.Config, prov Providers, calls store.Store, mem memory.Store, opts ...ManagerOption) (*Manager, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("call: manager needs a config")
	case calls == nil:
		return nil, errors.New("call: manager needs a call store")
	case prov.VAD == nil, prov.STT == nil, prov.TTS == nil, prov.LLM == nil:
		return nil, errors.New("call: manager is missing a required provider")
	}

	m := &Manager{
		prov:   prov,
		calls:  calls,
		memory: mem,
		log:    slog.Default(),
	}
	m.cfg.Store(cfg)
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}

	if prov.EOT != nil {
		m.eot = resilience.NewEOTBreaker(prov.EOT, resilience.CircuitBreakerConfig{
			Name:         "eot",
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  3,
		})
	}
	return m, nil
}

// UpdateConfig swaps the active configuration. Calls already in flight keep
// the snapshot they started with; the new config applies to the next call.
// Provider and storage backends are built once at startup and do not change.
func (m *Manager) UpdateConfig(cfg *config.Config) {
	if cfg != nil {
		m.cfg.Store(cfg)
	}
}

// HandleCall runs one call end to end. It blocks until the call finishes and
// is invoked by the transport handler on its own goroutine per connection.
func (m *Manager) HandleCall(ctx context.Context, agentID string, stream *transport.MediaStream) error {
	cfg := m.cfg.Load()
	agent, ok := agentProfile(cfg, agentID)
	if !ok {
		return fmt.Errorf("call: unknown agent %q", agentID)
	}

	m.metrics.ActiveCalls.Add(ctx, 1)
	defer m.metrics.ActiveCalls.Add(ctx, -1)

	start := stream.Start()
	sampleRate := start.SampleRate
	if sampleRate <= 0 {
		sampleRate = cfg.Server.SampleRate
	}
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	turnCfg := cfg.Turn.Session(agent)

	vadSession, err := m.prov.VAD.NewSession(vad.Config{
		SampleRate:  sampleRate,
		FrameSizeMs: vadFrameMs,
		Confidence:  turnCfg.VAD.Confidence,
		MinVolume:   turnCfg.VAD.MinVolume,
		StartWindow: turnCfg.VAD.Start,
		StopWindow:  turnCfg.VAD.Stop,
	})
	if err != nil {
		return fmt.Errorf("call: vad session: %w", err)
	}

	sttSession, err := m.prov.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: sampleRate,
		Channels:   1,
		Language:   agent.Language,
	})
	if err != nil {
		vadSession.Close()
		return fmt.Errorf("call: stt session: %w", err)
	}

	var recorder *Recorder
	if cfg.Storage.RecordCalls && cfg.Storage.RecordingsDir != "" {
		recorder = NewRecorder(sampleRate)
	}

	log := m.log.With("call_id", start.CallID, "agent", agentID)
	player := playout.New(func(pcm []byte) {
		if recorder != nil {
			recorder.WriteBot(pcm)
		}
		if err := stream.SendAudio(ctx, pcm); err != nil {
			log.Debug("media write failed", "error", err)
		}
	})
	defer player.Close()

	sess, err := NewSession(SessionParams{
		CallID:        start.CallID,
		Agent:         agent,
		Turn:          turnCfg,
		SampleRate:    sampleRate,
		TTSSampleRate: optionInt(cfg.Providers.TTS.Options, "sample_rate"),
		RecordingsDir: cfg.Storage.RecordingsDir,
		Media:         stream,
		Pipeline: Pipeline{
			VAD:      vadSession,
			STT:      sttSession,
			EOT:      m.eot,
			TTS:      m.prov.TTS,
			LLM:      m.prov.LLM,
			Embedder: m.prov.Embedder,
			Memory:   m.memory,
			Calls:    m.calls,
		},
		Player:   player,
		Recorder: recorder,
		Metrics:  m.metrics,
		Logger:   log,
	})
	if err != nil {
		sttSession.Close()
		vadSession.Close()
		return err
	}

	return sess.Run(ctx)
}

// agentProfile resolves an agent profile by name in a config snapshot.
func agentProfile(cfg *config.Config, name string) (config.AgentConfig, bool) {
	for _, a := range cfg.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return config.AgentConfig{}, false
}

// optionInt reads an integer from a provider's free-form options map. YAML
// decodes numbers as int or float64 depending on how they are written.
func optionInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
