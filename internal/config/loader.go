package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"deepgram"},
	"tts":        {"elevenlabs"},
	"vad":        {"energy"},
	"eot":        {"smartturn"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if sr := cfg.Server.SampleRate; sr != 0 && sr != 8000 && sr != 16000 {
		errs = append(errs, fmt.Errorf("server.sample_rate %d is unsupported; telephony legs use 8000 or 16000", sr))
	}

	// Provider name validation warns instead of failing so third-party
	// provider builds still load.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("eot", cfg.Providers.EOT.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if len(cfg.Agents) > 0 {
		if cfg.Providers.LLM.Name == "" {
			errs = append(errs, errors.New("providers.llm is required when agents are configured"))
		}
		if cfg.Providers.STT.Name == "" {
			errs = append(errs, errors.New("providers.stt is required when agents are configured"))
		}
		if cfg.Providers.TTS.Name == "" {
			errs = append(errs, errors.New("providers.tts is required when agents are configured"))
		}
	}

	// Turn knobs
	errs = append(errs, validateTurn(cfg.Turn)...)

	// Classifier availability
	if enabled := cfg.Turn.EnableSmartTurn; (enabled == nil || *enabled) && cfg.Providers.EOT.Name == "" {
		slog.Warn("smart turn is enabled but providers.eot is not configured; turns will complete on the timeout guard alone")
	}

	// Embeddings ↔ memory dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but memory.embedding_dimensions is not set; defaulting to 1536")
	}

	// Storage
	if cfg.Storage.RecordCalls && cfg.Storage.RecordingsDir == "" {
		errs = append(errs, errors.New("storage.recordings_dir is required when storage.record_calls is enabled"))
	}

	// Agent duplicate name detection
	agentNamesSeen := make(map[string]int, len(cfg.Agents))

	for i, agent := range cfg.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if agent.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := agentNamesSeen[agent.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of agents[%d]", prefix, agent.Name, prev))
			}
			agentNamesSeen[agent.Name] = i
		}
		if agent.SystemPrompt == "" {
			errs = append(errs, fmt.Errorf("%s.system_prompt is required", prefix))
		}
		if agent.SessionTimeoutMinutes < 0 {
			errs = append(errs, fmt.Errorf("%s.session_timeout_minutes must not be negative", prefix))
		}
		if sf := agent.Voice.SpeedFactor; sf != 0 && (sf < 0.5 || sf > 2.0) {
			errs = append(errs, fmt.Errorf("%s.voice.speed_factor %.2f is out of range [0.5, 2.0]", prefix, sf))
		}
		if agent.EnableMemory && cfg.Memory.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("%s.enable_memory requires memory.postgres_dsn", prefix))
		}

		// Voice provider ↔ TTS provider cross-validation
		if agent.Voice.Provider != "" && cfg.Providers.TTS.Name != "" && agent.Voice.Provider != cfg.Providers.TTS.Name {
			slog.Warn("agent voice provider does not match configured TTS provider",
				"agent", agent.Name,
				"voice_provider", agent.Voice.Provider,
				"tts_provider", cfg.Providers.TTS.Name,
			)
		}
	}

	return errors.Join(errs...)
}

// validateTurn range-checks the optional turn knobs.
func validateTurn(t TurnConfig) []error {
	var errs []error
	checkUnit := func(name string, v *float64) {
		if v != nil && (*v < 0 || *v > 1) {
			errs = append(errs, fmt.Errorf("turn.%s %v is out of range [0, 1]", name, *v))
		}
	}
	checkPositive := func(name string, v *float64) {
		if v != nil && *v <= 0 {
			errs = append(errs, fmt.Errorf("turn.%s must be positive", name))
		}
	}
	checkUnit("vad_confidence", t.VADConfidence)
	checkUnit("vad_min_volume", t.VADMinVolume)
	checkUnit("smart_turn_threshold", t.SmartTurnThreshold)
	checkPositive("vad_start_secs", t.VADStartSecs)
	checkPositive("vad_stop_secs", t.VADStopSecs)
	checkPositive("max_duration_secs", t.MaxDurationSecs)
	checkPositive("user_turn_stop_timeout", t.StopTimeoutSecs)
	checkPositive("silence_fallback_secs", t.SilenceFallbackSecs)
	if t.PreSpeechMs != nil && *t.PreSpeechMs < 0 {
		errs = append(errs, errors.New("turn.pre_speech_ms must not be negative"))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
