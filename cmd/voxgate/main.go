// Command voxgate is the main entry point for the Voxgate telephony voice
// agent gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxgate/voxgate/internal/call"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/health"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/resilience"
	"github.com/voxgate/voxgate/internal/store"
	storepg "github.com/voxgate/voxgate/internal/store/postgres"
	"github.com/voxgate/voxgate/internal/transport"
	"github.com/voxgate/voxgate/pkg/memory"
	mempg "github.com/voxgate/voxgate/pkg/memory/postgres"
	"github.com/voxgate/voxgate/pkg/provider/embeddings"
	ollamaembed "github.com/voxgate/voxgate/pkg/provider/embeddings/ollama"
	oaembed "github.com/voxgate/voxgate/pkg/provider/embeddings/openai"
	"github.com/voxgate/voxgate/pkg/provider/eot"
	"github.com/voxgate/voxgate/pkg/provider/eot/smartturn"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	"github.com/voxgate/voxgate/pkg/provider/llm/anyllm"
	"github.com/voxgate/voxgate/pkg/provider/stt"
	"github.com/voxgate/voxgate/pkg/provider/stt/deepgram"
	"github.com/voxgate/voxgate/pkg/provider/tts"
	"github.com/voxgate/voxgate/pkg/provider/tts/elevenlabs"
	"github.com/voxgate/voxgate/pkg/provider/vad"
	"github.com/voxgate/voxgate/pkg/provider/vad/energy"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout = 15 * time.Second

	// defaultEmbeddingDims matches text-embedding-3-small, the most common
	// embeddings model in the wild. Overridden by memory.embedding_dimensions.
	defaultEmbeddingDims = 1536
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxgate: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxgate: %v\n", err)
		}
		return 1
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voxgate: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so the config watcher can change it at
	// runtime without replacing the handler.
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("voxgate starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxgate",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Stores ────────────────────────────────────────────────────────────────
	var (
		calls    store.Store = &store.MemStore{}
		checkers []health.Checker
		closers  []func()
	)
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pg, err := storepg.NewStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to open call store", "err", err)
			return 1
		}
		calls = pg
		closers = append(closers, pg.Close)
		checkers = append(checkers, health.Checker{Name: "database", Check: pg.Ping})
		slog.Info("call store connected")
	} else {
		slog.Warn("storage.postgres_dsn is not set; call records are kept in memory")
	}

	var mem memory.Store
	if dsn := cfg.Memory.PostgresDSN; dsn != "" {
		dims := cfg.Memory.EmbeddingDimensions
		if dims <= 0 {
			dims = defaultEmbeddingDims
		}
		ms, err := mempg.NewStore(ctx, dsn, dims)
		if err != nil {
			slog.Error("failed to open memory store", "err", err)
			return 1
		}
		mem = ms
		closers = append(closers, ms.Close)
		checkers = append(checkers, health.Checker{Name: "memory", Check: ms.Ping})
		slog.Info("memory store connected", "embedding_dimensions", dims)

		if providers.Embedder == nil {
			slog.Warn("memory store configured without providers.embeddings; semantic recall is disabled")
		}
	}

	// ── Call manager ──────────────────────────────────────────────────────────
	manager, err := call.NewManager(cfg, providers, calls, mem, call.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise call manager", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if err := config.ApplyEnv(new); err != nil {
			slog.Warn("config reload skipped", "err", err)
			return
		}
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.AgentsChanged || d.TurnChanged {
			manager.UpdateConfig(new)
			slog.Info("configuration reloaded",
				"agents_changed", d.AgentsChanged,
				"turn_changed", d.TurnChanged,
			)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	// ── HTTP servers ──────────────────────────────────────────────────────────
	instrument := observe.Middleware(metrics)

	mediaMux := http.NewServeMux()
	mediaMux.Handle("/agent/{agent}", transport.NewHandler(manager, logger))
	mediaSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           instrument(mediaMux),
		ReadHeaderTimeout: 10 * time.Second,
		// Tie request contexts to the signal context so in-flight calls tear
		// down (and their records close) when the process is asked to stop.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	var adminSrv *http.Server
	probes := health.New(checkers...)
	if cfg.Server.AdminAddr != "" {
		adminMux := http.NewServeMux()
		probes.Register(adminMux)
		adminMux.Handle("/metrics", promhttp.Handler())
		adminSrv = &http.Server{
			Addr:              cfg.Server.AdminAddr,
			Handler:           instrument(adminMux),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("media endpoint listening", "addr", cfg.Server.ListenAddr, "tls", cfg.Server.TLS != nil)
		var err error
		if tc := cfg.Server.TLS; tc != nil {
			err = mediaSrv.ListenAndServeTLS(tc.CertFile, tc.KeyFile)
		} else {
			err = mediaSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("media server: %w", err)
		}
	}()
	if adminSrv != nil {
		go func() {
			slog.Info("admin endpoint listening", "addr", cfg.Server.AdminAddr)
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping")
	case err := <-errCh:
		slog.Error("server error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	// Fail readiness first so the trunk stops routing new calls here while
	// the media server drains the ones in flight.
	probes.SetDraining(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := mediaSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("media server shutdown error", "err", err)
	}
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("admin server shutdown error", "err", err)
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Voxgate. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"deepgram"},
	"tts":        {"elevenlabs"},
	"vad":        {"energy"},
	"eot":        {"smartturn"},
	"embeddings": {"openai", "ollama"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "endpointing_ms"); ms > 0 {
			opts = append(opts, deepgram.WithEndpointing(time.Duration(ms)*time.Millisecond))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── End-of-turn classifier ────────────────────────────────────────────────

	reg.RegisterEOT("smartturn", func(entry config.ProviderEntry) (eot.Classifier, error) {
		var opts []smartturn.Option
		if entry.APIKey != "" {
			opts = append(opts, smartturn.WithAPIKey(entry.APIKey))
		}
		if ms := optInt(entry.Options, "timeout_ms"); ms > 0 {
			opts = append(opts, smartturn.WithTimeout(time.Duration(ms)*time.Millisecond))
		}
		return smartturn.New(entry.BaseURL, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// providerBreaker is the per-provider circuit breaker tuning. A breaker per
// backend lets a failing vendor API reject fast instead of stalling every
// turn for its full HTTP timeout.
var providerBreaker = resilience.FallbackConfig{
	CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  3,
	},
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in a [call.Providers] struct for the manager to consume.
// The LLM, STT, and TTS backends are wrapped in fallback groups so each sits
// behind its own circuit breaker.
func buildProviders(cfg *config.Config, reg *config.Registry) (call.Providers, error) {
	var ps call.Providers

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return ps, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = resilience.NewLLMFallback(p, name, providerBreaker)
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return ps, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = resilience.NewSTTFallback(p, name, providerBreaker)
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return ps, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.TTS = resilience.NewTTSFallback(p, name, providerBreaker)
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	// VAD defaults to the built-in energy detector when unconfigured; every
	// call needs one and it has no credentials or tuning prerequisites.
	vadEntry := cfg.Providers.VAD
	if vadEntry.Name == "" {
		vadEntry.Name = "energy"
	}
	p, err := reg.CreateVAD(vadEntry)
	if err != nil {
		return ps, fmt.Errorf("create vad provider %q: %w", vadEntry.Name, err)
	}
	ps.VAD = p
	slog.Info("provider created", "kind", "vad", "name", vadEntry.Name)

	if name := cfg.Providers.EOT.Name; name != "" {
		p, err := reg.CreateEOT(cfg.Providers.EOT)
		if err != nil {
			return ps, fmt.Errorf("create eot provider %q: %w", name, err)
		}
		ps.EOT = p
		slog.Info("provider created", "kind", "eot", "name", name)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return ps, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embedder = p
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Voxgate - startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printProvider("EOT", cfg.Providers.EOT.Name, cfg.Providers.EOT.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	fmt.Printf("║  Agents          : %-19d ║\n", len(cfg.Agents))
	if cfg.Storage.RecordCalls {
		fmt.Printf("║  Recording       : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Recording       : %-19s ║\n", "(disabled)")
	}
	if cfg.Memory.PostgresDSN != "" {
		fmt.Printf("║  Caller memory   : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Caller memory   : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	if cfg.Server.AdminAddr != "" {
		fmt.Printf("║  Admin addr      : %-19s ║\n", cfg.Server.AdminAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an integer from a provider Options map. YAML decodes
// numbers as int or float64 depending on how they are written.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
