package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Environment variable names for the turn-taking knobs. Operators retune a
// deployment through these without touching the config file; they take
// precedence over the YAML values.
const (
	EnvVADConfidence       = "VOXGATE_VAD_CONFIDENCE"
	EnvVADMinVolume        = "VOXGATE_VAD_MIN_VOLUME"
	EnvVADStartSecs        = "VOXGATE_VAD_START_SECS"
	EnvVADStopSecs         = "VOXGATE_VAD_STOP_SECS"
	EnvEnableSmartTurn     = "VOXGATE_ENABLE_SMART_TURN"
	EnvSmartTurnThreshold  = "VOXGATE_SMART_TURN_THRESHOLD"
	EnvPreSpeechMs         = "VOXGATE_PRE_SPEECH_MS"
	EnvMaxDurationSecs     = "VOXGATE_MAX_DURATION_SECS"
	EnvStopTimeout         = "VOXGATE_USER_TURN_STOP_TIMEOUT"
	EnvSilenceFallbackSecs = "VOXGATE_SILENCE_FALLBACK_SECS"
	EnvEnableInterruptions = "VOXGATE_ENABLE_INTERRUPTIONS"
	EnvMuteUntilBotReady   = "VOXGATE_MUTE_UNTIL_BOT_READY"
)

// ApplyEnv overlays VOXGATE_* environment variables onto the turn knobs in
// cfg. Unparseable values are collected into one joined error so a bad
// deployment fails at startup rather than mid-call.
func ApplyEnv(cfg *Config) error {
	var errs []error

	setFloat := func(key string, dst **float64) {
		raw, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
			return
		}
		*dst = &v
	}
	setInt := func(key string, dst **int) {
		raw, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
			return
		}
		*dst = &v
	}
	setBool := func(key string, dst **bool) {
		raw, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
			return
		}
		*dst = &v
	}

	setFloat(EnvVADConfidence, &cfg.Turn.VADConfidence)
	setFloat(EnvVADMinVolume, &cfg.Turn.VADMinVolume)
	setFloat(EnvVADStartSecs, &cfg.Turn.VADStartSecs)
	setFloat(EnvVADStopSecs, &cfg.Turn.VADStopSecs)
	setBool(EnvEnableSmartTurn, &cfg.Turn.EnableSmartTurn)
	setFloat(EnvSmartTurnThreshold, &cfg.Turn.SmartTurnThreshold)
	setInt(EnvPreSpeechMs, &cfg.Turn.PreSpeechMs)
	setFloat(EnvMaxDurationSecs, &cfg.Turn.MaxDurationSecs)
	setFloat(EnvStopTimeout, &cfg.Turn.StopTimeoutSecs)
	setFloat(EnvSilenceFallbackSecs, &cfg.Turn.SilenceFallbackSecs)
	setBool(EnvEnableInterruptions, &cfg.Turn.EnableInterruptions)
	setBool(EnvMuteUntilBotReady, &cfg.Turn.MuteUntilBotReady)

	if len(errs) > 0 {
		return fmt.Errorf("config: environment overrides: %w", errors.Join(errs...))
	}
	if moreErrs := validateTurn(cfg.Turn); len(moreErrs) > 0 {
		return fmt.Errorf("config: environment overrides: %w", errors.Join(moreErrs...))
	}
	return nil
}
