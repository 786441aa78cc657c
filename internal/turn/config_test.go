package turn

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateJoinsAllProblems(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.VAD.Confidence = 1.5
	cfg.VAD.Stop = 0
	cfg.StopTimeout = -time.Second

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"confidence", "stop window", "stop timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateDisabledClassifierNeedsSilenceFallback(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Classifier.Enabled = false
	cfg.SilenceFallback = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted a disabled classifier with no silence fallback")
	}

	cfg.SilenceFallback = 800 * time.Millisecond
	// Classifier fields are not checked when the path is disabled.
	cfg.Classifier.MaxWindow = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
