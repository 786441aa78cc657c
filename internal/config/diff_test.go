package config_test

import (
	"testing"

	"github.com/voxgate/voxgate/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Agents: []config.AgentConfig{
			{
				Name:         "reception",
				SystemPrompt: "Answer the phone.",
				Greeting:     "Hello!",
				Voice:        config.VoiceConfig{Provider: "elevenlabs", VoiceID: "v1"},
			},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	d := config.Diff(old, new)
	if d.AgentsChanged || d.TurnChanged || d.LogLevelChanged {
		t.Errorf("Diff reported changes for identical configs: %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug
	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level change not detected: %+v", d)
	}
}

func TestDiff_TurnKnobs(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	v := 0.9
	new.Turn.VADConfidence = &v
	d := config.Diff(old, new)
	if !d.TurnChanged {
		t.Error("turn knob change not detected")
	}
}

func TestDiff_AgentModified(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Agents[0].Greeting = "Good afternoon!"
	new.Agents[0].SessionTimeoutMinutes = 15

	d := config.Diff(old, new)
	if !d.AgentsChanged || len(d.AgentChanges) != 1 {
		t.Fatalf("agent change not detected: %+v", d)
	}
	ad := d.AgentChanges[0]
	if ad.Name != "reception" || !ad.GreetingChanged || !ad.PolicyChanged {
		t.Errorf("agent diff = %+v", ad)
	}
	if ad.PromptChanged || ad.VoiceChanged {
		t.Errorf("agent diff flagged unchanged fields: %+v", ad)
	}
}

func TestDiff_AgentAddedAndRemoved(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Agents = []config.AgentConfig{
		{Name: "support", SystemPrompt: "Handle support calls."},
	}

	d := config.Diff(old, new)
	if !d.AgentsChanged || len(d.AgentChanges) != 2 {
		t.Fatalf("expected one removal and one addition: %+v", d)
	}
	var added, removed bool
	for _, ad := range d.AgentChanges {
		switch {
		case ad.Added && ad.Name == "support":
			added = true
		case ad.Removed && ad.Name == "reception":
			removed = true
		}
	}
	if !added || !removed {
		t.Errorf("agent changes = %+v", d.AgentChanges)
	}
}
