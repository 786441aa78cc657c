package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: changes apply to
// new calls, never to calls already in flight.
type ConfigDiff struct {
	AgentsChanged   bool        // true if any agent prompt, greeting, voice, or policy changed
	AgentChanges    []AgentDiff // per-agent diffs
	TurnChanged     bool        // true if any turn-taking knob changed
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// AgentDiff describes what changed for a single agent between two configs.
type AgentDiff struct {
	Name            string
	PromptChanged   bool
	GreetingChanged bool
	VoiceChanged    bool
	PolicyChanged   bool // session timeout or memory flag
	Added           bool
	Removed         bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Turn knobs apply to the next call's session snapshot.
	if !reflect.DeepEqual(old.Turn, new.Turn) {
		d.TurnChanged = true
	}

	// Build agent lookup maps keyed by name.
	oldAgents := make(map[string]*AgentConfig, len(old.Agents))
	for i := range old.Agents {
		oldAgents[old.Agents[i].Name] = &old.Agents[i]
	}
	newAgents := make(map[string]*AgentConfig, len(new.Agents))
	for i := range new.Agents {
		newAgents[new.Agents[i].Name] = &new.Agents[i]
	}

	// Detect modified and removed agents.
	for name, oldAgent := range oldAgents {
		newAgent, exists := newAgents[name]
		if !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{
				Name:    name,
				Removed: true,
			})
			d.AgentsChanged = true
			continue
		}
		ad := diffAgent(name, oldAgent, newAgent)
		if ad.PromptChanged || ad.GreetingChanged || ad.VoiceChanged || ad.PolicyChanged {
			d.AgentChanges = append(d.AgentChanges, ad)
			d.AgentsChanged = true
		}
	}

	// Detect added agents.
	for name := range newAgents {
		if _, exists := oldAgents[name]; !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{
				Name:  name,
				Added: true,
			})
			d.AgentsChanged = true
		}
	}

	return d
}

// diffAgent compares two agent configs with the same name.
func diffAgent(name string, old, new *AgentConfig) AgentDiff {
	ad := AgentDiff{Name: name}

	if old.SystemPrompt != new.SystemPrompt || old.Language != new.Language {
		ad.PromptChanged = true
	}
	if old.Greeting != new.Greeting {
		ad.GreetingChanged = true
	}
	if old.Voice != new.Voice {
		ad.VoiceChanged = true
	}
	if old.SessionTimeoutMinutes != new.SessionTimeoutMinutes || old.EnableMemory != new.EnableMemory {
		ad.PolicyChanged = true
	}

	return ad
}
