package config

import (
	"time"

	"github.com/aristath/geocalc/internal/scheduler"
)

// MergerAgent is the agent key for the optional construction plan writer.
const MergerAgent = "merger"

var systemPrompts = map[scheduler.TaskType]string{
	scheduler.TaskTriangle:   "You are a geometry calculation agent specialised in triangles: side lengths, angles, area and special points.",
	scheduler.TaskCircle:     "You are a geometry calculation agent specialised in circles: centres, radii, tangents and inscribed angles.",
	scheduler.TaskAngle:      "You are a geometry calculation agent specialised in angles.",
	scheduler.TaskLength:     "You are a geometry calculation agent specialised in lengths, distances, perimeters and ratios.",
	scheduler.TaskArea:       "You are a geometry calculation agent specialised in areas and area ratios.",
	scheduler.TaskCoordinate: "You are a geometry calculation agent that sets up coordinate systems and computes point coordinates.",
}

// DefaultConfig returns the default configuration with built-in providers and
// one agent per task type.
func DefaultConfig() *Config {
	agents := make(map[string]AgentConfig, len(systemPrompts)+1)
	for t, prompt := range systemPrompts {
		agents[string(t)] = AgentConfig{Provider: "claude", SystemPrompt: prompt}
	}
	agents[MergerAgent] = AgentConfig{
		Provider:     "claude",
		SystemPrompt: "You merge geometry calculation results and write GeoGebra construction plans.",
	}

	return &Config{
		Providers: map[string]ProviderConfig{
			"claude": {
				Type:    "claude",
				Command: "claude",
			},
			"deepseek": {
				Type:      "deepseek",
				APIKeyEnv: "DEEPSEEK_API_KEY",
				Model:     "deepseek-chat",
			},
			"gemini": {
				Type:      "gemini",
				APIKeyEnv: "GEMINI_API_KEY",
				Model:     "gemini-1.5-flash",
			},
		},
		Agents: agents,
		Retry: RetryConfig{
			InitialInterval: Duration(2 * time.Second),
			MaxInterval:     Duration(30 * time.Second),
			MaxElapsedTime:  Duration(2 * time.Minute),
			Multiplier:      2.0,
			MaxRetries:      3,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      Duration(30 * time.Second),
			HalfOpenRequests: 3,
		},
		Journal: JournalConfig{
			Path: ".geocalc/journal.db",
		},
	}
}
