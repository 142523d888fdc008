package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/aristath/geocalc/internal/backend"
	"github.com/aristath/geocalc/internal/scheduler"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists (highest precedence)
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.geocalc/config.json
// Project: .geocalc/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".geocalc", "config.json")
	projectPath := filepath.Join(".geocalc", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Providers and agents are replaced per key; scalar settings only where the
// file sets them. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded struct {
		Providers map[string]ProviderConfig `json:"providers"`
		Agents    map[string]AgentConfig    `json:"agents"`
		Retry     *json.RawMessage          `json:"retry"`
		Breaker   *json.RawMessage          `json:"breaker"`
		Journal   *json.RawMessage          `json:"journal"`
	}
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	// Merge providers
	for key, provider := range loaded.Providers {
		base.Providers[key] = provider
	}

	// Merge agents
	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}

	// Sections decode on top of the current values
	sections := []struct {
		raw *json.RawMessage
		dst any
	}{
		{loaded.Retry, &base.Retry},
		{loaded.Breaker, &base.Breaker},
		{loaded.Journal, &base.Journal},
	}
	for _, s := range sections {
		if s.raw == nil {
			continue
		}
		if err := json.Unmarshal(*s.raw, s.dst); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	return nil
}

// Validate checks that every task type has an agent bound to a known provider
// and that every provider has a supported type.
func (c *Config) Validate() error {
	var errs []error

	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := c.Providers[name]
		switch {
		case !slices.Contains(backend.Types(), p.Type):
			errs = append(errs, fmt.Errorf("provider %q: unknown type %q", name, p.Type))
		case p.Type != "claude" && p.APIKeyEnv == "":
			// HTTP backends authenticate with a key from the environment.
			errs = append(errs, fmt.Errorf("provider %q: api_key_env is required for %s", name, p.Type))
		}
	}

	for _, t := range scheduler.TaskTypes() {
		if _, ok := c.Agents[string(t)]; !ok {
			errs = append(errs, fmt.Errorf("no agent configured for task type %q", t))
		}
	}

	agents := make([]string, 0, len(c.Agents))
	for key := range c.Agents {
		agents = append(agents, key)
	}
	sort.Strings(agents)
	for _, key := range agents {
		p := c.Agents[key].Provider
		if _, ok := c.Providers[p]; !ok {
			errs = append(errs, fmt.Errorf("agent %q: unknown provider %q", key, p))
		}
	}

	return errors.Join(errs...)
}

// BackendConfig resolves the backend settings of an agent. API keys are read
// from the provider's environment variable.
func (c *Config) BackendConfig(agent string) (backend.Config, error) {
	a, ok := c.Agents[agent]
	if !ok {
		return backend.Config{}, fmt.Errorf("no agent configured for %q", agent)
	}
	p, ok := c.Providers[a.Provider]
	if !ok {
		return backend.Config{}, fmt.Errorf("agent %q: unknown provider %q", agent, a.Provider)
	}

	cfg := backend.Config{
		Type:         p.Type,
		Command:      p.Command,
		Model:        p.Model,
		SystemPrompt: a.SystemPrompt,
		BaseURL:      p.BaseURL,
		Timeout:      time.Duration(p.Timeout),
	}
	if a.Model != "" {
		cfg.Model = a.Model
	}
	if p.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(p.APIKeyEnv)
		if cfg.APIKey == "" {
			return backend.Config{}, fmt.Errorf("agent %q: environment variable %s is not set", agent, p.APIKeyEnv)
		}
	}
	return cfg, nil
}
