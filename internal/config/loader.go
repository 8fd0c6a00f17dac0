package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
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

	// Agent
	if cfg.Agent.URL == "" {
		errs = append(errs, errors.New("agent.url is required"))
	} else if !strings.HasPrefix(cfg.Agent.URL, "ws://") && !strings.HasPrefix(cfg.Agent.URL, "wss://") {
		errs = append(errs, fmt.Errorf("agent.url %q must use the ws:// or wss:// scheme", cfg.Agent.URL))
	}
	if cfg.Agent.APIKey == "" && os.Getenv("VOICEWIRE_API_KEY") == "" {
		slog.Warn("agent.api_key is empty and VOICEWIRE_API_KEY is not set; the agent endpoint may reject the connection")
	}
	if cfg.Agent.EventBuffer < 0 {
		errs = append(errs, fmt.Errorf("agent.event_buffer %d must not be negative", cfg.Agent.EventBuffer))
	}

	// Audio
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must not be negative", cfg.Audio.FrameSize))
	}
	if cfg.Audio.InputRate < 0 {
		errs = append(errs, fmt.Errorf("audio.input_rate %d must not be negative", cfg.Audio.InputRate))
	}

	// Persona duplicate name detection
	namesSeen := make(map[string]int, len(cfg.Personas))
	for i, p := range cfg.Personas {
		prefix := fmt.Sprintf("personas[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[p.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of personas[%d]", prefix, p.Name, prev))
			}
			namesSeen[p.Name] = i
		}
		if p.Voice == "" {
			slog.Warn("persona has no voice configured; the agent default will be used", "persona", p.Name)
		}
	}

	return errors.Join(errs...)
}

// ResolveAPIKey returns the agent API key, falling back to the
// VOICEWIRE_API_KEY environment variable when the config field is empty.
func (c *Config) ResolveAPIKey() string {
	if c.Agent.APIKey != "" {
		return c.Agent.APIKey
	}
	return os.Getenv("VOICEWIRE_API_KEY")
}

// Persona looks up a configured persona by name. An empty name selects the
// first configured persona; when none are configured a zero value is
// returned.
func (c *Config) Persona(name string) (PersonaConfig, error) {
	if name == "" {
		if len(c.Personas) == 0 {
			return PersonaConfig{}, nil
		}
		return c.Personas[0], nil
	}
	for _, p := range c.Personas {
		if p.Name == name {
			return p, nil
		}
	}
	return PersonaConfig{}, fmt.Errorf("config: persona %q not found", name)
}
