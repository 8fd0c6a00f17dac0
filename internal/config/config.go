// Package config provides the configuration schema and loader for the
// voicewire call server.
package config

// LogLevel controls log verbosity for the voicewire server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voicewire.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Agent    AgentConfig     `yaml:"agent"`
	Audio    AudioConfig     `yaml:"audio"`
	Personas []PersonaConfig `yaml:"personas"`
}

// ServerConfig holds logging and telemetry settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus /metrics endpoint listens
	// on (e.g., ":9102"). When empty, no metrics endpoint is served.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AgentConfig describes the remote conversational agent endpoint.
type AgentConfig struct {
	// URL is the WebSocket endpoint of the agent channel
	// (e.g., "wss://agent.example.com/v1/realtime").
	URL string `yaml:"url"`

	// APIKey authenticates against the agent endpoint. When empty, the
	// VOICEWIRE_API_KEY environment variable is used instead.
	APIKey string `yaml:"api_key"`

	// EventBuffer sizes the inbound event channel. 0 means the default.
	EventBuffer int `yaml:"event_buffer"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	// FrameSize is the capture block size in samples. 0 means the default
	// (4096 samples, 256 ms at 16 kHz).
	FrameSize int `yaml:"frame_size"`

	// InputRate is the capture sample rate in Hz. 0 means 16000. Capture
	// audio at any other rate is resampled to 16 kHz before transmission.
	InputRate int `yaml:"input_rate"`
}

// PersonaConfig describes one selectable agent persona.
type PersonaConfig struct {
	// Name is a unique human-readable identifier (used in logs and for
	// selection on the command line).
	Name string `yaml:"name"`

	// Voice selects the agent's voice identity.
	Voice string `yaml:"voice"`

	// Instructions is the persona prompt sent once at session open.
	Instructions string `yaml:"instructions"`
}
