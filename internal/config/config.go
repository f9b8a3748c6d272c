// Package config handles SCOPE Assistant configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./scope.yaml, ~/.config/scope/scope.yaml, /etc/scope/scope.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"scope.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "scope", "scope.yaml"))
	}

	paths = append(paths, "/etc/scope/scope.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all SCOPE Assistant configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Database   DatabaseConfig   `yaml:"database"`
	Model      ModelConfig      `yaml:"model"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Classifier ClassifierConfig `yaml:"classifier"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the HTTP listener.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// Addr returns the address in host:port form for net/http.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Address, l.Port)
}

// DatabaseConfig defines the complaint database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ModelConfig selects the language backend and its limits.
type ModelConfig struct {
	// Provider is "ollama" or "anthropic".
	Provider string `yaml:"provider"`
	// Name is the model identifier passed to the provider.
	Name string `yaml:"name"`
	// MaxIterations caps capability-call round trips per turn.
	MaxIterations int `yaml:"max_iterations"`
}

// OllamaConfig defines Ollama API settings.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// EmbeddingsConfig defines the embedding service used for complaint search.
type EmbeddingsConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ClassifierConfig defines the complaint classification inference service.
// When BaseURL is empty, complaint creation falls back to default
// category/urgency values.
type ClassifierConfig struct {
	BaseURL string `yaml:"base_url"`
}

// MQTTConfig defines the optional status-change notification broker.
// Notifications are disabled when Broker is empty.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// SessionsConfig controls chat session retention. A zero TTL disables
// eviction; sessions then live for the process lifetime.
type SessionsConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		Listen: ListenConfig{
			Address: "127.0.0.1",
			Port:    8490,
		},
		Database: DatabaseConfig{
			Path: "scope.db",
		},
		Model: ModelConfig{
			Provider:      "ollama",
			Name:          "qwen3:8b",
			MaxIterations: 8,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		Embeddings: EmbeddingsConfig{
			BaseURL: "http://localhost:11434",
			Model:   "nomic-embed-text",
		},
		MQTT: MQTTConfig{
			TopicPrefix: "scope",
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Model.Provider {
	case "ollama":
		if c.Ollama.BaseURL == "" {
			return fmt.Errorf("ollama.base_url is required when model.provider is ollama")
		}
	case "anthropic":
		// An empty API key is allowed here: the engine is constructed
		// lazily and a missing key triggers the degraded fallback,
		// not a startup failure.
	default:
		return fmt.Errorf("unknown model.provider %q (valid: ollama, anthropic)", c.Model.Provider)
	}
	if c.Model.MaxIterations < 0 {
		return fmt.Errorf("model.max_iterations must not be negative")
	}
	if c.Sessions.TTL < 0 {
		return fmt.Errorf("sessions.ttl must not be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
