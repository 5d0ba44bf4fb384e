// Package config loads the plugin configuration.
//
// FILES:
//   - config.go:   Config types, loading and validation
//   - env.go:      ${VAR} / ${VAR:-default} expansion
//   - defaults.go: Default values
//
// The configuration is read once at startup and treated as read-only
// afterwards.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML structure.
type Config struct {
	Cloudflare   CloudflareConfig   `yaml:"cloudflare"`
	ChatModifier ChatModifierConfig `yaml:"chat_modifier"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// CloudflareConfig holds Workers AI credentials and endpoints.
type CloudflareConfig struct {
	APIKey         string        `yaml:"api_key"`
	ModelID        string        `yaml:"model_id"`
	AccountID      string        `yaml:"account_id"` // optional, skips discovery
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // 0 = transport default
}

// ChatModifierConfig controls which messages are rewritten and how.
type ChatModifierConfig struct {
	Enabled          bool            `yaml:"enabled"`
	PromptPrefix     string          `yaml:"prompt_prefix"`
	PromptSuffix     string          `yaml:"prompt_suffix"`
	MaxPending       *int            `yaml:"max_pending"` // nil = default, 0 = no queueing
	MaxMessageLength int             `yaml:"max_message_length"` // runes, 0 = unlimited
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is a per-player token bucket. PerMinute 0 disables it.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

// ServerConfig configures the reference websocket chat server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"` // file path, empty = stderr
}

// Load reads a YAML config file. A .env file next to the working
// directory is loaded first (if present) so ${VAR} references resolve.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	// #nosec G304 -- path comes from the operator via --config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML bytes, expands environment references,
// fills defaults and validates the result.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := ExpandEnvWithDefaults(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Cloudflare.BaseURL == "" {
		c.Cloudflare.BaseURL = DefaultCloudflareBaseURL
	}
	c.Cloudflare.BaseURL = strings.TrimRight(c.Cloudflare.BaseURL, "/")
	if c.Cloudflare.ModelID == "" {
		c.Cloudflare.ModelID = DefaultModelID
	}
	if c.ChatModifier.PromptPrefix == "" && c.ChatModifier.PromptSuffix == "" {
		c.ChatModifier.PromptPrefix = DefaultPromptPrefix
	}
	if c.ChatModifier.MaxPending == nil {
		n := DefaultMaxPending
		c.ChatModifier.MaxPending = &n
	}
	if c.ChatModifier.RateLimit.PerMinute > 0 && c.ChatModifier.RateLimit.Burst == 0 {
		c.ChatModifier.RateLimit.Burst = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.ChatModifier.Enabled && strings.TrimSpace(c.Cloudflare.APIKey) == "" {
		return fmt.Errorf("cloudflare.api_key is required when chat_modifier.enabled is true")
	}
	if c.ChatModifier.MaxPending != nil && *c.ChatModifier.MaxPending < 0 {
		return fmt.Errorf("chat_modifier.max_pending must not be negative")
	}
	if c.ChatModifier.MaxMessageLength < 0 {
		return fmt.Errorf("chat_modifier.max_message_length must not be negative")
	}
	if c.ChatModifier.RateLimit.PerMinute < 0 || c.ChatModifier.RateLimit.Burst < 0 {
		return fmt.Errorf("chat_modifier.rate_limit values must not be negative")
	}
	if c.Cloudflare.RequestTimeout < 0 {
		return fmt.Errorf("cloudflare.request_timeout must not be negative")
	}
	if strings.ContainsAny(c.Cloudflare.ModelID, " \t\n?#") {
		return fmt.Errorf("cloudflare.model_id %q contains invalid characters", c.Cloudflare.ModelID)
	}
	return nil
}
