// Package config loads lipost settings from an optional TOML file overlaid
// with LIPOST_* environment variables.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LIPOST_"

// Config is the full application configuration.
type Config struct {
	LinkedIn LinkedInConfig `toml:"linkedin"`
	LLM      LLMConfig      `toml:"llm"`
	Server   ServerConfig   `toml:"server"`
	Mirrors  MirrorsConfig  `toml:"mirrors"`
}

// LinkedInConfig holds the LinkedIn API settings.
type LinkedInConfig struct {
	AccessToken    string        `toml:"access_token" env:"LINKEDIN_ACCESS_TOKEN,overwrite"`
	APIBase        string        `toml:"api_base" env:"LINKEDIN_API_BASE,overwrite"`
	RetryMax       int           `toml:"retry_max" env:"LINKEDIN_RETRY_MAX,overwrite"`
	ProcessingWait time.Duration `toml:"processing_wait" env:"LINKEDIN_PROCESSING_WAIT,overwrite"`
}

// LLMConfig selects the text generation model.
type LLMConfig struct {
	Provider          string  `toml:"provider" env:"LLM_PROVIDER,overwrite"`
	APIKey            string  `toml:"api_key" env:"LLM_API_KEY,overwrite"`
	Model             string  `toml:"model" env:"LLM_MODEL,overwrite"`
	BaseURL           string  `toml:"base_url" env:"LLM_BASE_URL,overwrite"`
	SystemMessage     string  `toml:"system_message" env:"LLM_SYSTEM_MESSAGE,overwrite"`
	Temperature       float64 `toml:"temperature" env:"LLM_TEMPERATURE,overwrite"`
	MaxTokens         int     `toml:"max_tokens" env:"LLM_MAX_TOKENS,overwrite"`
	MaxAttempts       int     `toml:"max_attempts" env:"LLM_MAX_ATTEMPTS,overwrite"`
	RequestsPerMinute int     `toml:"requests_per_minute" env:"LLM_REQUESTS_PER_MINUTE,overwrite"`
	SDKRetries        int     `toml:"sdk_retries" env:"LLM_SDK_RETRIES,overwrite"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Host   string `toml:"host" env:"SERVER_HOST,overwrite"`
	Port   int    `toml:"port" env:"SERVER_PORT,overwrite"`
	APIKey string `toml:"api_key" env:"SERVER_API_KEY,overwrite"`
}

// MirrorsConfig lists the secondary networks to re-post to.
type MirrorsConfig struct {
	Enabled []string `toml:"enabled" env:"MIRRORS,overwrite"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// providerKeys are the conventional variables consulted when no LLM API key
// is configured.
var providerKeys = map[string]string{
	"groq":      "GROQ_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(dir, "lipost", "config.toml")
}

// Load reads path, if it exists, and overlays the process environment.
func Load(ctx context.Context, path string) (*Config, error) {
	return LoadWith(ctx, path, envconfig.OsLookuper())
}

// LoadWith is Load with an explicit environment source. An empty path skips
// the file; a missing file at the default location is not an error.
func LoadWith(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist) && path == DefaultPath():
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &cfg, envconfig.PrefixLookuper(EnvPrefix, lookuper)); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}

	cfg.applyDefaults()

	if cfg.LLM.APIKey == "" {
		if name, ok := providerKeys[cfg.LLM.Provider]; ok {
			if v, ok := lookuper.Lookup(name); ok {
				cfg.LLM.APIKey = v
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LinkedIn.APIBase == "" {
		c.LinkedIn.APIBase = "https://api.linkedin.com"
	}
	if c.LinkedIn.RetryMax == 0 {
		c.LinkedIn.RetryMax = 3
	}
	if c.LinkedIn.ProcessingWait <= 0 {
		c.LinkedIn.ProcessingWait = 120 * time.Second
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = "groq"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxAttempts <= 0 {
		c.LLM.MaxAttempts = 3
	}

	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	for i, m := range c.Mirrors.Enabled {
		c.Mirrors.Enabled[i] = strings.ToLower(strings.TrimSpace(m))
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	for _, m := range c.Mirrors.Enabled {
		switch m {
		case "twitter", "bluesky", "mastodon":
		default:
			errs = append(errs, fmt.Errorf("unknown mirror %q", m))
		}
	}
	return errors.Join(errs...)
}

// DefaultConfig returns the embedded example configuration with defaults
// applied.
func DefaultConfig() *Config {
	var cfg Config
	if err := toml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	cfg.applyDefaults()
	return &cfg
}

// CreateConfigFile writes the example configuration to path.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, exampleConf, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
