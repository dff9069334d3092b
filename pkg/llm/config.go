package llm

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment fallbacks applied when the YAML leaves a field empty.
const (
	envBaseURL      = "LLM_BASE_URL"
	envAPIKey       = "LLM_API_KEY"
	envDefaultModel = "LLM_DEFAULT_MODEL"
)

// Config holds runtime settings for the LLM client.
type Config struct {
	BaseURL      string                 `yaml:"base_url"`
	APIKey       string                 `yaml:"api_key"`
	DefaultModel string                 `yaml:"default_model"`
	TimeoutRaw   string                 `yaml:"timeout"`
	Timeout      time.Duration          `yaml:"-"`
	MaxRetries   int                    `yaml:"max_retries"`
	Models       map[string]ModelConfig `yaml:"models"`
}

// ModelConfig defines per-alias defaults; ModelName is the provider-side id
// the alias resolves to.
type ModelConfig struct {
	ModelName   string   `yaml:"model_name"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
	TopP        *float64 `yaml:"top_p,omitempty"`
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("llm: open config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from a reader, expanding env
// placeholders and applying the environment fallbacks.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("llm: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("llm: parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.finalise(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = os.Getenv(envBaseURL)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		c.APIKey = os.Getenv(envAPIKey)
	}
	if strings.TrimSpace(c.DefaultModel) == "" {
		c.DefaultModel = os.Getenv(envDefaultModel)
	}
}

func (c *Config) finalise() error {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.DefaultModel = strings.TrimSpace(c.DefaultModel)

	if c.TimeoutRaw == "" {
		c.Timeout = 60 * time.Second
	} else {
		d, err := time.ParseDuration(strings.TrimSpace(c.TimeoutRaw))
		if err != nil {
			return fmt.Errorf("llm: invalid timeout %q: %w", c.TimeoutRaw, err)
		}
		c.Timeout = d
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return nil
}

// Validate checks the fields a live client cannot run without.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("llm: nil config")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("llm: base_url is required (or %s)", envBaseURL)
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("llm: default_model is required (or %s)", envDefaultModel)
	}
	return nil
}

// resolveModel maps a request's model alias onto the provider model id and
// the alias' parameter defaults. Unknown aliases pass through untouched so
// callers can name provider ids directly.
func (c *Config) resolveModel(alias string) (string, ModelConfig) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		alias = c.DefaultModel
	}
	if mc, ok := c.Models[alias]; ok {
		if mc.ModelName != "" {
			return mc.ModelName, mc
		}
		return alias, mc
	}
	return alias, ModelConfig{}
}
