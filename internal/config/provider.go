package config

import (
	"fmt"
	"os"
	"time"
)

// ProviderConfig defines configuration for the bulk-inference provider.
type ProviderConfig struct {
	BaseURL    string        `mapstructure:"base_url"`     // Base URL for the OpenAI-compatible API
	APIKey     string        `mapstructure:"api_key"`      // API key (can be set directly or via env var)
	APIKeyEnv  string        `mapstructure:"api_key_env"`  // Environment variable name for API key
	BaseURLEnv string        `mapstructure:"base_url_env"` // Environment variable name for base URL
	Timeout    time.Duration `mapstructure:"timeout"`      // Per-request HTTP timeout
}

// ResolveEnvVars resolves environment variable references in the configuration.
// If APIKeyEnv or BaseURLEnv are set, their values are loaded from environment.
// Direct values (APIKey, BaseURL) take precedence if already set.
func (c *ProviderConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		if val := os.Getenv(c.APIKeyEnv); val != "" {
			c.APIKey = val
		}
	}

	if c.BaseURLEnv != "" && c.BaseURL == "" {
		if val := os.Getenv(c.BaseURLEnv); val != "" {
			c.BaseURL = val
		}
	}
}

// Validate checks that the provider configuration has all required fields.
// Returns an error describing the first validation failure, or nil if valid.
func (c *ProviderConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("provider: base_url is required")
	}
	if c.APIKey == "" {
		if c.APIKeyEnv != "" {
			return fmt.Errorf("provider: api_key is required (set directly or via %s)", c.APIKeyEnv)
		}
		return fmt.Errorf("provider: api_key is required")
	}
	return nil
}
