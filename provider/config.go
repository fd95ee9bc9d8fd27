package provider

import (
	"fmt"
	"maps"
	"time"
)

// Config is what a Factory needs to build a client. The config package
// derives it from the process configuration.
type Config struct {
	// Provider is the registered provider name ("anthropic", "mock").
	Provider string `json:"provider"`

	// Model is used by requests that leave Options.Model empty.
	Model string `json:"model"`

	APIKey string `json:"-"`

	// BaseURL overrides the provider endpoint (tests, proxies).
	BaseURL string `json:"base_url"`

	// Timeout bounds one HTTP request, connection included. 0 means none.
	Timeout time.Duration `json:"timeout"`

	// MaxRetries bounds retries of transient failures.
	MaxRetries int `json:"max_retries"`

	// Options holds provider-specific settings. Anthropic reads
	// "anthropic_version" and "anthropic_beta".
	Options map[string]any `json:"options,omitempty"`
}

// DefaultConfig targets Anthropic with a five minute timeout and two
// retries.
func DefaultConfig() Config {
	return Config{
		Provider:   "anthropic",
		Timeout:    5 * time.Minute,
		MaxRetries: 2,
	}
}

// Validate rejects configs no provider can use.
func (c *Config) Validate() error {
	switch {
	case c.Provider == "":
		return fmt.Errorf("provider is required")
	case c.MaxRetries < 0:
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	case c.Timeout < 0:
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}
	return nil
}

// WithProvider returns a copy using provider.
func (c Config) WithProvider(provider string) Config {
	c.Provider = provider
	return c
}

// WithOption returns a copy with key set. The receiver's map is not
// modified.
func (c Config) WithOption(key string, value any) Config {
	opts := maps.Clone(c.Options)
	if opts == nil {
		opts = make(map[string]any, 1)
	}
	opts[key] = value
	c.Options = opts
	return c
}

// StringOption returns the string option key, or def when it is unset or
// not a string.
func (c Config) StringOption(key, def string) string {
	if v, ok := c.Options[key].(string); ok {
		return v
	}
	return def
}
