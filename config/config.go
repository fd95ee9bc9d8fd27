// Package config loads carecore settings from a TOML file and the
// environment, and watches the file for tier changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/openfda"
	"github.com/postvisit/carecore/provider"
)

// ErrUnknownKeys is returned when the file sets keys Config does not have.
var ErrUnknownKeys = errors.New("config: unknown keys")

// AnthropicConfig configures the model provider.
type AnthropicConfig struct {
	APIKey  string `json:"-" toml:"api_key"`
	BaseURL string `json:"base_url" toml:"base_url"`

	// Model routes every tier to one model. Empty uses each tier's model.
	Model string `json:"model" toml:"model"`

	// EscalationModel is used by the urgency screener's model fallback.
	EscalationModel string `json:"escalation_model" toml:"escalation_model"`

	Timeout    time.Duration `json:"timeout" toml:"timeout"`
	MaxRetries int           `json:"max_retries" toml:"max_retries"`
	Beta       string        `json:"beta" toml:"beta"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Listen string `json:"listen" toml:"listen"`

	// Fixtures is a YAML file of visits and sessions served from memory.
	Fixtures string `json:"fixtures" toml:"fixtures"`
}

// SummaryConfig configures the session summary store.
type SummaryConfig struct {
	// DBPath is the SQLite file. ":memory:" keeps summaries in process.
	DBPath string `json:"db_path" toml:"db_path"`
}

// OpenFDAConfig configures drug lookups.
type OpenFDAConfig struct {
	BaseURL  string        `json:"base_url" toml:"base_url"`
	Timeout  time.Duration `json:"timeout" toml:"timeout"`
	CacheTTL time.Duration `json:"cache_ttl" toml:"cache_ttl"`
}

// Config is the full carecore configuration.
type Config struct {
	// Tier is the initial tier selection.
	Tier string `json:"tier" toml:"tier"`

	// Provider names the model backend: "anthropic", or "mock" for
	// offline runs with canned answers.
	Provider string `json:"provider" toml:"provider"`

	// PinnedTier, when set, overrides every runtime tier change.
	PinnedTier string `json:"pinned_tier" toml:"pinned_tier"`

	// ContextCompaction enables the previous-session summary layer.
	ContextCompaction bool `json:"context_compaction_enabled" toml:"context_compaction_enabled"`

	// PromptDir overrides embedded prompts with "<name>.md" files.
	PromptDir string `json:"prompt_dir" toml:"prompt_dir"`

	// GuidelinesDir holds clinical guideline documents and their index.
	GuidelinesDir string `json:"guidelines_dir" toml:"guidelines_dir"`

	// LabRanges replaces the built-in lab reference table (YAML).
	LabRanges string `json:"lab_ranges" toml:"lab_ranges"`

	Anthropic AnthropicConfig `json:"anthropic" toml:"anthropic"`
	Server    ServerConfig    `json:"server" toml:"server"`
	Summary   SummaryConfig   `json:"summary" toml:"summary"`
	OpenFDA   OpenFDAConfig   `json:"openfda" toml:"openfda"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	p := provider.DefaultConfig()
	return Config{
		Tier:     model.DefaultTier.Name,
		Provider: p.Provider,
		Anthropic: AnthropicConfig{
			Timeout:    p.Timeout,
			MaxRetries: p.MaxRetries,
		},
		Server:  ServerConfig{Listen: ":8080"},
		Summary: SummaryConfig{DBPath: "carecore.db"},
		OpenFDA: OpenFDAConfig{
			BaseURL:  openfda.DefaultBaseURL,
			Timeout:  openfda.DefaultTimeout,
			CacheTTL: openfda.DefaultCacheTTL,
		},
	}
}

// Load reads the TOML file at path over DefaultConfig, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("%w in %s: %s", ErrUnknownKeys, path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadFromEnv overrides fields from environment variables. Variables use
// the CARECORE_ prefix; ANTHROPIC_API_KEY is read when CARECORE_API_KEY is
// unset and the file has no key.
//
// Supported variables:
//   - CARECORE_TIER, CARECORE_PINNED_TIER, CARECORE_PROVIDER
//   - CARECORE_CONTEXT_COMPACTION ("true"/"false")
//   - CARECORE_PROMPT_DIR, CARECORE_GUIDELINES_DIR, CARECORE_LAB_RANGES
//   - CARECORE_API_KEY, CARECORE_BASE_URL, CARECORE_MODEL,
//     CARECORE_ESCALATION_MODEL, CARECORE_TIMEOUT, CARECORE_MAX_RETRIES
//   - CARECORE_LISTEN, CARECORE_FIXTURES, CARECORE_SUMMARY_DB
//   - CARECORE_OPENFDA_BASE_URL, CARECORE_OPENFDA_CACHE_TTL
func (c *Config) LoadFromEnv() {
	setString(&c.Tier, "CARECORE_TIER")
	setString(&c.PinnedTier, "CARECORE_PINNED_TIER")
	setString(&c.Provider, "CARECORE_PROVIDER")
	if v := os.Getenv("CARECORE_CONTEXT_COMPACTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ContextCompaction = b
		}
	}
	setString(&c.PromptDir, "CARECORE_PROMPT_DIR")
	setString(&c.GuidelinesDir, "CARECORE_GUIDELINES_DIR")
	setString(&c.LabRanges, "CARECORE_LAB_RANGES")

	if v := os.Getenv("CARECORE_API_KEY"); v != "" {
		c.Anthropic.APIKey = v
	} else if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.Anthropic.APIKey == "" {
		c.Anthropic.APIKey = v
	}
	setString(&c.Anthropic.BaseURL, "CARECORE_BASE_URL")
	setString(&c.Anthropic.Model, "CARECORE_MODEL")
	setString(&c.Anthropic.EscalationModel, "CARECORE_ESCALATION_MODEL")
	setDuration(&c.Anthropic.Timeout, "CARECORE_TIMEOUT")
	if v := os.Getenv("CARECORE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Anthropic.MaxRetries = n
		}
	}

	setString(&c.Server.Listen, "CARECORE_LISTEN")
	setString(&c.Server.Fixtures, "CARECORE_FIXTURES")
	setString(&c.Summary.DBPath, "CARECORE_SUMMARY_DB")
	setString(&c.OpenFDA.BaseURL, "CARECORE_OPENFDA_BASE_URL")
	setDuration(&c.OpenFDA.CacheTTL, "CARECORE_OPENFDA_CACHE_TTL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := model.ParseTier(c.Tier); err != nil {
		return fmt.Errorf("tier: %w", err)
	}
	if c.PinnedTier != "" {
		if _, err := model.ParseTier(c.PinnedTier); err != nil {
			return fmt.Errorf("pinned_tier: %w", err)
		}
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Anthropic.MaxRetries < 0 {
		return fmt.Errorf("anthropic.max_retries must be >= 0, got %d", c.Anthropic.MaxRetries)
	}
	if c.Anthropic.Timeout < 0 {
		return fmt.Errorf("anthropic.timeout must be >= 0, got %v", c.Anthropic.Timeout)
	}
	if c.OpenFDA.Timeout < 0 || c.OpenFDA.CacheTTL < 0 {
		return fmt.Errorf("openfda durations must be >= 0")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	return nil
}

// WithTier returns a copy of the config with the specified tier.
func (c Config) WithTier(name string) Config {
	c.Tier = name
	return c
}

// WithListen returns a copy of the config with the specified address.
func (c Config) WithListen(addr string) Config {
	c.Server.Listen = addr
	return c
}

// ProviderConfig returns the settings for provider.New.
func (c Config) ProviderConfig() provider.Config {
	p := provider.DefaultConfig().WithProvider(c.Provider)
	p.APIKey = c.Anthropic.APIKey
	p.BaseURL = c.Anthropic.BaseURL
	p.Timeout = c.Anthropic.Timeout
	p.MaxRetries = c.Anthropic.MaxRetries
	if c.Anthropic.Beta != "" {
		p = p.WithOption("anthropic_beta", c.Anthropic.Beta)
	}
	return p
}

// TierStore builds the process tier store: the configured tier as the
// starting selection, the pinned tier and model override if set.
// Call after Validate.
func (c Config) TierStore() *model.TierStore {
	initial, err := model.ParseTier(c.Tier)
	if err != nil {
		initial = model.DefaultTier
	}
	opts := []model.StoreOption{model.WithFallbackTier(initial)}
	if pinned, err := model.ParseTier(c.PinnedTier); err == nil {
		opts = append(opts, model.WithPinnedTier(pinned))
	}
	if c.Anthropic.Model != "" {
		opts = append(opts, model.WithModelOverride(c.Anthropic.Model))
	}
	return model.NewTierStore(opts...)
}
