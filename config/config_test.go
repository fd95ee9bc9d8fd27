package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/openfda"
)

// clearEnv blanks every variable LoadFromEnv reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CARECORE_TIER", "CARECORE_PINNED_TIER", "CARECORE_PROVIDER", "CARECORE_CONTEXT_COMPACTION",
		"CARECORE_PROMPT_DIR", "CARECORE_GUIDELINES_DIR", "CARECORE_LAB_RANGES",
		"CARECORE_API_KEY", "ANTHROPIC_API_KEY", "CARECORE_BASE_URL", "CARECORE_MODEL",
		"CARECORE_ESCALATION_MODEL", "CARECORE_TIMEOUT", "CARECORE_MAX_RETRIES",
		"CARECORE_LISTEN", "CARECORE_FIXTURES", "CARECORE_SUMMARY_DB",
		"CARECORE_OPENFDA_BASE_URL", "CARECORE_OPENFDA_CACHE_TTL",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "carecore.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// replaceFile swaps the file atomically, as editors do, so the watcher
// never reads a truncated file.
func replaceFile(path, body string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "opus46", cfg.Tier)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.False(t, cfg.ContextCompaction)
	assert.Equal(t, 5*time.Minute, cfg.Anthropic.Timeout)
	assert.Equal(t, 2, cfg.Anthropic.MaxRetries)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, openfda.DefaultBaseURL, cfg.OpenFDA.BaseURL)
	assert.Equal(t, 24*time.Hour, cfg.OpenFDA.CacheTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), `
tier = "better"
provider = "mock"
context_compaction_enabled = true
prompt_dir = "/etc/carecore/prompts"

[anthropic]
api_key = "sk-file"
model = "claude-sonnet-4-5-20250929"
escalation_model = "claude-haiku-4-5-20251001"
timeout = "90s"
max_retries = 4

[server]
listen = "127.0.0.1:9000"
fixtures = "visits.yaml"

[summary]
db_path = ":memory:"

[openfda]
cache_ttl = "1h"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "better", cfg.Tier)
	assert.Equal(t, "mock", cfg.Provider)
	assert.True(t, cfg.ContextCompaction)
	assert.Equal(t, "/etc/carecore/prompts", cfg.PromptDir)
	assert.Equal(t, "sk-file", cfg.Anthropic.APIKey)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.EscalationModel)
	assert.Equal(t, 90*time.Second, cfg.Anthropic.Timeout)
	assert.Equal(t, 4, cfg.Anthropic.MaxRetries)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, "visits.yaml", cfg.Server.Fixtures)
	assert.Equal(t, ":memory:", cfg.Summary.DBPath)
	assert.Equal(t, time.Hour, cfg.OpenFDA.CacheTTL)
	assert.Equal(t, openfda.DefaultBaseURL, cfg.OpenFDA.BaseURL, "unset keys keep defaults")
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "unknown key", body: "tier = \"good\"\nteir = \"better\"\n", wantErr: ErrUnknownKeys},
		{name: "unknown tier", body: `tier = "platinum"`, wantErr: model.ErrUnknownTier},
		{name: "unknown pinned tier", body: `pinned_tier = "gold"`, wantErr: model.ErrUnknownTier},
		{name: "empty provider", body: `provider = ""`},
		{name: "negative retries", body: "[anthropic]\nmax_retries = -1\n"},
		{name: "syntax", body: "tier = "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), tt.body))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CARECORE_TIER", "good")
	t.Setenv("CARECORE_PINNED_TIER", "better")
	t.Setenv("CARECORE_CONTEXT_COMPACTION", "true")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")
	t.Setenv("CARECORE_MODEL", "claude-sonnet-4-5-20250929")
	t.Setenv("CARECORE_TIMEOUT", "2m")
	t.Setenv("CARECORE_MAX_RETRIES", "not-a-number")
	t.Setenv("CARECORE_LISTEN", ":9999")
	t.Setenv("CARECORE_OPENFDA_CACHE_TTL", "30m")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "good", cfg.Tier)
	assert.Equal(t, "better", cfg.PinnedTier)
	assert.True(t, cfg.ContextCompaction)
	assert.Equal(t, "sk-anthropic", cfg.Anthropic.APIKey)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, 2*time.Minute, cfg.Anthropic.Timeout)
	assert.Equal(t, 2, cfg.Anthropic.MaxRetries, "unparsable values are ignored")
	assert.Equal(t, ":9999", cfg.Server.Listen)
	assert.Equal(t, 30*time.Minute, cfg.OpenFDA.CacheTTL)

	t.Run("carecore key wins", func(t *testing.T) {
		t.Setenv("CARECORE_API_KEY", "sk-carecore")
		cfg := DefaultConfig()
		cfg.LoadFromEnv()
		assert.Equal(t, "sk-carecore", cfg.Anthropic.APIKey)
	})

	t.Run("file key beats ANTHROPIC_API_KEY", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Anthropic.APIKey = "sk-file"
		cfg.LoadFromEnv()
		assert.Equal(t, "sk-file", cfg.Anthropic.APIKey)
	})
}

func TestProviderConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Anthropic.APIKey = "sk-test"
	cfg.Anthropic.BaseURL = "http://localhost:8081"
	cfg.Anthropic.Beta = "prompt-caching-2024-07-31"

	p := cfg.ProviderConfig()
	assert.Equal(t, "anthropic", p.Provider)
	assert.Equal(t, "sk-test", p.APIKey)
	assert.Equal(t, "http://localhost:8081", p.BaseURL)
	assert.Equal(t, 5*time.Minute, p.Timeout)
	assert.Equal(t, "prompt-caching-2024-07-31", p.StringOption("anthropic_beta", ""))
	require.NoError(t, p.Validate())
}

func TestTierStore(t *testing.T) {
	t.Run("initial selection", func(t *testing.T) {
		store := DefaultConfig().WithTier("good").TierStore()
		assert.Equal(t, "good", store.Current().Name)
		store.Set(model.Better)
		assert.Equal(t, "better", store.Current().Name)
	})

	t.Run("pinned", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PinnedTier = "good"
		store := cfg.TierStore()
		store.Set(model.Opus46)
		assert.Equal(t, "good", store.Current().Name)
	})

	t.Run("model override", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Anthropic.Model = model.SonnetModelID
		store := cfg.TierStore()
		assert.Equal(t, model.SonnetModelID, store.Current().ModelID)
		assert.Equal(t, model.OpusModelID, store.Current().IntendedModelID)
	})
}

func TestWatch_AppliesTier(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, `tier = "opus46"`)
	cfg, err := Load(path)
	require.NoError(t, err)
	store := cfg.TierStore()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, ApplyTier(store, nil))
	}()

	// Rewrite until the watcher, which starts asynchronously, sees a write.
	require.Eventually(t, func() bool {
		_ = replaceFile(path, `tier = "good"`)
		return store.Current().Name == "good"
	}, 5*time.Second, 50*time.Millisecond)

	// Invalid files are skipped and the last good tier stays.
	require.NoError(t, replaceFile(path, `tier = "platinum"`))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "good", store.Current().Name)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "carecore.toml"), nil, func(Config) {})
	assert.Error(t, err)
}

func TestApplyTier_IgnoresUnknown(t *testing.T) {
	store := model.NewTierStore()
	ApplyTier(store, nil)(Config{Tier: "platinum"})
	assert.Equal(t, model.DefaultTier.Name, store.Current().Name)
}

func TestApplyTier_Pinned(t *testing.T) {
	store := model.NewTierStore(model.WithPinnedTier(model.Good))
	ApplyTier(store, nil)(Config{Tier: "opus46"})
	assert.Equal(t, "good", store.Current().Name)
}
