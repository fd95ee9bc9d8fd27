package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postvisit/carecore/escalation"
	"github.com/postvisit/carecore/model"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CARECORE_CONFIG", "")
	t.Setenv("CARECORE_TIER", "")
	t.Setenv("CARECORE_PINNED_TIER", "")
	t.Setenv("CARECORE_MODEL", "")
	t.Setenv("CARECORE_PROVIDER", "")

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		question string
		want     classification
	}{
		{
			question: "When is my next appointment?",
			want:     classification{Effort: model.EffortLow},
		},
		{
			question: "Can I take ibuprofen with propranolol?",
			want:     classification{Effort: model.EffortHigh, DeepReasoning: true},
		},
		{
			question: "I have chest pain since this morning",
			want:     classification{Effort: model.EffortMax, Urgent: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			out, err := run(t, "classify", tt.question)
			require.NoError(t, err)

			var got classification
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_TierBudget(t *testing.T) {
	out, err := run(t, "classify", "--tier", "opus46", "Is it safe to double dose?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tier opus46: max_tokens=32000 thinking_budget=16000\n"), out)

	_, err = run(t, "classify", "--tier", "platinum", "hello")
	assert.ErrorIs(t, err, model.ErrUnknownTier)
}

func TestScreen_Keywords(t *testing.T) {
	out, err := run(t, "screen", "I", "can't", "breathe")
	require.NoError(t, err)

	var v escalation.Verdict
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.True(t, v.IsCritical())
	assert.Equal(t, []string{"can't breathe"}, v.TriggerPhrases)

	out, err = run(t, "screen", "my ankle itches")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.False(t, v.IsUrgent)
	assert.Equal(t, escalation.SeverityLow, v.Severity)
}

func TestScreen_ModelNeedsKey(t *testing.T) {
	t.Setenv("CARECORE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := run(t, "screen", "--model", "my ankle itches")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestScreen_MockProvider(t *testing.T) {
	t.Setenv("CARECORE_PROVIDER", "mock")
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"screen", "--model", "my ankle itches"})
	require.NoError(t, root.Execute())

	var v escalation.Verdict
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.False(t, v.IsUrgent, "canned mock output does not parse as a verdict")
}

func TestTiers(t *testing.T) {
	out, err := run(t, "tiers")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1+len(model.Ladder()))
	assert.True(t, strings.HasPrefix(lines[0], "TIER"))
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if fields[0] == model.DefaultTier.Name {
			assert.Equal(t, "*", fields[len(fields)-1])
		}
	}
}

func TestTiers_BadConfig(t *testing.T) {
	_, err := run(t, "tiers", "--config", filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
