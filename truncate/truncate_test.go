package truncate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postvisit/carecore/tokens"
)

func TestToLength(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{"fits", "short", 10, "short"},
		{"exact", "12345", 5, "12345"},
		{"cut", "Take with food to avoid stomach upset", 12, "Take with..."},
		{"no room for ellipsis", "abcdef", 3, "abc"},
		{"zero", "abc", 0, ""},
		{"runes not bytes", "ąęółżźćń", 5, "ąę..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToLength(tt.text, tt.maxLen))
		})
	}
}

func TestEnd(t *testing.T) {
	got, cut := End("small text", 100, nil)
	assert.False(t, cut)
	assert.Equal(t, "small text", got)

	got, cut = End(strings.Repeat("word ", 200), 50, nil)
	require.True(t, cut)
	assert.True(t, strings.HasSuffix(got, Ellipsis))
	assert.LessOrEqual(t, tokens.Estimate(got), 50)
	assert.Greater(t, tokens.Estimate(got), 45, "uses most of the budget")
}

func TestMiddle(t *testing.T) {
	text := "CHIEF COMPLAINT " + strings.Repeat("filler ", 500) + " PLAN FOLLOW-UP"

	got, cut := Middle(text, 60, nil)

	require.True(t, cut)
	assert.True(t, strings.HasPrefix(got, "CHIEF COMPLAINT"))
	assert.True(t, strings.HasSuffix(got, "PLAN FOLLOW-UP"))
	assert.Contains(t, got, "[content truncated]")
	assert.LessOrEqual(t, tokens.Estimate(got), 60)
}

func TestMiddle_CustomCounter(t *testing.T) {
	words := &tokens.EstimatingCounter{CharsPerToken: 1}
	got, cut := Middle(strings.Repeat("a", 100), 40, words)

	require.True(t, cut)
	assert.LessOrEqual(t, words.Count(got), 40)
}

func TestMiddle_BudgetSmallerThanMarker(t *testing.T) {
	got, cut := Middle(strings.Repeat("x", 100), 2, nil)
	assert.True(t, cut)
	assert.Equal(t, Marker, got)
}
