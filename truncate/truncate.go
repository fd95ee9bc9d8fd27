package truncate

import (
	"sort"
	"unicode/utf8"

	"github.com/postvisit/carecore/tokens"
)

// Marker replaces the text removed by Middle.
const Marker = "\n...[content truncated]...\n"

// Ellipsis ends text cut by End and ToLength.
const Ellipsis = "..."

// Middle fits text into maxTokens by removing its middle, keeping the
// opening and the closing about evenly. counter may be nil.
func Middle(text string, maxTokens int, counter tokens.Counter) (string, bool) {
	counter = orDefault(counter)
	if counter.FitsInLimit(text, maxTokens) {
		return text, false
	}
	budget := maxTokens - counter.Count(Marker)
	if budget <= 0 {
		return Marker, true
	}

	runes := []rune(text)
	head := longestPrefix(runes, budget/2, counter)
	tail := longestSuffix(runes[head:], budget-counter.Count(string(runes[:head])), counter)
	return string(runes[:head]) + Marker + string(runes[len(runes)-tail:]), true
}

// End fits text into maxTokens by cutting its end and appending Ellipsis.
// counter may be nil.
func End(text string, maxTokens int, counter tokens.Counter) (string, bool) {
	counter = orDefault(counter)
	if counter.FitsInLimit(text, maxTokens) {
		return text, false
	}
	budget := maxTokens - counter.Count(Ellipsis)
	if budget <= 0 {
		return Ellipsis, true
	}
	runes := []rune(text)
	return string(runes[:longestPrefix(runes, budget, counter)]) + Ellipsis, true
}

// ToLength cuts text to maxLen runes, the last three being Ellipsis when
// there is room for them.
func ToLength(text string, maxLen int) string {
	switch {
	case maxLen <= 0:
		return ""
	case utf8.RuneCountInString(text) <= maxLen:
		return text
	}
	runes := []rune(text)
	if maxLen <= len(Ellipsis) {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-len(Ellipsis)]) + Ellipsis
}

func orDefault(c tokens.Counter) tokens.Counter {
	if c == nil {
		return tokens.NewEstimatingCounter()
	}
	return c
}

// longestPrefix returns how many leading runes fit in budget.
func longestPrefix(runes []rune, budget int, counter tokens.Counter) int {
	return sort.Search(len(runes)+1, func(n int) bool {
		return !counter.FitsInLimit(string(runes[:n]), budget)
	}) - 1
}

// longestSuffix returns how many trailing runes fit in budget.
func longestSuffix(runes []rune, budget int, counter tokens.Counter) int {
	return sort.Search(len(runes)+1, func(n int) bool {
		return !counter.FitsInLimit(string(runes[len(runes)-n:]), budget)
	}) - 1
}
