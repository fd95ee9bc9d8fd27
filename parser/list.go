package parser

import (
	"regexp"
	"strings"
)

var listItem = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)

// ExtractList returns the bullet (-, *, •) and numbered items of text,
// trimmed, in order. Prose lines are skipped.
func ExtractList(text string) []string {
	matches := listItem.FindAllStringSubmatch(text, -1)
	items := make([]string, 0, len(matches))
	for _, m := range matches {
		if item := strings.TrimSpace(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// outermostObject returns the text between the first '{' and the last '}'.
func outermostObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
