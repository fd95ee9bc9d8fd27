package parser

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// fenceRegex matches a markdown code fence, optionally labeled json.
var fenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ParseJSONOutput decodes a model response into T.
//
// A surrounding code fence is stripped before decoding. If the remaining
// text is not valid JSON, the outermost {...} span is tried as well. When
// neither decodes, def is returned unchanged. Decoding starts from the zero
// value of T, so fields absent from the response are zero, not defaulted.
func ParseJSONOutput[T any](text string, def T) T {
	candidate := StripFences(text)
	if out, ok := decode[T](candidate); ok {
		return out
	}
	if obj, ok := outermostObject(candidate); ok && obj != candidate {
		if out, ok := decode[T](obj); ok {
			return out
		}
	}
	return def
}

// StripFences removes a markdown code fence wrapping the text, if present,
// and trims surrounding whitespace.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fenceRegex.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

func decode[T any](s string) (T, bool) {
	var out T
	data := []byte(s)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, false
	}
	return out, true
}
