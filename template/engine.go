package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Engine fills {{name}} placeholders in prompt templates.
// It holds no state and is safe for concurrent use.
type Engine struct{}

// NewEngine returns an Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Render replaces each placeholder with its value formatted by fmt.
// Missing and nil variables render as empty strings. Substituted values are
// not scanned again, so a value containing braces is inserted verbatim.
func (e *Engine) Render(tmpl string, vars map[string]any) (string, error) {
	if tmpl == "" {
		return "", ErrEmpty
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		return format(vars[name])
	}), nil
}

// Variables lists the placeholder names in tmpl in order of first use.
func (e *Engine) Variables(tmpl string) ([]string, error) {
	if tmpl == "" {
		return nil, ErrEmpty
	}
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names, nil
}

// Require reports the first placeholder in tmpl that vars has no value for.
func (e *Engine) Require(tmpl string, vars map[string]any) error {
	names, err := e.Variables(tmpl)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, ok := vars[name]; !ok {
			return fmt.Errorf("%w: %s", ErrVariable, name)
		}
	}
	return nil
}

func format(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprint(v)
	}
}
