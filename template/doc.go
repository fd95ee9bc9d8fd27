// Package template loads named system prompts and renders prompt templates
// with variable substitution.
//
// # Loading prompts
//
// System prompts are markdown files looked up by name. The defaults are
// embedded in the binary; a directory can override any of them:
//
//	loader := template.NewLoader("/etc/carecore/prompts")
//	system, err := loader.Load(template.PromptQA)
//
// A missing prompt is a deployment error. Load returns ErrNotFound and
// callers surface it rather than recovering.
//
// # Placeholders
//
// User-message templates carry {{name}} placeholders filled by Engine:
//
//	out, err := template.NewEngine().Render(tmpl, map[string]any{
//		"question":    "Can I skip a dose?",
//		"medications": []string{"propranolol"},
//	})
//
// Strings are inserted as is, string slices are joined with ", " and other
// values go through fmt. A placeholder with no value renders empty; use
// Engine.Require to reject that instead.
package template
