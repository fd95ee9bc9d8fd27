package template

import "errors"

var (
	// ErrEmpty is returned when the template string is empty.
	ErrEmpty = errors.New("template is empty")

	// ErrVariable is returned by Engine.Require for a placeholder with no value.
	ErrVariable = errors.New("template variable missing")

	// ErrNotFound is returned when a named prompt does not exist.
	ErrNotFound = errors.New("prompt not found")
)
