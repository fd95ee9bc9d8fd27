package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

// Prompt names shipped with the binary.
const (
	PromptQA         = "qa-assistant"
	PromptQAQuick    = "qa-assistant-quick"
	PromptEscalation = "escalation-detector"
	PromptEducation  = "patient-education"

	// Rendered with Engine as user messages, not loaded as system prompts.
	PromptReasoningPlan   = "reasoning-plan"
	PromptReasoningVerify = "reasoning-verify"
	PromptSessionSummary  = "session-summary"
	PromptEducationGather = "education-gather"
)

const promptExt = ".md"

//go:embed prompts/*.md
var embedded embed.FS

// Loader looks up system prompts by name.
type Loader interface {
	// Load returns the prompt text. A missing prompt returns an error
	// wrapping ErrNotFound.
	Load(name string) (string, error)
}

// FSLoader loads "<name>.md" files from an fs.FS.
type FSLoader struct {
	fsys fs.FS
}

// NewFSLoader creates a loader over fsys.
func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{fsys: fsys}
}

// Embedded returns a loader over the prompts compiled into the binary.
func Embedded() *FSLoader {
	sub, err := fs.Sub(embedded, "prompts")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	return NewFSLoader(sub)
}

// NewLoader returns the embedded prompts, overridden by files in dir when
// dir is set.
func NewLoader(dir string) Loader {
	if dir == "" {
		return Embedded()
	}
	return Chain{NewFSLoader(os.DirFS(dir)), Embedded()}
}

// Load implements Loader.
func (l *FSLoader) Load(name string) (string, error) {
	file := name + promptExt
	if name == "" || strings.Contains(name, "/") || !fs.ValidPath(file) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	data, err := fs.ReadFile(l.fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, file)
		}
		return "", fmt.Errorf("load prompt %s: %w", file, err)
	}
	return string(data), nil
}

// Exists reports whether a prompt is available.
func (l *FSLoader) Exists(name string) bool {
	_, err := l.Load(name)
	return err == nil
}

// Available lists the prompt names in the loader, sorted.
func (l *FSLoader) Available() ([]string, error) {
	matches, err := fs.Glob(l.fsys, "*"+promptExt)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(path.Base(m), promptExt))
	}
	sort.Strings(names)
	return names, nil
}

// Chain tries each loader in order and returns the first prompt found.
type Chain []Loader

// Load implements Loader.
func (c Chain) Load(name string) (string, error) {
	for _, l := range c {
		text, err := l.Load(name)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}
