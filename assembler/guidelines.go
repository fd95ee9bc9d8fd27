package assembler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/postvisit/carecore/records"
)

// GuidelineIndex maps visit records to guideline documents.
type GuidelineIndex struct {
	// Conditions maps ICD-10 codes to documents. Codes also match by
	// prefix, so I50.22 falls back to I50.2 and then I50.
	Conditions map[string][]string `yaml:"conditions"`

	// Medications maps lowercase generic drug names to documents.
	Medications map[string][]string `yaml:"medications"`
}

// FSGuidelines serves guideline documents from an fs.FS laid out as an
// index.yaml plus one Markdown file per document.
type FSGuidelines struct {
	fsys   fs.FS
	index  GuidelineIndex
	logger *slog.Logger
}

// NewFSGuidelines reads index.yaml from fsys.
func NewFSGuidelines(fsys fs.FS, logger *slog.Logger) (*FSGuidelines, error) {
	data, err := fs.ReadFile(fsys, "index.yaml")
	if err != nil {
		return nil, fmt.Errorf("read guideline index: %w", err)
	}
	var idx GuidelineIndex
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse guideline index: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FSGuidelines{fsys: fsys, index: idx, logger: logger}, nil
}

// Documents resolves the document names relevant to a visit, conditions
// first, without duplicates.
func (g *FSGuidelines) Documents(visit *records.Visit) []string {
	var docs []string
	seen := make(map[string]bool)
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				docs = append(docs, n)
			}
		}
	}

	for _, c := range visit.Conditions {
		for code := c.Code; len(code) > 2; code = code[:len(code)-1] {
			if names, ok := g.index.Conditions[code]; ok {
				add(names)
				break
			}
		}
	}
	for _, name := range visit.MedicationNames() {
		add(g.index.Medications[strings.ToLower(strings.TrimSpace(name))])
	}
	return docs
}

// Guidelines implements GuidelineSource.
func (g *FSGuidelines) Guidelines(_ context.Context, visit *records.Visit) (string, error) {
	var parts []string
	for _, doc := range g.Documents(visit) {
		data, err := fs.ReadFile(g.fsys, path.Clean(doc)+".md")
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				g.logger.Warn("guideline document not found", slog.String("document", doc))
				continue
			}
			return "", fmt.Errorf("read guideline %s: %w", doc, err)
		}
		parts = append(parts, strings.TrimSpace(string(data)))
	}
	if len(parts) == 0 {
		return "", nil
	}

	out := []string{
		"--- CLINICAL GUIDELINES CONTEXT ---",
		fmt.Sprintf("Source Attribution: Loaded %d clinical reference documents from open-access or public domain sources.", len(parts)),
	}
	out = append(out, parts...)
	out = append(out, "--- END GUIDELINES ---")
	return strings.Join(out, "\n\n"), nil
}
