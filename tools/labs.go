package tools

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed labranges.yaml
var labRangesYAML []byte

// LabRange is one entry of the lab reference table.
type LabRange struct {
	Name           string            `yaml:"name" json:"name"`
	Unit           string            `yaml:"unit" json:"unit"`
	Normal         string            `yaml:"normal" json:"normal"`
	Interpretation map[string]string `yaml:"interpretation" json:"interpretation,omitempty"`
	Notes          string            `yaml:"notes" json:"notes,omitempty"`
}

// LabTable is a lab reference table keyed by normalized test name.
// Lookups scan keys in sorted order, so the first match is deterministic.
type LabTable struct {
	ranges map[string]LabRange
	keys   []string
}

// NewLabTable builds a table from entries.
func NewLabTable(ranges map[string]LabRange) *LabTable {
	keys := make([]string, 0, len(ranges))
	for k := range ranges {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &LabTable{ranges: ranges, keys: keys}
}

// ParseLabTable decodes a YAML lab table.
func ParseLabTable(data []byte) (*LabTable, error) {
	var ranges map[string]LabRange
	if err := yaml.Unmarshal(data, &ranges); err != nil {
		return nil, fmt.Errorf("parse lab table: %w", err)
	}
	return NewLabTable(ranges), nil
}

// DefaultLabTable returns the table compiled into the binary.
func DefaultLabTable() *LabTable {
	t, err := ParseLabTable(labRangesYAML)
	if err != nil {
		// The embedded file is covered by tests.
		panic(err)
	}
	return t
}

// Keys lists the table keys, sorted.
func (t *LabTable) Keys() []string {
	return append([]string(nil), t.keys...)
}

// NormalizeKey lowercases a test name and joins words with underscores.
func NormalizeKey(name string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(name)))
}

// Lookup finds a test in three stages: exact normalized key, display name
// containment in either direction, then key containment in either
// direction. matched is the key for the fuzzy stages and "" for an exact
// hit.
func (t *LabTable) Lookup(testName string) (r LabRange, matched string, ok bool) {
	key := NormalizeKey(testName)
	if key == "" {
		return LabRange{}, "", false
	}
	if r, ok := t.ranges[key]; ok {
		return r, "", true
	}

	lower := strings.ToLower(strings.TrimSpace(testName))
	for _, k := range t.keys {
		name := strings.ToLower(t.ranges[k].Name)
		if name == "" {
			continue
		}
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return t.ranges[k], k, true
		}
	}

	for _, k := range t.keys {
		if strings.Contains(k, key) || strings.Contains(key, k) {
			return t.ranges[k], k, true
		}
	}
	return LabRange{}, "", false
}
