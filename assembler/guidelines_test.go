package assembler

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postvisit/carecore/records"
)

func guidelineFS() fstest.MapFS {
	return fstest.MapFS{
		"index.yaml": {Data: []byte(`
conditions:
  I50: [heart-failure]
  I10: [hypertension]
medications:
  propranolol: [beta-blocker, propranolol-label]
  carvedilol: [beta-blocker]
`)},
		"heart-failure.md":     {Data: []byte("# Heart failure\nguidance")},
		"hypertension.md":      {Data: []byte("# Hypertension")},
		"beta-blocker.md":      {Data: []byte("# Beta blockers")},
		"propranolol-label.md": {Data: []byte("# Propranolol label")},
	}
}

func TestFSGuidelines_Documents(t *testing.T) {
	g, err := NewFSGuidelines(guidelineFS(), nil)
	require.NoError(t, err)

	visit := &records.Visit{
		Conditions: []records.Condition{{Code: "I50.22"}, {Code: "I10"}, {Code: "E11"}},
		Prescriptions: []records.Prescription{
			{Medication: &records.Medication{GenericName: "Propranolol"}},
			{Medication: &records.Medication{GenericName: "carvedilol"}},
		},
	}
	assert.Equal(t, []string{"heart-failure", "hypertension", "beta-blocker", "propranolol-label"}, g.Documents(visit))
}

func TestFSGuidelines_Guidelines(t *testing.T) {
	fsys := guidelineFS()
	delete(fsys, "hypertension.md")
	g, err := NewFSGuidelines(fsys, nil)
	require.NoError(t, err)

	text, err := g.Guidelines(context.Background(), &records.Visit{
		Conditions: []records.Condition{{Code: "I50.9"}, {Code: "I10"}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "--- CLINICAL GUIDELINES CONTEXT ---"))
	assert.Contains(t, text, "Loaded 1 clinical reference documents")
	assert.Contains(t, text, "# Heart failure")
	assert.True(t, strings.HasSuffix(text, "--- END GUIDELINES ---"))

	text, err = g.Guidelines(context.Background(), &records.Visit{})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestNewFSGuidelines_MissingIndex(t *testing.T) {
	_, err := NewFSGuidelines(fstest.MapFS{}, nil)
	assert.Error(t, err)
}
