package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLabTable(t *testing.T) {
	table := DefaultLabTable()
	keys := table.Keys()
	assert.Contains(t, keys, "hba1c")
	assert.Contains(t, keys, "potassium")
	assert.IsIncreasing(t, keys)
}

func TestLabTable_Lookup(t *testing.T) {
	table := DefaultLabTable()

	tests := []struct {
		name        string
		query       string
		wantName    string
		wantMatched string
	}{
		{"exact key", "HbA1c", "Hemoglobin A1c (HbA1c)", ""},
		{"normalized key", "Free-T4", "Free Thyroxine (Free T4)", ""},
		{"spaces normalized", "total cholesterol", "Total Cholesterol", ""},
		{"display name contains query", "thyroid stimulating", "Thyroid Stimulating Hormone (TSH)", "tsh"},
		{"query contains display name", "my potassium level", "Potassium", "potassium"},
		{"partial key", "tsh_result", "Thyroid Stimulating Hormone (TSH)", "tsh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, matched, ok := table.Lookup(tt.query)
			require.True(t, ok)
			assert.Equal(t, tt.wantName, r.Name)
			assert.Equal(t, tt.wantMatched, matched)
		})
	}

	_, _, ok := table.Lookup("unobtainium panel")
	assert.False(t, ok)
	_, _, ok = table.Lookup("  ")
	assert.False(t, ok)
}

func TestLabReferenceRange_NotFoundListsKeys(t *testing.T) {
	d := NewDispatcher(newFakeDrugs(), WithLabTable(NewLabTable(map[string]LabRange{
		"sodium": {Name: "Sodium", Unit: "mmol/L", Normal: "135-145"},
	})))

	res := d.LabReferenceRange(LabRangeInput{TestName: "ferritin"})
	require.NotNil(t, res.LabRange)
	assert.Equal(t, errLabNotFound, res.LabRange.Error)
	assert.Equal(t, []string{"sodium"}, res.LabRange.AvailableTests)

	res = d.LabReferenceRange(LabRangeInput{TestName: "Sodium"})
	assert.Equal(t, SourceLabRanges, res.LabRange.Source)
	assert.Equal(t, "135-145", res.LabRange.Data.Normal)
}

func TestParseLabTable_Invalid(t *testing.T) {
	_, err := ParseLabTable([]byte("glucose: [unclosed"))
	assert.Error(t, err)
}
