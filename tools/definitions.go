package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/postvisit/carecore/provider"
)

var toolSpecs = []struct {
	name        string
	description string
	input       any
}{
	{
		CheckDrugInteraction,
		"Check for known interactions between two medications using FDA adverse event data and drug label warnings. Use when the patient takes multiple drugs.",
		&InteractionInput{},
	},
	{
		GetDrugSafetyInfo,
		"Get comprehensive safety information for a medication including warnings, side effects, boxed warnings, drug interactions, dosage, and patient information from FDA labels.",
		&SafetyInput{},
	},
	{
		GetLabReferenceRange,
		"Get normal reference ranges for a lab test, with interpretation guidance for different levels (normal, borderline, high/low).",
		&LabRangeInput{},
	},
}

// Definitions returns the tool definitions sent to the model. Input schemas
// are reflected from the typed input structs.
func Definitions() []provider.ToolDefinition {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}

	defs := make([]provider.ToolDefinition, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		schema := r.Reflect(spec.input)
		schema.Version = ""
		schema.ID = ""
		data, err := json.Marshal(schema)
		if err != nil {
			// Schemas are reflected from fixed structs.
			panic(fmt.Sprintf("tool %s schema: %v", spec.name, err))
		}
		defs = append(defs, provider.ToolDefinition{
			Name:        spec.name,
			Description: spec.description,
			InputSchema: data,
		})
	}
	return defs
}
