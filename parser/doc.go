// Package parser extracts structured content from LLM responses.
//
// ParseJSONOutput is the entry point every structured-output consumer uses.
// It never fails: a response that cannot be decoded yields the caller's
// default value unchanged.
//
//	type verdict struct {
//	    IsUrgent bool   `json:"is_urgent"`
//	    Severity string `json:"severity"`
//	}
//	v := parser.ParseJSONOutput(response, verdict{Severity: "low"})
//
// ExtractList pulls the steps out of a bulleted or numbered plan:
//
//	steps := parser.ExtractList(plan)
package parser
