package tools

import (
	"context"
	"encoding/json"
)

// Tool names.
const (
	CheckDrugInteraction = "check_drug_interaction"
	GetDrugSafetyInfo    = "get_drug_safety_info"
	GetLabReferenceRange = "get_lab_reference_range"
)

// Attribution strings carried in results.
const (
	SourceOpenFDA   = "OpenFDA (fda.gov)"
	SourceLabRanges = "Standard clinical reference ranges"
)

// InteractionInput is the input of check_drug_interaction.
type InteractionInput struct {
	Drug1 string `json:"drug1" jsonschema_description:"First drug generic name"`
	Drug2 string `json:"drug2" jsonschema_description:"Second drug generic name"`
}

// SafetyInput is the input of get_drug_safety_info.
type SafetyInput struct {
	DrugName string `json:"drug_name" jsonschema_description:"Drug generic name"`
}

// LabRangeInput is the input of get_lab_reference_range.
type LabRangeInput struct {
	TestName string `json:"test_name" jsonschema_description:"Lab test name (e.g. glucose, HbA1c, cholesterol, TSH, hemoglobin)"`
}

// AdverseEvent is a reaction term with its report count.
type AdverseEvent struct {
	Reaction string `json:"reaction"`
	Count    int    `json:"count"`
}

// AdverseEvents is an adverse event report summary.
type AdverseEvents struct {
	Events []AdverseEvent `json:"events"`
	Total  int            `json:"total"`
}

// Label holds the sections of a drug label used by the tools.
type Label struct {
	GenericName             string `json:"generic_name,omitempty"`
	BrandName               string `json:"brand_name,omitempty"`
	Manufacturer            string `json:"manufacturer,omitempty"`
	Warnings                string `json:"warnings,omitempty"`
	WarningsAndCautions     string `json:"warnings_and_cautions,omitempty"`
	BoxedWarning            string `json:"boxed_warning,omitempty"`
	AdverseReactions        string `json:"adverse_reactions,omitempty"`
	DrugInteractions        string `json:"drug_interactions,omitempty"`
	IndicationsAndUsage     string `json:"indications_and_usage,omitempty"`
	DosageAndAdministration string `json:"dosage_and_administration,omitempty"`
	InformationForPatients  string `json:"information_for_patients,omitempty"`
	Pregnancy               string `json:"pregnancy,omitempty"`
	NursingMothers          string `json:"nursing_mothers,omitempty"`
}

// DrugLookup is the drug-data collaborator behind the drug tools.
type DrugLookup interface {
	// AdverseEvents returns the most reported reactions for a drug.
	AdverseEvents(ctx context.Context, drug string, limit int) (AdverseEvents, error)

	// CoReportedAdverseEvents returns reactions reported with both drugs.
	CoReportedAdverseEvents(ctx context.Context, drug1, drug2 string, limit int) (AdverseEvents, error)

	// Label returns the drug's label, or nil when none exists.
	Label(ctx context.Context, drug string) (*Label, error)
}

// InteractionWarning is a label's interaction section for one drug.
type InteractionWarning struct {
	Drug            string `json:"drug"`
	InteractionInfo string `json:"interaction_info"`
}

// InteractionResult is the output of check_drug_interaction.
type InteractionResult struct {
	Drug1                    string               `json:"drug1"`
	Drug2                    string               `json:"drug2"`
	CoReportedAdverseEvents  []AdverseEvent       `json:"co_reported_adverse_events,omitempty"`
	CoReportedTotal          int                  `json:"co_reported_total"`
	LabelInteractionWarnings []InteractionWarning `json:"label_interaction_warnings,omitempty"`
	Error                    string               `json:"error,omitempty"`
	Source                   string               `json:"source"`
}

// SafetyResult is the output of get_drug_safety_info.
type SafetyResult struct {
	DrugName            string         `json:"drug_name"`
	GenericName         string         `json:"generic_name,omitempty"`
	BrandName           string         `json:"brand_name,omitempty"`
	Manufacturer        string         `json:"manufacturer,omitempty"`
	Indications         string         `json:"indications,omitempty"`
	Warnings            string         `json:"warnings,omitempty"`
	BoxedWarning        string         `json:"boxed_warning,omitempty"`
	AdverseReactions    string         `json:"adverse_reactions,omitempty"`
	DrugInteractions    string         `json:"drug_interactions,omitempty"`
	DosageInfo          string         `json:"dosage_info,omitempty"`
	PatientInfo         string         `json:"patient_info,omitempty"`
	Pregnancy           string         `json:"pregnancy,omitempty"`
	LabelWarning        string         `json:"label_warning,omitempty"`
	TopAdverseEvents    []AdverseEvent `json:"top_adverse_events,omitempty"`
	TotalAdverseReports int            `json:"total_adverse_reports,omitempty"`
	Error               string         `json:"error,omitempty"`
	Source              string         `json:"source"`
}

// LabRangeResult is the output of get_lab_reference_range.
type LabRangeResult struct {
	TestName       string    `json:"test_name"`
	MatchedKey     string    `json:"matched_key,omitempty"`
	Data           *LabRange `json:"data,omitempty"`
	Error          string    `json:"error,omitempty"`
	AvailableTests []string  `json:"available_tests,omitempty"`
	Source         string    `json:"source,omitempty"`
}

// Failure is the shared variant for calls that never reached a tool:
// unknown names and invalid input.
type Failure struct {
	Error string `json:"error"`
}

// Result is the outcome of one tool call. Exactly one variant is set.
type Result struct {
	Tool        string
	Interaction *InteractionResult
	Safety      *SafetyResult
	LabRange    *LabRangeResult
	Failure     *Failure
}

// Err returns the error message carried by the result, if any.
func (r Result) Err() string {
	switch {
	case r.Interaction != nil:
		return r.Interaction.Error
	case r.Safety != nil:
		return r.Safety.Error
	case r.LabRange != nil:
		return r.LabRange.Error
	case r.Failure != nil:
		return r.Failure.Error
	}
	return ""
}

// MarshalJSON encodes the set variant.
func (r Result) MarshalJSON() ([]byte, error) {
	switch {
	case r.Interaction != nil:
		return json.Marshal(r.Interaction)
	case r.Safety != nil:
		return json.Marshal(r.Safety)
	case r.LabRange != nil:
		return json.Marshal(r.LabRange)
	case r.Failure != nil:
		return json.Marshal(r.Failure)
	}
	return json.Marshal(Failure{Error: "empty tool result"})
}

func failed(tool, msg string) Result {
	return Result{Tool: tool, Failure: &Failure{Error: msg}}
}
