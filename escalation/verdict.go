package escalation

// Severity grades an escalation verdict.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityCritical Severity = "critical"
)

// Verdict is the urgency assessment of one message. It is produced fresh
// for every message and never cached.
type Verdict struct {
	IsUrgent          bool     `json:"is_urgent"`
	Severity          Severity `json:"severity"`
	Reason            string   `json:"reason"`
	TriggerPhrases    []string `json:"trigger_phrases"`
	RecommendedAction string   `json:"recommended_action"`
	ContextFactors    []string `json:"context_factors"`
}

// IsCritical reports whether the verdict must short-circuit the answer.
func (v Verdict) IsCritical() bool {
	return v.IsUrgent && v.Severity == SeverityCritical
}

// EmergencyAction is the fixed safety message returned for critical
// keyword matches.
const EmergencyAction = "This sounds like it could be urgent. Please contact your doctor immediately or call emergency services (911). Do not wait."

const noAction = "No action needed"

// unparsable is returned when the model's verdict cannot be decoded.
func unparsable() Verdict {
	return Verdict{
		Severity:          SeverityLow,
		Reason:            "Unable to evaluate (parse error)",
		TriggerPhrases:    []string{},
		RecommendedAction: noAction,
		ContextFactors:    []string{},
	}
}

func unavailable() Verdict {
	return Verdict{
		Severity:          SeverityLow,
		Reason:            "Unable to evaluate (model unavailable)",
		TriggerPhrases:    []string{},
		RecommendedAction: noAction,
		ContextFactors:    []string{},
	}
}
