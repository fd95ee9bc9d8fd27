package effort

import (
	"regexp"

	"github.com/postvisit/carecore/model"
)

// maxPatterns match emergency and self-harm language.
var maxPatterns = compile(
	`chest pain`,
	`chest pressure`,
	`can'?t breathe`,
	`cannot breathe`,
	`difficulty breathing`,
	`shortness of breath`,
	`double dose`,
	`overdose[ds]?`,
	`suicidal`,
	`kill myself`,
	`self[- ]harm`,
	`severe bleeding`,
	`vision loss`,
	`passed out`,
	`fainted`,
	`lost consciousness`,
)

// highPatterns match drug-safety, dosage and symptom-change language.
var highPatterns = compile(
	`interactions?`,
	`contraindications?`,
	`side effects?`,
	`adverse`,
	`allergic`,
	`is it safe`,
	`can i take .+ with`,
	`together with`,
	`combined with`,
	`miss(ed)? (a )?dose`,
	`stop taking`,
	`should i stop`,
	`increase .+ dose`,
	`decrease .+ dose`,
	`dosage`,
	`alternatives?`,
)

// lowPatterns match simple factual lookups.
var lowPatterns = compile(
	`^what is`,
	`^when is`,
	`^where`,
	`^who is`,
	`appointment`,
	`follow-?up date`,
	`next visit`,
	`what time`,
	`phone number`,
	`address`,
	`which doctor`,
	`what day`,
)

// compile anchors every pattern on word boundaries so "addressed" is not
// "address" and "nonallergic" is not "allergic".
func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)\b(?:` + p + `)\b`)
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Classify returns the effort level for a question. Groups are evaluated
// max, then high, then low; anything else is medium.
func Classify(question string) model.Effort {
	switch {
	case matchesAny(maxPatterns, question):
		return model.EffortMax
	case matchesAny(highPatterns, question):
		return model.EffortHigh
	case matchesAny(lowPatterns, question):
		return model.EffortLow
	default:
		return model.EffortMedium
	}
}
