package pipeline

import "strings"

// deepReasoningTriggers are matched as lowercase substrings. The list is
// kept separate from the effort and escalation vocabularies.
var deepReasoningTriggers = []string{
	// drug safety
	"side effect", "adverse", "interaction", "contraindication", "allergic",
	"overdose", "miss a dose", "missed dose", "double dose", "too much",
	// dosage
	"dosage", "dose", "how much", "how many", "increase", "decrease", "adjust",
	"when to take", "timing", "with food", "empty stomach",
	// symptom combinations
	"new symptom", "getting worse", "not improving", "combined with",
	"along with", "at the same time", "together with",
	// clinical reasoning
	"why did", "why was", "what if", "is it safe", "can i", "should i",
	"alternative", "other option", "stop taking", "quit",
}

// ShouldUseDeepReasoning reports whether question matches a deep reasoning
// trigger.
func ShouldUseDeepReasoning(question string) bool {
	lower := strings.ToLower(question)
	for _, trigger := range deepReasoningTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}
