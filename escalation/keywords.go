package escalation

import (
	"fmt"
	"strings"
)

// criticalKeywords trigger the fast path. Matching is a case-insensitive
// substring test, checked in list order.
var criticalKeywords = []string{
	"chest pain", "chest pressure", "chest tightness",
	"can't breathe", "cannot breathe", "difficulty breathing", "shortness of breath",
	"worst headache", "sudden headache",
	"passed out", "fainted", "lost consciousness", "blacked out",
	"suicidal", "kill myself", "end my life", "self-harm", "hurt myself",
	"throat swelling", "can't swallow", "face drooping", "arm weakness",
	"severe bleeding", "uncontrolled bleeding",
	"vision loss", "can't see", "sudden blindness",
}

// CheckKeywords runs the fast path alone. It reports false when no
// critical phrase is present.
func CheckKeywords(message string) (Verdict, bool) {
	lower := normalizeApostrophes(strings.ToLower(message))
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return Verdict{
				IsUrgent:          true,
				Severity:          SeverityCritical,
				Reason:            fmt.Sprintf("Message contains critical symptom: '%s'", kw),
				TriggerPhrases:    []string{kw},
				RecommendedAction: EmergencyAction,
				ContextFactors:    []string{},
			}, true
		}
	}
	return Verdict{}, false
}

// normalizeApostrophes folds typographic apostrophes so "can’t breathe"
// typed on a phone keyboard still matches.
func normalizeApostrophes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}
