// Package escalation screens patient messages for medical urgency.
//
// Screening is two-stage. A fixed list of critical-symptom phrases is
// checked first; any match returns a critical verdict without contacting
// the model. Otherwise a single low-token model call produces a nuanced
// verdict as JSON. Output that cannot be parsed, and provider failures on
// that call, resolve to a non-urgent verdict and are logged.
//
// Callers must screen before any context assembly, and treat a critical
// verdict as the entire response:
//
//	v, err := screener.Evaluate(ctx, question, visit)
//	if err != nil {
//	    return err
//	}
//	if v.IsCritical() {
//	    return v.RecommendedAction
//	}
package escalation
