// Package effort classifies a patient question into an effort level.
//
// The classifier is a pure function over the question text. Pattern groups
// are checked most severe first, so a question that mentions both an
// emergency symptom and a drug interaction resolves to the emergency level:
//
//	effort.Classify("I have chest pain after the new dose")  // model.EffortMax
//	effort.Classify("Is it safe to take this with ibuprofen?") // model.EffortHigh
//	effort.Classify("When is my next appointment?")           // model.EffortLow
//	effort.Classify("Tell me about my visit")                 // model.EffortMedium
//
// The level is recomputed for every turn and never stored.
package effort
