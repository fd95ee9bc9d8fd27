// Package assistant holds the conversational front-ends: the visit
// question-answer assistant and the patient education generator.
//
// Both return lazy chunk streams. Every answer starts with cheap work
// (effort classification, urgency screening) and only then assembles
// context and calls the model. A critical screening verdict ends the
// answer with the fixed emergency message and no model call.
package assistant
