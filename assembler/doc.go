// Package assembler builds the grounding conversation for a visit.
//
// An assembled Context is a system prompt plus an ordered list of messages,
// one per layer:
//
//  1. visit data (metadata, note sections, transcript, observations)
//  2. patient record (demographics, conditions, active prescriptions)
//  3. clinical guidelines, when the tier enables them and a source has any
//  4. medications, when the visit has prescriptions
//  5. previous session summaries, when longitudinal memory is enabled
//  6. an assistant acknowledgement
//
// The order is fixed. Conversation history and the live question are
// appended by the caller. Records are never modified, and absent fields
// degrade to placeholders such as "Unknown" instead of failing.
package assembler
