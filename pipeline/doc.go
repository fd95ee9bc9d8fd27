// Package pipeline runs the Plan-Execute-Verify reasoning flow used for
// high-stakes clinical questions.
//
// Each phase is one model turn and depends on the previous one:
//
//   - Plan: a non-streaming thinking call produces a short bullet plan from
//     the patient's conditions, medications and the question.
//   - Execute: the assembled visit context, the plan, the conversation and
//     the question are streamed with thinking. Chunks reach the caller as
//     they arrive.
//   - Verify: a non-streaming thinking call checks the full answer. A failed
//     check with a correction appends one marked text chunk. Errors in this
//     phase are logged and treated as verified.
//
// A phase chunk precedes each phase. Use ShouldUseDeepReasoning to decide
// whether a question warrants the pipeline.
package pipeline
