// Package summary turns completed chat sessions into structured summaries
// and stores them for the longitudinal memory layer of later conversations.
//
// Summarizer asks the model for a JSON digest of a session. Sessions with
// fewer than MinMessages messages are skipped. SQLiteStore persists the
// digests and serves them back, newest first, as an
// assembler.SummarySource.
package summary
