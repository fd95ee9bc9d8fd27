// Package truncate shortens text to character or token limits.
//
// Character limits bound drug-label excerpts handed to the model:
//
//	excerpt := truncate.ToLength(label.Warnings, 600)
//
// Token limits bound long free text such as visit transcripts. Middle keeps
// the opening and the closing, where transcripts carry the chief complaint
// and the plan:
//
//	text, cut := truncate.Middle(transcript, 12000, counter)
package truncate
