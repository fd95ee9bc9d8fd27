// Package tokens estimates token counts for prompt text.
//
// Estimation uses the rule of thumb that about 4 characters make one token,
// rounded up, which is close enough for context accounting and summary
// sizing without a model-specific tokenizer.
//
//	n := tokens.Estimate("Hello, world!") // 4
//
// Breakdown records per-layer counts in insertion order:
//
//	var b tokens.Breakdown
//	b.Add("system_prompt", tokens.Estimate(system))
//	b.Add("visit_data", tokens.Estimate(visit))
//	b.Total()
package tokens
