// Package carecore is the AI core of a post-visit patient companion.
//
// A patient asks questions about a finished clinical visit; carecore grounds
// every answer in that visit's records and routes it by urgency and effort.
// The packages compose bottom-up and each can be used on its own:
//
//   - model: tier ladder, effort levels, token budgets and the tier store
//   - effort: regex classifier mapping a question to an effort level
//   - escalation: urgency screener (keyword fast path plus model fallback)
//   - assembler: layered visit context with token accounting
//   - provider: streaming LLM client interface, errors and a mock
//   - anthropic: provider.Client over the Messages API
//   - parser: JSON extraction from model output
//   - tools: drug and lab tools for the model, backed by openfda
//   - pipeline: Plan-Execute-Verify deep reasoning
//   - assistant: Q&A and education document front-ends
//   - summary: session summaries and their SQLite store
//   - config, httpapi: settings and the HTTP/SSE transport
//
// # Quick Start
//
// Classifying a question:
//
//	import "github.com/postvisit/carecore/effort"
//	level := effort.Classify("Can I take ibuprofen with my beta blocker?")
//
// Answering with a mock model:
//
//	client := provider.NewMockClient("Take it with food.")
//	qa := assistant.NewQA(client, assembler.New(template.Embedded()), screener)
//	for chunk, err := range qa.Answer(ctx, session, "When do I take it?") {
//		...
//	}
//
// The carecore command (cmd/carecore) wires everything behind HTTP.
package carecore
