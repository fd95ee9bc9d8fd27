// Package model provides the capability tier ladder, effort budgets, and
// token usage tracking for the orchestration core.
//
// The package implements a tiered selection strategy:
//   - good: Sonnet, no extended thinking, keyword-only safety checks
//   - better: Opus, extended thinking on chat and scribe work, prompt caching
//   - opus46: Opus, full thinking (including escalation), guidelines in context
//
// Budgets are pure functions of (tier, workload) or (tier, effort). The only
// mutable state is the active tier held by a TierStore.
//
// # Tier Selection
//
//	store := model.NewTierStore()
//	tier := store.Resolve(ctx)
//	b := tier.BudgetForEffort(model.EffortHigh) // {BudgetTokens: 8000, MaxTokens: 16000}
//
// A request can pin its tier explicitly:
//
//	ctx = model.NewContext(ctx, model.Good)
//
// # Usage
//
// A CostTracker shared by the provider client totals tokens per model
// family and prices them at list price:
//
//	tracker.Record(tier.ModelID, model.Usage{InputTokens: 1200, OutputTokens: 300, Requests: 1})
//	usd := tracker.EstimatedCost()
package model
