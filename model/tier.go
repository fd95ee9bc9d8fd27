package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTier is returned when a tier name does not match the ladder.
var ErrUnknownTier = errors.New("unknown tier")

// Effort is a per-question routing signal. It is derived from the question
// text each turn and never persisted.
type Effort string

// Effort levels in ascending order of allowance.
const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
	EffortMax    Effort = "max"
)

// Efforts lists the effort levels from lowest to highest.
var Efforts = []Effort{EffortLow, EffortMedium, EffortHigh, EffortMax}

// Workload names an AI subsystem with its own thinking allowance.
type Workload string

// Workloads with dedicated thinking budgets.
const (
	WorkloadChat       Workload = "chat"
	WorkloadScribe     Workload = "scribe"
	WorkloadEscalation Workload = "escalation"
	WorkloadReasoning  Workload = "reasoning"
	WorkloadLibrary    Workload = "library"
)

// NonThinkingMaxTokens is the completion ceiling reported for tiers without
// extended thinking, so callers can still issue a plain completion.
const NonThinkingMaxTokens = 4096

// Budget is the token allowance for one completion.
type Budget struct {
	// BudgetTokens is the thinking allowance. Zero disables thinking.
	BudgetTokens int `json:"budget_tokens"`

	// MaxTokens is the total completion ceiling, including thinking.
	MaxTokens int `json:"max_tokens"`
}

// Thinking reports whether the budget enables extended thinking.
func (b Budget) Thinking() bool {
	return b.BudgetTokens > 0
}

// Tier is one rung of the capability ladder. Values are treated as
// immutable; use the With* methods to derive variants.
type Tier struct {
	Name       string `json:"name"`
	Rank       int    `json:"rank"`
	Label      string `json:"label"`
	ShortLabel string `json:"short_label"`

	// ModelID is the model used for this tier's requests.
	ModelID string `json:"model"`

	// IntendedModelID is the ladder's model, regardless of any override.
	IntendedModelID string `json:"intended_model"`

	ThinkingEnabled           bool `json:"thinking_enabled"`
	EscalationThinkingEnabled bool `json:"escalation_thinking_enabled"`
	CachingEnabled            bool `json:"caching_enabled"`
	GuidelinesEnabled         bool `json:"guidelines_enabled"`

	DefaultThinkingBudget int               `json:"default_thinking_budget"`
	ThinkingBudgets       map[Workload]int  `json:"thinking_budgets,omitempty"`
	EffortBudgets         map[Effort]Budget `json:"effort_budgets,omitempty"`
	Features              []string          `json:"features"`
}

// The ladder, lowest rank first.
var (
	Good = Tier{
		Name:            "good",
		Rank:            0,
		Label:           "Standard AI",
		ShortLabel:      "Good",
		ModelID:         SonnetModelID,
		IntendedModelID: SonnetModelID,
		Features: []string{
			"Sonnet model for fast responses",
			"Keyword-based safety detection",
			"Basic visit context",
		},
	}

	Better = Tier{
		Name:                  "better",
		Rank:                  1,
		Label:                 "Enhanced AI",
		ShortLabel:            "Better",
		ModelID:               OpusModelID,
		IntendedModelID:       OpusModelID,
		ThinkingEnabled:       true,
		CachingEnabled:        true,
		DefaultThinkingBudget: 4000,
		ThinkingBudgets: map[Workload]int{
			WorkloadChat:       4000,
			WorkloadScribe:     6000,
			WorkloadEscalation: 0,
			WorkloadReasoning:  6000,
			WorkloadLibrary:    6000,
		},
		EffortBudgets: map[Effort]Budget{
			EffortLow:    {BudgetTokens: 512, MaxTokens: 4096},
			EffortMedium: {BudgetTokens: 2000, MaxTokens: 8000},
			EffortHigh:   {BudgetTokens: 4000, MaxTokens: 16000},
			EffortMax:    {BudgetTokens: 8000, MaxTokens: 16000},
		},
		Features: []string{
			"Opus model for deeper understanding",
			"Extended thinking on chat responses",
			"Prompt caching for speed",
		},
	}

	Opus46 = Tier{
		Name:                      "opus46",
		Rank:                      2,
		Label:                     "Opus 4.6 Clinical Intelligence",
		ShortLabel:                "Opus 4.6",
		ModelID:                   OpusModelID,
		IntendedModelID:           OpusModelID,
		ThinkingEnabled:           true,
		EscalationThinkingEnabled: true,
		CachingEnabled:            true,
		GuidelinesEnabled:         true,
		DefaultThinkingBudget:     8000,
		ThinkingBudgets: map[Workload]int{
			WorkloadChat:       8000,
			WorkloadScribe:     10000,
			WorkloadEscalation: 6000,
			WorkloadReasoning:  10000,
			WorkloadLibrary:    10000,
		},
		EffortBudgets: map[Effort]Budget{
			EffortLow:    {BudgetTokens: 1024, MaxTokens: 4096},
			EffortMedium: {BudgetTokens: 4000, MaxTokens: 8000},
			EffortHigh:   {BudgetTokens: 8000, MaxTokens: 16000},
			EffortMax:    {BudgetTokens: 16000, MaxTokens: 32000},
		},
		Features: []string{
			"Opus with full extended thinking",
			"Multi-step clinical reasoning (Plan-Execute-Verify)",
			"Clinical reasoning on safety decisions",
			"Real clinical guidelines in context",
			"Prompt caching across all calls",
		},
	}
)

// DefaultTier is used when no tier has been selected.
var DefaultTier = Opus46

// Ladder returns the tiers in ascending rank order.
func Ladder() []Tier {
	return []Tier{Good, Better, Opus46}
}

// ParseTier looks up a tier by name (case-insensitive).
func ParseTier(name string) (Tier, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, t := range Ladder() {
		if t.Name == key {
			return t, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: %q", ErrUnknownTier, name)
}

// ThinkingBudget returns the thinking allowance for a workload.
// Tiers with thinking disabled always return 0.
func (t Tier) ThinkingBudget(w Workload) int {
	if !t.ThinkingEnabled {
		return 0
	}
	if b, ok := t.ThinkingBudgets[w]; ok {
		return b
	}
	return t.DefaultThinkingBudget
}

// BudgetForEffort returns the thinking and completion allowance for an
// effort level. Tiers with thinking disabled report BudgetTokens 0 and a
// NonThinkingMaxTokens ceiling; unknown efforts resolve as medium.
func (t Tier) BudgetForEffort(e Effort) Budget {
	if !t.ThinkingEnabled {
		return Budget{BudgetTokens: 0, MaxTokens: NonThinkingMaxTokens}
	}
	if b, ok := t.EffortBudgets[e]; ok {
		return b
	}
	if b, ok := t.EffortBudgets[EffortMedium]; ok {
		return b
	}
	return Budget{BudgetTokens: 0, MaxTokens: NonThinkingMaxTokens}
}

// WithModel returns a copy of the tier that sends requests to modelID.
// An empty modelID, or one equal to the flagship Opus model, leaves the
// ladder's model in place.
func (t Tier) WithModel(modelID string) Tier {
	if modelID == "" || modelID == OpusModelID {
		return t
	}
	t.ModelID = modelID
	return t
}

// Outranks reports whether t sits above other on the ladder.
func (t Tier) Outranks(other Tier) bool {
	return t.Rank > other.Rank
}

// ValidateLadder checks the budget invariants: within a tier allowances never
// decrease from low to max, and for each effort a lower-ranked tier never
// exceeds a higher-ranked one.
func ValidateLadder(tiers []Tier) error {
	for _, t := range tiers {
		prev := Budget{}
		for _, e := range Efforts {
			b := t.BudgetForEffort(e)
			if b.MaxTokens <= 0 {
				return fmt.Errorf("tier %s: effort %s has no max_tokens", t.Name, e)
			}
			if b.BudgetTokens < prev.BudgetTokens || b.MaxTokens < prev.MaxTokens {
				return fmt.Errorf("tier %s: effort %s budget decreases", t.Name, e)
			}
			prev = b
		}
	}
	for i, lo := range tiers {
		for _, hi := range tiers[i+1:] {
			low, high := lo, hi
			if low.Rank > high.Rank {
				low, high = high, low
			}
			for _, e := range Efforts {
				lb, hb := low.BudgetForEffort(e), high.BudgetForEffort(e)
				if lb.BudgetTokens > hb.BudgetTokens || lb.MaxTokens > hb.MaxTokens {
					return fmt.Errorf("tier %s exceeds %s at effort %s", low.Name, high.Name, e)
				}
			}
		}
	}
	return nil
}
