package model

import (
	"maps"
	"sync"
)

// Usage is accumulated token consumption.
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	Requests            int `json:"requests"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.Requests += other.Requests
}

// TotalTokens is input plus output, cache traffic excluded.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Pricing is list price in USD per million tokens.
type Pricing struct {
	Input         float64
	Output        float64
	CacheRead     float64
	CacheCreation float64
}

// Cost prices u.
func (p Pricing) Cost(u Usage) float64 {
	const million = 1_000_000
	return (float64(u.InputTokens)*p.Input +
		float64(u.OutputTokens)*p.Output +
		float64(u.CacheReadTokens)*p.CacheRead +
		float64(u.CacheCreationTokens)*p.CacheCreation) / million
}

var listPrices = map[Family]Pricing{
	FamilyOpus:   {Input: 5, Output: 25, CacheRead: 0.5, CacheCreation: 6.25},
	FamilySonnet: {Input: 3, Output: 15, CacheRead: 0.3, CacheCreation: 3.75},
	FamilyHaiku:  {Input: 1, Output: 5, CacheRead: 0.1, CacheCreation: 1.25},
}

// PriceOf returns the list price of a family.
func PriceOf(f Family) (Pricing, bool) {
	p, ok := listPrices[f]
	return p, ok
}

// CostTracker totals usage per model family. Safe for concurrent use; one
// tracker is shared by every request of a process.
type CostTracker struct {
	mu     sync.Mutex
	totals map[Family]Usage
}

// NewCostTracker creates an empty tracker.
func NewCostTracker() *CostTracker {
	return &CostTracker{totals: make(map[Family]Usage)}
}

// Record adds usage for the family of modelID.
func (t *CostTracker) Record(modelID string, u Usage) {
	f := FamilyOf(modelID)

	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.totals[f]
	total.Add(u)
	t.totals[f] = total
}

// Usage returns the total for one family.
func (t *CostTracker) Usage(f Family) Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals[f]
}

// Summary returns a copy of every family's total.
func (t *CostTracker) Summary() map[Family]Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.totals)
}

// EstimatedCost prices the totals at list price. Families without a price
// count as free.
func (t *CostTracker) EstimatedCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total float64
	for f, u := range t.totals {
		if p, ok := listPrices[f]; ok {
			total += p.Cost(u)
		}
	}
	return total
}
