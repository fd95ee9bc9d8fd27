package tokens

import (
	"math"
	"unicode/utf8"
)

// ContextWindow is the input window of every model on the tier ladder.
const ContextWindow = 200000

// CharsPerToken is the ratio Estimate uses.
const CharsPerToken = 4.0

// Counter measures text in tokens.
type Counter interface {
	Count(text string) int
	FitsInLimit(text string, limit int) bool
}

// EstimatingCounter divides the rune count by a fixed ratio and rounds up.
// A zero ratio means CharsPerToken.
type EstimatingCounter struct {
	CharsPerToken float64
}

func NewEstimatingCounter() *EstimatingCounter {
	return &EstimatingCounter{CharsPerToken: CharsPerToken}
}

func (c *EstimatingCounter) Count(text string) int {
	ratio := c.CharsPerToken
	if ratio <= 0 {
		ratio = CharsPerToken
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / ratio))
}

func (c *EstimatingCounter) FitsInLimit(text string, limit int) bool {
	return c.Count(text) <= limit
}

// Estimate counts text at CharsPerToken.
func Estimate(text string) int {
	return (&EstimatingCounter{}).Count(text)
}
