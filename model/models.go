package model

import "strings"

// Model identifiers used by the tier ladder.
const (
	OpusModelID   = "claude-opus-4-6"
	SonnetModelID = "claude-sonnet-4-5-20250929"
	HaikuModelID  = "claude-haiku-4-5-20251001"
)

// Family groups model identifiers that share list pricing.
type Family string

// Claude families.
const (
	FamilyOpus   Family = "opus"
	FamilySonnet Family = "sonnet"
	FamilyHaiku  Family = "haiku"
)

var families = []Family{FamilyOpus, FamilySonnet, FamilyHaiku}

// FamilyOf maps a model identifier ("claude-sonnet-4-5-20250929", or a bare
// "sonnet") to its family. Identifiers outside every family come back as is.
func FamilyOf(modelID string) Family {
	lower := strings.ToLower(modelID)
	for _, f := range families {
		if strings.Contains(lower, string(f)) {
			return f
		}
	}
	return Family(modelID)
}
