package openfda

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/postvisit/carecore/truncate"
)

// Label excerpt limits for SafetyContext.
const (
	briefLimit = 500
	fullLimit  = 5000

	safetyEvents = 5
)

// SafetyContext renders adverse events and label warnings for a drug as
// plain text for the medications context layer. full adds the warnings,
// interactions and adverse reaction sections with longer excerpts.
//
// A failing lookup is logged and skipped; an error is returned only when
// both lookups fail.
func (c *Client) SafetyContext(ctx context.Context, genericName string, full bool) (string, error) {
	limit := briefLimit
	if full {
		limit = fullLimit
	}

	var parts []string
	events, evErr := c.AdverseEvents(ctx, genericName, safetyEvents)
	if evErr != nil {
		c.logger.Warn("adverse events lookup failed, skipping",
			slog.String("medication", genericName), slog.Any("error", evErr))
	} else if len(events.Events) > 0 {
		parts = append(parts, fmt.Sprintf("\nFDA Adverse Event Reports for %s:", genericName))
		for _, e := range events.Events {
			parts = append(parts, fmt.Sprintf("- %s: %d reports", e.Reaction, e.Count))
		}
	}

	label, lbErr := c.Label(ctx, genericName)
	if lbErr != nil {
		c.logger.Warn("drug label lookup failed, skipping",
			slog.String("medication", genericName), slog.Any("error", lbErr))
	} else if label != nil {
		add := func(title, text string) {
			if text != "" {
				parts = append(parts, fmt.Sprintf("\n%s for %s: %s", title, genericName, truncate.ToLength(text, limit)))
			}
		}
		add("BOXED WARNING", label.BoxedWarning)
		add("Patient Information", label.InformationForPatients)
		if full {
			add("Warnings & Cautions", label.WarningsAndCautions)
			add("Drug Interactions", label.DrugInteractions)
			add("Adverse Reactions", label.AdverseReactions)
		}
	}

	if evErr != nil && lbErr != nil {
		return "", fmt.Errorf("safety context for %s: %w", genericName, evErr)
	}
	return strings.Join(parts, "\n"), nil
}
