package assembler

import (
	"context"

	"github.com/postvisit/carecore/records"
)

// GuidelineSource returns clinical reference material relevant to a visit.
// An empty string means nothing applies.
type GuidelineSource interface {
	Guidelines(ctx context.Context, visit *records.Visit) (string, error)
}

// SummarySource returns prior-session summaries for a patient, newest first.
type SummarySource interface {
	Recent(ctx context.Context, patientID string, limit int) ([]records.SessionSummary, error)
}

// SafetySource returns drug safety text (adverse events, label warnings)
// for a generic drug name. full requests the extended label sections.
type SafetySource interface {
	SafetyContext(ctx context.Context, genericName string, full bool) (string, error)
}
