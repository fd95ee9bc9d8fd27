package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/records"
	"github.com/postvisit/carecore/template"
	"github.com/postvisit/carecore/tokens"
	"github.com/postvisit/carecore/truncate"
)

// Breakdown keys, one per layer.
const (
	LayerSystemPrompt  = "system_prompt"
	LayerVisitData     = "visit_data"
	LayerPatientRecord = "patient_record"
	LayerGuidelines    = "guidelines"
	LayerMedications   = "medications"
	LayerCompaction    = "context_compaction"
)

// MaxSummaries bounds the longitudinal memory layer.
const MaxSummaries = 5

// DefaultTranscriptTokens caps the transcript inside the visit layer.
const DefaultTranscriptTokens = 12000

// Acknowledgements closing an assembled context.
const (
	FullAcknowledgement  = "I have loaded the full visit context, patient record, clinical guidelines and medication data. I am ready to assist the patient with questions about this visit."
	QuickAcknowledgement = "I have the visit context. Ready to help the patient."
)

// Context is an assembled grounding conversation.
type Context struct {
	SystemPrompt string             `json:"system_prompt"`
	Messages     []provider.Message `json:"context_messages"`

	// CacheSystem is set for tiers with prompt caching.
	CacheSystem bool `json:"cache_system"`

	// Breakdown holds estimated tokens per layer plus "total".
	Breakdown map[string]int `json:"token_breakdown"`
}

// Assembler builds visit contexts. Safe for concurrent use.
type Assembler struct {
	prompts          template.Loader
	tiers            *model.TierStore
	guidelines       GuidelineSource
	summaries        SummarySource
	safety           SafetySource
	compaction       bool
	transcriptTokens int
	counter          tokens.Counter
	logger           *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithTierStore resolves the tier when none is attached to the context.
func WithTierStore(s *model.TierStore) Option {
	return func(a *Assembler) { a.tiers = s }
}

// WithGuidelines sets the clinical guidelines source.
func WithGuidelines(src GuidelineSource) Option {
	return func(a *Assembler) { a.guidelines = src }
}

// WithSummaries sets the source of prior-session summaries.
func WithSummaries(src SummarySource) Option {
	return func(a *Assembler) { a.summaries = src }
}

// WithSafety adds drug safety text to the medications layer.
func WithSafety(src SafetySource) Option {
	return func(a *Assembler) { a.safety = src }
}

// WithCompaction toggles the longitudinal memory layer. Off by default.
func WithCompaction(enabled bool) Option {
	return func(a *Assembler) { a.compaction = enabled }
}

// WithTranscriptTokens caps the transcript. Zero or less disables the cap.
func WithTranscriptTokens(n int) Option {
	return func(a *Assembler) { a.transcriptTokens = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// New creates an assembler that loads system prompts from prompts.
func New(prompts template.Loader, opts ...Option) *Assembler {
	a := &Assembler{
		prompts:          prompts,
		transcriptTokens: DefaultTranscriptTokens,
		counter:          tokens.NewEstimatingCounter(),
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Assembler) tier(ctx context.Context) model.Tier {
	if a.tiers != nil {
		return a.tiers.Resolve(ctx)
	}
	if t, ok := model.FromContext(ctx); ok {
		return t
	}
	return model.DefaultTier
}

// AssembleForVisit builds the full layered context using the named system
// prompt. A missing prompt is returned as an error; failures of optional
// sources are logged and their layer omitted.
func (a *Assembler) AssembleForVisit(ctx context.Context, visit *records.Visit, promptName string) (*Context, error) {
	if visit == nil {
		return nil, fmt.Errorf("assemble: %w", records.ErrNotFound)
	}
	if promptName == "" {
		promptName = template.PromptQA
	}

	system, err := a.prompts.Load(promptName)
	if err != nil {
		return nil, fmt.Errorf("assemble visit %s: %w", visit.ID, err)
	}

	tier := a.tier(ctx)
	var b tokens.Breakdown
	b.Add(LayerSystemPrompt, a.counter.Count(system))

	var msgs []provider.Message
	add := func(layer, text string) {
		b.Add(layer, a.counter.Count(text))
		msgs = append(msgs, provider.UserMessage(text))
	}

	add(LayerVisitData, formatVisit(visit, a.transcript(visit)))
	add(LayerPatientRecord, formatPatient(visit))

	if tier.GuidelinesEnabled && a.guidelines != nil {
		text, err := a.guidelines.Guidelines(ctx, visit)
		switch {
		case err != nil:
			a.logger.Warn("guidelines unavailable, skipping layer",
				slog.String("visit_id", visit.ID), slog.Any("error", err))
		case strings.TrimSpace(text) != "":
			add(LayerGuidelines, text)
		}
	}

	if text := a.medications(ctx, visit, !model.Opus46.Outranks(tier)); text != "" {
		add(LayerMedications, text)
	}

	if a.compaction {
		if text := a.previousSessions(ctx, visit); text != "" {
			add(LayerCompaction, text)
		}
	}

	msgs = append(msgs, provider.AssistantMessage(FullAcknowledgement))

	a.logger.Debug("context assembled",
		slog.String("visit_id", visit.ID),
		slog.String("tier", tier.Name),
		slog.Int("layers", len(msgs)-1),
		slog.Int("estimated_tokens", b.Total()))

	return &Context{
		SystemPrompt: system,
		Messages:     msgs,
		CacheSystem:  tier.CachingEnabled,
		Breakdown:    b.Map(),
	}, nil
}

// AssembleQuick builds a minimal context from the visit and patient layers
// for fast first responses.
func (a *Assembler) AssembleQuick(ctx context.Context, visit *records.Visit) (*Context, error) {
	if visit == nil {
		return nil, fmt.Errorf("assemble: %w", records.ErrNotFound)
	}
	system, err := a.prompts.Load(template.PromptQAQuick)
	if err != nil {
		return nil, fmt.Errorf("assemble quick %s: %w", visit.ID, err)
	}

	var b tokens.Breakdown
	b.Add(LayerSystemPrompt, a.counter.Count(system))
	visitText := formatVisit(visit, a.transcript(visit))
	patientText := formatPatient(visit)
	b.Add(LayerVisitData, a.counter.Count(visitText))
	b.Add(LayerPatientRecord, a.counter.Count(patientText))

	return &Context{
		SystemPrompt: system,
		Messages: []provider.Message{
			provider.UserMessage(visitText),
			provider.UserMessage(patientText),
			provider.AssistantMessage(QuickAcknowledgement),
		},
		CacheSystem: a.tier(ctx).CachingEnabled,
		Breakdown:   b.Map(),
	}, nil
}

func (a *Assembler) transcript(visit *records.Visit) string {
	text := visit.Transcript.Text()
	if a.transcriptTokens <= 0 || text == "" {
		return text
	}
	capped, truncated := truncate.Middle(text, a.transcriptTokens, a.counter)
	if truncated {
		a.logger.Debug("transcript truncated",
			slog.String("visit_id", visit.ID), slog.Int("max_tokens", a.transcriptTokens))
	}
	return capped
}

func (a *Assembler) medications(ctx context.Context, visit *records.Visit, fullLabels bool) string {
	if len(visit.Prescriptions) == 0 {
		return ""
	}

	parts := []string{"--- MEDICATIONS DATA ---"}
	for _, rx := range visit.Prescriptions {
		med := formatMedication(rx)
		if med == "" {
			continue
		}
		parts = append(parts, med)
		if a.safety == nil || rx.Medication.GenericName == "" {
			continue
		}
		safety, err := a.safety.SafetyContext(ctx, rx.Medication.GenericName, fullLabels)
		if err != nil {
			a.logger.Warn("drug safety lookup failed, skipping",
				slog.String("medication", rx.Medication.GenericName), slog.Any("error", err))
			continue
		}
		if safety != "" {
			parts = append(parts, safety)
		}
	}
	parts = append(parts, "--- END MEDICATIONS DATA ---")
	return strings.Join(parts, "\n")
}

func (a *Assembler) previousSessions(ctx context.Context, visit *records.Visit) string {
	patientID := visit.PatientID()
	if a.summaries == nil || patientID == "" {
		return ""
	}

	summaries, err := a.summaries.Recent(ctx, patientID, MaxSummaries)
	if err != nil {
		a.logger.Warn("session summaries unavailable, skipping layer",
			slog.String("patient_id", patientID), slog.Any("error", err))
		return ""
	}
	if len(summaries) == 0 {
		return ""
	}

	// Sources promise newest first; enforce it and the bound anyway.
	sorted := append([]records.SessionSummary(nil), summaries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > MaxSummaries {
		sorted = sorted[:MaxSummaries]
	}
	return formatSummaries(sorted)
}
