package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/parser"
	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/records"
	"github.com/postvisit/carecore/template"
	"github.com/postvisit/carecore/tokens"
	"github.com/postvisit/carecore/truncate"
)

// MinMessages is the smallest session worth summarizing.
const MinMessages = 5

// Model limits for the summary call.
const (
	MaxTokens    = 4000
	BudgetTokens = 2000
)

const (
	systemPrompt  = "You are a clinical summarization assistant. Extract structured information from patient chat sessions."
	unknownReason = "Not specified"
	previewLength = 200
)

// ErrNoSession is returned when Summarize is called without a session.
var ErrNoSession = errors.New("summary: no session")

// Store persists session summaries.
type Store interface {
	Save(ctx context.Context, s *records.SessionSummary) error
}

// Summarizer produces session summaries. Safe for concurrent use.
type Summarizer struct {
	client  provider.Client
	prompts template.Loader
	engine  *template.Engine
	store   Store
	tiers   *model.TierStore
	counter tokens.Counter
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithTierStore sets where the model tier is read from.
func WithTierStore(s *model.TierStore) Option {
	return func(sm *Summarizer) { sm.tiers = s }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(sm *Summarizer) { sm.logger = l }
}

// NewSummarizer creates a summarizer. store may be nil, in which case
// summaries are returned but not persisted.
func NewSummarizer(client provider.Client, prompts template.Loader, store Store, opts ...Option) *Summarizer {
	s := &Summarizer{
		client:  client,
		prompts: prompts,
		engine:  template.NewEngine(),
		store:   store,
		counter: tokens.NewEstimatingCounter(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// summaryJSON is the shape the model is asked to return.
type summaryJSON struct {
	SummaryText      string   `json:"summary_text"`
	KeyQuestions     []string `json:"key_questions"`
	ConcernsRaised   []string `json:"concerns_raised"`
	FollowupItems    []string `json:"followup_items"`
	EmotionalContext string   `json:"emotional_context"`
}

// Summarize digests session and saves the result.
//
// It returns nil, nil when the session is too short, when the model call
// fails, or when the answer has no summary text. A missing prompt and store
// failures are returned as errors.
func (s *Summarizer) Summarize(ctx context.Context, session *records.Session) (*records.SessionSummary, error) {
	if session == nil {
		return nil, ErrNoSession
	}
	if len(session.Messages) < MinMessages {
		return nil, nil
	}
	log := s.logger.With(slog.String("session_id", session.ID))

	tmpl, err := s.prompts.Load(template.PromptSessionSummary)
	if err != nil {
		return nil, err
	}
	prompt, err := s.engine.Render(tmpl, map[string]any{
		"visit_reason": visitReason(session.Visit),
		"transcript":   formatMessages(session.Messages),
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", template.PromptSessionSummary, err)
	}

	tier := model.DefaultTier
	switch {
	case s.tiers != nil:
		tier = s.tiers.Resolve(ctx)
	default:
		if t, ok := model.FromContext(ctx); ok {
			tier = t
		}
	}

	res, err := s.client.ChatWithThinking(ctx, systemPrompt,
		[]provider.Message{provider.UserMessage(prompt)},
		provider.Options{
			Model:        tier.ModelID,
			MaxTokens:    MaxTokens,
			BudgetTokens: BudgetTokens,
		})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Error("session summarization failed", slog.Any("error", err))
		return nil, nil
	}

	parsed := parser.ParseJSONOutput(res.Text, summaryJSON{})
	if strings.TrimSpace(parsed.SummaryText) == "" {
		log.Warn("session summary is not valid JSON",
			slog.String("response_preview", truncate.ToLength(res.Text, previewLength)))
		return nil, nil
	}

	summary := &records.SessionSummary{
		ID:               uuid.NewString(),
		PatientID:        session.Visit.PatientID(),
		VisitID:          sessionVisitID(session),
		SessionID:        session.ID,
		SummaryText:      parsed.SummaryText,
		KeyQuestions:     orEmpty(parsed.KeyQuestions),
		ConcernsRaised:   orEmpty(parsed.ConcernsRaised),
		FollowupItems:    orEmpty(parsed.FollowupItems),
		EmotionalContext: parsed.EmotionalContext,
		TokenCount:       s.counter.Count(parsed.SummaryText),
		CreatedAt:        s.now().UTC(),
	}

	if s.store != nil {
		if err := s.store.Save(ctx, summary); err != nil {
			return nil, fmt.Errorf("save summary for session %s: %w", session.ID, err)
		}
	}
	log.Info("session summarized",
		slog.String("summary_id", summary.ID),
		slog.Int("token_count", summary.TokenCount))
	return summary, nil
}

func visitReason(v *records.Visit) string {
	if v == nil || strings.TrimSpace(v.Reason) == "" {
		return unknownReason
	}
	return v.Reason
}

func sessionVisitID(s *records.Session) string {
	if s.Visit != nil {
		return s.Visit.ID
	}
	return s.VisitID
}

// formatMessages renders the session oldest first, one "Patient:" or "AI:"
// line per message.
func formatMessages(msgs []records.ChatMessage) string {
	sorted := slices.Clone(msgs)
	slices.SortStableFunc(sorted, func(a, b records.ChatMessage) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	lines := make([]string, len(sorted))
	for i, m := range sorted {
		role := "AI"
		if m.Role == records.RoleUser {
			role = "Patient"
		}
		lines[i] = role + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
