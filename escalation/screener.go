package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/parser"
	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/records"
	"github.com/postvisit/carecore/template"
	"github.com/postvisit/carecore/truncate"
)

// DefaultMaxTokens caps the model fallback's answer.
const DefaultMaxTokens = 512

// Screener evaluates patient messages for urgency.
type Screener struct {
	client    provider.Client
	prompts   template.Loader
	model     string
	maxTokens int
	logger    *slog.Logger
}

// Option configures a Screener.
type Option func(*Screener)

// WithModel sets the model used by the fallback call. Empty keeps the
// tier's model.
func WithModel(modelID string) Option {
	return func(s *Screener) { s.model = modelID }
}

// WithMaxTokens overrides DefaultMaxTokens.
func WithMaxTokens(n int) Option {
	return func(s *Screener) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Screener) { s.logger = l }
}

// NewScreener creates a screener. The escalation-detector prompt is looked
// up from prompts on each model fallback.
func NewScreener(client provider.Client, prompts template.Loader, opts ...Option) *Screener {
	s := &Screener{
		client:    client,
		prompts:   prompts,
		model:     model.SonnetModelID,
		maxTokens: DefaultMaxTokens,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate screens a message. visit may be nil.
//
// A missing escalation-detector prompt is returned as an error; every other
// failure of the model fallback yields a non-urgent verdict.
func (s *Screener) Evaluate(ctx context.Context, message string, visit *records.Visit) (Verdict, error) {
	if v, ok := CheckKeywords(message); ok {
		s.logger.Info("escalation keyword match",
			slog.String("trigger", v.TriggerPhrases[0]),
			slog.String("visit_id", visitID(visit)))
		return v, nil
	}

	system, err := s.prompts.Load(template.PromptEscalation)
	if err != nil {
		return Verdict{}, fmt.Errorf("escalation prompt: %w", err)
	}

	msgs := []provider.Message{provider.UserMessage(buildInput(message, visit))}
	opts := provider.Options{Model: s.model, MaxTokens: s.maxTokens}

	text, err := s.client.Chat(ctx, system, msgs, opts)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		s.logger.Warn("escalation model call failed, treating as non-urgent",
			slog.String("visit_id", visitID(visit)),
			slog.Any("error", err))
		return unavailable(), nil
	}

	v := parser.ParseJSONOutput[*Verdict](text, nil)
	if v == nil {
		s.logger.Warn("escalation verdict unparsable, treating as non-urgent",
			slog.String("visit_id", visitID(visit)),
			slog.String("response", truncate.ToLength(text, 200)))
		return unparsable(), nil
	}
	return normalize(*v), nil
}

// buildInput renders the user turn of the model fallback.
func buildInput(message string, visit *records.Visit) string {
	var sb strings.Builder
	sb.WriteString("Evaluate the following patient message for urgency.\n\n")
	sb.WriteString("Patient Message: ")
	sb.WriteString(message)
	sb.WriteString("\n\n")

	if visit != nil {
		if conditions := visit.ConditionNames(); len(conditions) > 0 {
			sb.WriteString("Known Conditions: ")
			sb.WriteString(strings.Join(conditions, ", "))
			sb.WriteString("\n")
		}
		specialty := visit.Specialty()
		if specialty == "" {
			specialty = "general"
		}
		sb.WriteString("Visit Specialty: ")
		sb.WriteString(specialty)
		sb.WriteString("\n")
	}
	return sb.String()
}

// normalize fills fields a model verdict may leave out.
func normalize(v Verdict) Verdict {
	switch v.Severity {
	case SeverityLow, SeverityModerate, SeverityCritical:
	default:
		if v.IsUrgent {
			v.Severity = SeverityModerate
		} else {
			v.Severity = SeverityLow
		}
	}
	if v.TriggerPhrases == nil {
		v.TriggerPhrases = []string{}
	}
	if v.ContextFactors == nil {
		v.ContextFactors = []string{}
	}
	if v.Severity == SeverityCritical {
		// A critical verdict replaces the answer, so it always carries the
		// fixed safety text whatever the model suggested.
		v.IsUrgent = true
		v.RecommendedAction = EmergencyAction
	}
	if v.RecommendedAction == "" {
		v.RecommendedAction = noAction
	}
	return v
}

func visitID(v *records.Visit) string {
	if v == nil {
		return ""
	}
	return v.ID
}
