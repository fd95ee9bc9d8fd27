package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/postvisit/carecore/assembler"
	"github.com/postvisit/carecore/effort"
	"github.com/postvisit/carecore/escalation"
	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/pipeline"
	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/records"
	"github.com/postvisit/carecore/template"
)

// Progress messages emitted as status chunks.
const (
	StatusLoading    = "Loading clinical data..."
	StatusGuidelines = "Loading clinical guidelines..."
	StatusDeep       = "Deep clinical reasoning..."
	StatusPreparing  = "Preparing detailed analysis..."
)

// Quick answer limits.
const (
	QuickMaxTokens = 150
	QuickHistory   = 2
)

// ContextAssembler builds grounding conversations. *assembler.Assembler
// satisfies it.
type ContextAssembler interface {
	AssembleForVisit(ctx context.Context, visit *records.Visit, promptName string) (*assembler.Context, error)
	AssembleQuick(ctx context.Context, visit *records.Visit) (*assembler.Context, error)
}

// Screener evaluates a message for urgency. *escalation.Screener
// satisfies it.
type Screener interface {
	Evaluate(ctx context.Context, message string, visit *records.Visit) (escalation.Verdict, error)
}

// Reasoner runs the deep reasoning flow. *pipeline.Pipeline satisfies it.
type Reasoner interface {
	Reason(ctx context.Context, visit *records.Visit, history []provider.Message, question string, assembled *assembler.Context) iter.Seq2[provider.Chunk, error]
}

// QA answers patient questions about a visit.
type QA struct {
	client     provider.Client
	assembler  ContextAssembler
	screener   Screener
	reasoner   Reasoner
	tiers      *model.TierStore
	quickModel string
	logger     *slog.Logger
}

// QAOption configures a QA.
type QAOption func(*QA)

// WithReasoner enables the deep reasoning path.
func WithReasoner(r Reasoner) QAOption {
	return func(q *QA) { q.reasoner = r }
}

// WithTierStore sets where the active tier is read from.
func WithTierStore(s *model.TierStore) QAOption {
	return func(q *QA) { q.tiers = s }
}

// WithQuickModel overrides the model used by QuickAnswer.
func WithQuickModel(modelID string) QAOption {
	return func(q *QA) {
		if modelID != "" {
			q.quickModel = modelID
		}
	}
}

// WithQALogger sets the logger. Defaults to slog.Default().
func WithQALogger(l *slog.Logger) QAOption {
	return func(q *QA) { q.logger = l }
}

// NewQA creates a question-answer assistant.
func NewQA(client provider.Client, asm ContextAssembler, screener Screener, opts ...QAOption) *QA {
	q := &QA{
		client:     client,
		assembler:  asm,
		screener:   screener,
		quickModel: model.HaikuModelID,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// resolveTier returns ctx with the request's tier attached, so every
// component of one answer sees the same tier.
func resolveTier(ctx context.Context, store *model.TierStore) (context.Context, model.Tier) {
	var t model.Tier
	switch {
	case store != nil:
		t = store.Resolve(ctx)
	default:
		var ok bool
		if t, ok = model.FromContext(ctx); !ok {
			t = model.DefaultTier
		}
	}
	return model.NewContext(ctx, t), t
}

// Answer streams the answer to question. The session's messages are used
// as conversation history and must not include question.
//
// The stream starts with an effort chunk. A critical urgency verdict yields
// a single text chunk with the recommended action and ends the stream.
func (q *QA) Answer(ctx context.Context, session *records.Session, question string) iter.Seq2[provider.Chunk, error] {
	return func(yield func(provider.Chunk, error) bool) {
		if session == nil || session.Visit == nil {
			yield(provider.Chunk{}, fmt.Errorf("session visit: %w", records.ErrNotFound))
			return
		}
		visit := session.Visit

		ctx, tier := resolveTier(ctx, q.tiers)
		level := effort.Classify(question)
		if !yield(provider.Chunk{Type: provider.ChunkEffort, Content: string(level)}, nil) {
			return
		}

		verdict, err := q.screener.Evaluate(ctx, question, visit)
		if err != nil {
			yield(provider.Chunk{}, err)
			return
		}
		if verdict.IsCritical() {
			q.logger.Warn("critical message short-circuited",
				slog.String("visit_id", visit.ID),
				slog.Any("trigger_phrases", verdict.TriggerPhrases))
			yield(provider.TextChunk(escalation.EmergencyAction), nil)
			return
		}

		if tier.ThinkingEnabled {
			if !yield(provider.StatusChunk(StatusLoading), nil) {
				return
			}
		}

		if q.useReasoner(tier, level, question) {
			q.reason(ctx, yield, session, question)
			return
		}

		if !yield(provider.StatusChunk(StatusPreparing), nil) {
			return
		}
		assembled, ok := q.assemble(ctx, yield, visit)
		if !ok {
			return
		}

		msgs := slices.Concat(assembled.Messages, history(session, 0))
		msgs = append(msgs, provider.UserMessage(question))
		if verdict.IsUrgent {
			msgs = append(msgs, provider.UserMessage(urgencyNote(verdict)))
		}

		var stream iter.Seq2[provider.Chunk, error]
		if tier.ThinkingEnabled {
			budget := tier.BudgetForEffort(level)
			stream = q.client.StreamWithThinking(ctx, assembled.SystemPrompt, msgs, provider.Options{
				Model:        tier.ModelID,
				MaxTokens:    budget.MaxTokens,
				BudgetTokens: budget.BudgetTokens,
				CacheSystem:  assembled.CacheSystem,
			})
		} else {
			stream = q.client.Stream(ctx, assembled.SystemPrompt, msgs, provider.Options{
				Model:       tier.ModelID,
				MaxTokens:   model.NonThinkingMaxTokens,
				CacheSystem: assembled.CacheSystem,
			})
		}
		for chunk, err := range stream {
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// useReasoner reports whether a question goes through the pipeline:
// thinking tiers only, for high or max effort or a deep reasoning trigger.
func (q *QA) useReasoner(tier model.Tier, level model.Effort, question string) bool {
	if q.reasoner == nil || !tier.ThinkingEnabled {
		return false
	}
	if level == model.EffortHigh || level == model.EffortMax {
		return true
	}
	return pipeline.ShouldUseDeepReasoning(question)
}

func (q *QA) reason(ctx context.Context, yield func(provider.Chunk, error) bool, session *records.Session, question string) {
	if !yield(provider.StatusChunk(StatusGuidelines), nil) {
		return
	}
	assembled, ok := q.assemble(ctx, yield, session.Visit)
	if !ok {
		return
	}
	if !yield(provider.StatusChunk(StatusDeep), nil) {
		return
	}
	for chunk, err := range q.reasoner.Reason(ctx, session.Visit, history(session, 0), question, assembled) {
		if !yield(chunk, err) || err != nil {
			return
		}
	}
}

// assemble builds the qa-assistant context and reports its size. ok is
// false when the stream must end.
func (q *QA) assemble(ctx context.Context, yield func(provider.Chunk, error) bool, visit *records.Visit) (*assembler.Context, bool) {
	assembled, err := q.assembler.AssembleForVisit(ctx, visit, template.PromptQA)
	if err != nil {
		yield(provider.Chunk{}, err)
		return nil, false
	}
	if len(assembled.Breakdown) > 0 {
		b, err := json.Marshal(assembled.Breakdown)
		if err == nil && !yield(provider.Chunk{Type: provider.ChunkContextTokens, Content: string(b)}, nil) {
			return nil, false
		}
	}
	return assembled, true
}

func urgencyNote(v escalation.Verdict) string {
	return fmt.Sprintf("[SYSTEM NOTE: Urgency detected - severity: %s. Reason: %s. Address this concern appropriately in your response.]",
		v.Severity, v.Reason)
}

// QuickAnswer streams a short preliminary answer from the quick context and
// the last two messages of the session. Chunks have type quick.
func (q *QA) QuickAnswer(ctx context.Context, session *records.Session, question string) iter.Seq2[provider.Chunk, error] {
	return func(yield func(provider.Chunk, error) bool) {
		if session == nil || session.Visit == nil {
			yield(provider.Chunk{}, fmt.Errorf("session visit: %w", records.ErrNotFound))
			return
		}
		ctx, _ := resolveTier(ctx, q.tiers)
		assembled, err := q.assembler.AssembleQuick(ctx, session.Visit)
		if err != nil {
			yield(provider.Chunk{}, err)
			return
		}

		msgs := slices.Concat(assembled.Messages, history(session, QuickHistory))
		msgs = append(msgs, provider.UserMessage(question))

		opts := provider.Options{Model: q.quickModel, MaxTokens: QuickMaxTokens}
		for chunk, err := range q.client.Stream(ctx, assembled.SystemPrompt, msgs, opts) {
			if err != nil {
				yield(provider.Chunk{}, err)
				return
			}
			if chunk.Type != provider.ChunkText {
				continue
			}
			if !yield(provider.Chunk{Type: provider.ChunkQuick, Content: chunk.Content}, nil) {
				return
			}
		}
	}
}
