package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/postvisit/carecore/assembler"
	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/parser"
	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/records"
	"github.com/postvisit/carecore/template"
)

// Phase names carried by phase chunks.
const (
	PhasePlanning  = "planning"
	PhaseReasoning = "reasoning"
	PhaseVerifying = "verifying"
)

// Token limits per phase. Plan and verify thinking budgets are the tier's
// chat budget capped at PlanBudgetCap and VerifyBudgetCap.
const (
	PlanMaxTokens    = 8000
	PlanBudgetCap    = 6000
	ExecuteMaxTokens = 16000
	VerifyMaxTokens  = 8000
	VerifyBudgetCap  = 4000
)

// CorrectionPrefix marks the amendment appended after a failed verification.
const CorrectionPrefix = "\n\n---\n*Correction after guideline verification:* "

const (
	planSystem   = "You are a clinical reasoning planner for a post-visit patient assistant."
	verifySystem = "You are a clinical accuracy verifier for a patient-facing AI system. Be strict about safety."
	planAck      = "I have reviewed the reasoning plan and will follow it to provide a thorough, evidence-based answer."
	noneListed   = "None listed"
)

// ErrNoContext is returned when Reason has neither an assembled context nor
// an assembler to build one.
var ErrNoContext = errors.New("pipeline: no visit context")

// ContextAssembler builds the grounding conversation for the execute phase.
// *assembler.Assembler satisfies it.
type ContextAssembler interface {
	AssembleForVisit(ctx context.Context, visit *records.Visit, promptName string) (*assembler.Context, error)
}

// Plan is the outcome of the planning phase.
type Plan struct {
	Text     string   `json:"text"`
	Thinking string   `json:"thinking"`
	Steps    []string `json:"steps,omitempty"`
}

// Verification is the outcome of the verify phase.
type Verification struct {
	IsVerified bool     `json:"is_verified"`
	Concerns   []string `json:"concerns"`
	Correction *string  `json:"correction"`
}

// Run holds the state of one Reason call.
type Run struct {
	ID           string        `json:"id"`
	VisitID      string        `json:"visit_id"`
	Tier         string        `json:"tier"`
	Plan         Plan          `json:"plan"`
	ResponseText string        `json:"response_text"`
	Verification Verification  `json:"verification"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Corrected reports whether the run appended a correction.
func (r *Run) Corrected() bool {
	return !r.Verification.IsVerified && r.Verification.Correction != nil && *r.Verification.Correction != ""
}

// Pipeline runs Plan-Execute-Verify. Safe for concurrent use.
type Pipeline struct {
	client    provider.Client
	prompts   template.Loader
	engine    *template.Engine
	assembler ContextAssembler
	tiers     *model.TierStore
	onDone    func(Run)
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAssembler builds the execute context when Reason is not given one.
func WithAssembler(a ContextAssembler) Option {
	return func(p *Pipeline) { p.assembler = a }
}

// WithTierStore resolves the tier when none is attached to the context.
func WithTierStore(s *model.TierStore) Option {
	return func(p *Pipeline) { p.tiers = s }
}

// WithRunHook is called with the finished run after the last chunk.
// Runs abandoned by the consumer are not reported.
func WithRunHook(fn func(Run)) Option {
	return func(p *Pipeline) { p.onDone = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline. Plan and verify prompts are loaded from prompts
// and rendered on every run.
func New(client provider.Client, prompts template.Loader, opts ...Option) *Pipeline {
	p := &Pipeline{
		client:  client,
		prompts: prompts,
		engine:  template.NewEngine(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) tier(ctx context.Context) model.Tier {
	if p.tiers != nil {
		return p.tiers.Resolve(ctx)
	}
	if t, ok := model.FromContext(ctx); ok {
		return t
	}
	return model.DefaultTier
}

// Reason streams the three phases for question. history is the prior
// conversation, oldest first. assembled may be nil, in which case the
// qa-assistant context is built with the configured assembler.
//
// Plan and execute failures end the stream with an error. Verify failures
// do not.
func (p *Pipeline) Reason(ctx context.Context, visit *records.Visit, history []provider.Message, question string, assembled *assembler.Context) iter.Seq2[provider.Chunk, error] {
	return func(yield func(provider.Chunk, error) bool) {
		tier := p.tier(ctx)
		run := Run{ID: uuid.NewString(), VisitID: visitID(visit), Tier: tier.Name}
		start := time.Now()
		log := p.logger.With(slog.String("run_id", run.ID), slog.String("visit_id", run.VisitID))

		log.Info("reasoning pipeline started",
			slog.String("tier", tier.Name),
			slog.Int("question_length", len(question)))

		if !yield(provider.PhaseChunk(PhasePlanning), nil) {
			return
		}
		plan, err := p.plan(ctx, visit, question, tier)
		if err != nil {
			yield(provider.Chunk{}, err)
			return
		}
		run.Plan = plan
		log.Info("reasoning plan completed",
			slog.Int("plan_length", len(plan.Text)),
			slog.Int("thinking_length", len(plan.Thinking)),
			slog.Int("steps", len(plan.Steps)))

		if plan.Thinking != "" {
			if !yield(provider.ThinkingChunk(plan.Thinking), nil) {
				return
			}
		}

		if !yield(provider.PhaseChunk(PhaseReasoning), nil) {
			return
		}
		if assembled == nil {
			if p.assembler == nil {
				yield(provider.Chunk{}, ErrNoContext)
				return
			}
			assembled, err = p.assembler.AssembleForVisit(ctx, visit, template.PromptQA)
			if err != nil {
				yield(provider.Chunk{}, err)
				return
			}
		}

		msgs := executeMessages(assembled, plan, history, question)
		opts := provider.Options{
			Model:        tier.ModelID,
			MaxTokens:    ExecuteMaxTokens,
			BudgetTokens: tier.ThinkingBudget(model.WorkloadChat),
			CacheSystem:  assembled.CacheSystem,
		}
		var response strings.Builder
		for chunk, err := range p.client.StreamWithThinking(ctx, assembled.SystemPrompt, msgs, opts) {
			if err != nil {
				yield(provider.Chunk{}, err)
				return
			}
			if chunk.Type == provider.ChunkText {
				response.WriteString(chunk.Content)
			}
			if !yield(chunk, nil) {
				return
			}
		}
		run.ResponseText = response.String()

		if !yield(provider.PhaseChunk(PhaseVerifying), nil) {
			return
		}
		run.Verification = p.verify(ctx, log, question, run.ResponseText, tier)
		if err := ctx.Err(); err != nil {
			yield(provider.Chunk{}, err)
			return
		}
		log.Info("reasoning verify completed",
			slog.Bool("is_verified", run.Verification.IsVerified),
			slog.Any("concerns", run.Verification.Concerns))

		if run.Corrected() {
			if !yield(provider.TextChunk(CorrectionPrefix+*run.Verification.Correction), nil) {
				return
			}
		}

		run.Elapsed = time.Since(start)
		log.Info("reasoning pipeline completed",
			slog.Duration("elapsed", run.Elapsed),
			slog.Int("response_length", len(run.ResponseText)),
			slog.Int("phases_completed", 3))
		if p.onDone != nil {
			p.onDone(run)
		}
	}
}

func (p *Pipeline) render(name string, vars map[string]any) (string, error) {
	tmpl, err := p.prompts.Load(name)
	if err != nil {
		return "", err
	}
	out, err := p.engine.Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return out, nil
}

func (p *Pipeline) plan(ctx context.Context, visit *records.Visit, question string, tier model.Tier) (Plan, error) {
	prompt, err := p.render(template.PromptReasoningPlan, map[string]any{
		"conditions":  joinOrNone(visit.ConditionNames()),
		"medications": joinOrNone(visit.MedicationNames()),
		"specialty":   specialty(visit),
		"question":    question,
	})
	if err != nil {
		return Plan{}, err
	}

	res, err := p.client.ChatWithThinking(ctx, planSystem,
		[]provider.Message{provider.UserMessage(prompt)},
		provider.Options{
			Model:        tier.ModelID,
			MaxTokens:    PlanMaxTokens,
			BudgetTokens: min(tier.ThinkingBudget(model.WorkloadChat), PlanBudgetCap),
		})
	if err != nil {
		return Plan{}, fmt.Errorf("plan: %w", err)
	}
	return Plan{
		Text:     res.Text,
		Thinking: res.Thinking,
		Steps:    parser.ExtractList(res.Text),
	}, nil
}

// verify never fails. Provider errors and unparsable output count as
// verified.
func (p *Pipeline) verify(ctx context.Context, log *slog.Logger, question, response string, tier model.Tier) Verification {
	verified := Verification{IsVerified: true, Concerns: []string{}}

	prompt, err := p.render(template.PromptReasoningVerify, map[string]any{
		"question": question,
		"response": response,
	})
	if err != nil {
		log.Warn("reasoning verification failed", slog.Any("error", err))
		return verified
	}

	res, err := p.client.ChatWithThinking(ctx, verifySystem,
		[]provider.Message{provider.UserMessage(prompt)},
		provider.Options{
			Model:        tier.ModelID,
			MaxTokens:    VerifyMaxTokens,
			BudgetTokens: min(tier.ThinkingBudget(model.WorkloadChat), VerifyBudgetCap),
		})
	if err != nil {
		log.Warn("reasoning verification failed", slog.Any("error", err))
		return verified
	}
	return parseVerification(res.Text)
}

// verificationJSON distinguishes an absent is_verified from false.
type verificationJSON struct {
	IsVerified *bool    `json:"is_verified"`
	Concerns   []string `json:"concerns"`
	Correction *string  `json:"correction"`
}

func parseVerification(text string) Verification {
	parsed := parser.ParseJSONOutput(text, verificationJSON{})
	v := Verification{IsVerified: true, Concerns: parsed.Concerns, Correction: parsed.Correction}
	if parsed.IsVerified != nil {
		v.IsVerified = *parsed.IsVerified
	}
	if v.Concerns == nil {
		v.Concerns = []string{}
	}
	return v
}

func executeMessages(assembled *assembler.Context, plan Plan, history []provider.Message, question string) []provider.Message {
	msgs := slices.Clone(assembled.Messages)
	msgs = append(msgs,
		provider.UserMessage("[CLINICAL REASONING PLAN]\n"+plan.Text+"\n[END PLAN]"),
		provider.AssistantMessage(planAck),
	)
	msgs = append(msgs, history...)
	return append(msgs, provider.UserMessage(question))
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return noneListed
	}
	return strings.Join(items, ", ")
}

func specialty(v *records.Visit) string {
	if s := v.Specialty(); s != "" {
		return s
	}
	return "general"
}

func visitID(v *records.Visit) string {
	if v == nil {
		return ""
	}
	return v.ID
}
