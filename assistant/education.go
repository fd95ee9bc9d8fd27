package assistant

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/records"
	"github.com/postvisit/carecore/template"
)

// Education progress messages.
const (
	StatusResearching = "Researching your medications and conditions..."
	StatusWriting     = "Writing your personalized health guide..."
)

// Token limits for education documents.
const (
	GatherMaxTokens         = 4096
	EducationMaxTokens      = 65536
	EducationPlainMaxTokens = 16000
)

const (
	educationRequest        = "Generate a comprehensive patient education document for my visit. Cover everything I need to know. Incorporate the verified medical database information where relevant."
	toolDataAcknowledgement = "I have reviewed the medical database results and will incorporate this verified data into the education document."
	toolDataHeader          = "--- VERIFIED MEDICAL DATABASE RESULTS ---"
	toolDataIntro           = "The following data was retrieved from medical databases (OpenFDA, clinical references) to ensure accuracy:"
	toolDataFooter          = "--- END VERIFIED MEDICAL DATABASE RESULTS ---"
)

// ToolSet supplies tool definitions and runs the calls the model makes.
type ToolSet struct {
	Definitions []provider.ToolDefinition
	Execute     provider.ToolExecutor
}

// Education generates patient education documents.
type Education struct {
	client    provider.Client
	assembler ContextAssembler
	prompts   template.Loader
	tools     ToolSet
	tiers     *model.TierStore
	logger    *slog.Logger
}

// EducationOption configures an Education generator.
type EducationOption func(*Education)

// WithEducationTierStore sets where the active tier is read from.
func WithEducationTierStore(s *model.TierStore) EducationOption {
	return func(e *Education) { e.tiers = s }
}

// WithEducationLogger sets the logger. Defaults to slog.Default().
func WithEducationLogger(l *slog.Logger) EducationOption {
	return func(e *Education) { e.logger = l }
}

// NewEducation creates a generator. tools is offered to the model during
// the gathering turn.
func NewEducation(client provider.Client, asm ContextAssembler, prompts template.Loader, tools ToolSet, opts ...EducationOption) *Education {
	e := &Education{
		client:    client,
		assembler: asm,
		prompts:   prompts,
		tools:     tools,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate streams an education document for visit.
//
// A non-streaming tool turn first gathers verified drug and lab data; one
// tool_use chunk is emitted per call. A failed gathering turn is logged and
// the document is written without tool data.
func (e *Education) Generate(ctx context.Context, visit *records.Visit) iter.Seq2[provider.Chunk, error] {
	return func(yield func(provider.Chunk, error) bool) {
		ctx, tier := resolveTier(ctx, e.tiers)

		assembled, err := e.assembler.AssembleForVisit(ctx, visit, template.PromptEducation)
		if err != nil {
			yield(provider.Chunk{}, err)
			return
		}
		gather, err := e.prompts.Load(template.PromptEducationGather)
		if err != nil {
			yield(provider.Chunk{}, err)
			return
		}

		if !yield(provider.StatusChunk(StatusResearching), nil) {
			return
		}

		result := e.gather(ctx, assembled.SystemPrompt, assembled.Messages, strings.TrimSpace(gather), tier, assembled.CacheSystem)
		if err := ctx.Err(); err != nil {
			yield(provider.Chunk{}, err)
			return
		}
		for _, call := range result.ToolsUsed {
			b, err := json.Marshal(call)
			if err != nil {
				continue
			}
			if !yield(provider.ToolUseChunk(string(b)), nil) {
				return
			}
		}

		if !yield(provider.StatusChunk(StatusWriting), nil) {
			return
		}

		msgs := slices.Clone(assembled.Messages)
		if len(result.ToolsUsed) > 0 {
			msgs = append(msgs,
				provider.UserMessage(toolDataContext(result.Text)),
				provider.AssistantMessage(toolDataAcknowledgement),
			)
		}
		msgs = append(msgs, provider.UserMessage(educationRequest))

		var stream iter.Seq2[provider.Chunk, error]
		if tier.ThinkingEnabled {
			stream = e.client.StreamWithThinking(ctx, assembled.SystemPrompt, msgs, provider.Options{
				Model:        tier.ModelID,
				MaxTokens:    EducationMaxTokens,
				BudgetTokens: tier.ThinkingBudget(model.WorkloadReasoning),
				CacheSystem:  assembled.CacheSystem,
			})
		} else {
			stream = e.client.Stream(ctx, assembled.SystemPrompt, msgs, provider.Options{
				Model:       tier.ModelID,
				MaxTokens:   EducationPlainMaxTokens,
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

func (e *Education) gather(ctx context.Context, system string, base []provider.Message, prompt string, tier model.Tier, cache bool) *provider.ToolResult {
	msgs := append(slices.Clone(base), provider.UserMessage(prompt))
	res, err := e.client.ChatWithTools(ctx, system, msgs, e.tools.Definitions, e.tools.Execute, provider.Options{
		Model:        tier.ModelID,
		MaxTokens:    GatherMaxTokens,
		BudgetTokens: tier.ThinkingBudget(model.WorkloadReasoning),
		CacheSystem:  cache,
	})
	if err != nil {
		e.logger.Warn("tool data gathering failed, continuing without", slog.Any("error", err))
		return &provider.ToolResult{}
	}
	names := make([]string, len(res.ToolsUsed))
	for i, call := range res.ToolsUsed {
		names[i] = call.Name
	}
	e.logger.Info("tool data gathered", slog.Int("tools_used", len(names)), slog.Any("tool_names", names))
	return res
}

func toolDataContext(text string) string {
	parts := []string{toolDataHeader, toolDataIntro}
	if text != "" {
		parts = append(parts, "", text)
	}
	parts = append(parts, toolDataFooter)
	return strings.Join(parts, "\n")
}
