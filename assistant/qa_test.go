package assistant

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postvisit/carecore/assembler"
	"github.com/postvisit/carecore/escalation"
	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/pipeline"
	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/records"
	"github.com/postvisit/carecore/template"
)

func cardiologyVisit() *records.Visit {
	return &records.Visit{
		ID:           "visit-42",
		Reason:       "Palpitations",
		Practitioner: &records.Practitioner{FirstName: "Ana", LastName: "Ruiz", Specialty: "cardiology"},
		Patient:      &records.Patient{ID: "patient-1", FirstName: "Maria", LastName: "Lopez"},
		Conditions:   []records.Condition{{Code: "I47.1", Display: "Supraventricular tachycardia", ClinicalStatus: "active"}},
		Prescriptions: []records.Prescription{{
			Status:       records.StatusActive,
			Medication:   &records.Medication{GenericName: "propranolol", DisplayName: "Propranolol 20mg"},
			DoseQuantity: "20",
			DoseUnit:     "mg",
			Frequency:    "twice daily",
		}},
	}
}

func testSession() *records.Session {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &records.Session{
		ID:    "session-1",
		Visit: cardiologyVisit(),
		Messages: []records.ChatMessage{
			{Role: records.RoleAssistant, Content: "It slows your heart rate.", CreatedAt: base.Add(time.Minute)},
			{Role: records.RoleUser, Content: "What is propranolol for?", CreatedAt: base},
			{Role: records.RoleUser, Content: "Thanks.", CreatedAt: base.Add(2 * time.Minute)},
		},
	}
}

type fakeScreener struct {
	verdict escalation.Verdict
	err     error
	calls   int
}

func (f *fakeScreener) Evaluate(context.Context, string, *records.Visit) (escalation.Verdict, error) {
	f.calls++
	return f.verdict, f.err
}

func calm() *fakeScreener {
	return &fakeScreener{verdict: escalation.Verdict{Severity: escalation.SeverityLow}}
}

type fakeReasoner struct {
	question  string
	history   []provider.Message
	assembled *assembler.Context
}

func (f *fakeReasoner) Reason(_ context.Context, _ *records.Visit, history []provider.Message, question string, assembled *assembler.Context) iter.Seq2[provider.Chunk, error] {
	f.question, f.history, f.assembled = question, history, assembled
	return func(yield func(provider.Chunk, error) bool) {
		if !yield(provider.PhaseChunk(pipeline.PhasePlanning), nil) {
			return
		}
		yield(provider.TextChunk("reasoned"), nil)
	}
}

func tierContext(t model.Tier) context.Context {
	return model.NewContext(context.Background(), t)
}

func chunkTypes(chunks []provider.Chunk) []provider.ChunkType {
	out := make([]provider.ChunkType, len(chunks))
	for i, c := range chunks {
		out[i] = c.Type
	}
	return out
}

func textOf(chunks []provider.Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		if c.Type == provider.ChunkText {
			sb.WriteString(c.Content)
		}
	}
	return sb.String()
}

func TestAnswer_CriticalShortCircuits(t *testing.T) {
	mock := provider.NewMockClient("should not be used")
	screener := escalation.NewScreener(mock, template.Embedded())
	reasoner := &fakeReasoner{}
	qa := NewQA(mock, assembler.New(template.Embedded()), screener, WithReasoner(reasoner))

	chunks, err := provider.Collect(qa.Answer(tierContext(model.Opus46), testSession(), "I have chest pain and feel dizzy"))
	require.NoError(t, err)

	assert.Equal(t, []provider.Chunk{
		{Type: provider.ChunkEffort, Content: "max"},
		provider.TextChunk(escalation.EmergencyAction),
	}, chunks)
	assert.Empty(t, mock.Calls, "no model call after a critical verdict")
	assert.Empty(t, reasoner.question)
}

func TestAnswer_ModelCriticalVerdictYieldsSafetyText(t *testing.T) {
	question := "my words come out garbled and my left side feels numb"

	t.Run("screener model fallback", func(t *testing.T) {
		screenerModel := provider.NewMockClient(`{"is_urgent":true,"severity":"critical","reason":"stroke signs"}`)
		answerModel := provider.NewMockClient("should not be used")
		qa := NewQA(answerModel, assembler.New(template.Embedded()), escalation.NewScreener(screenerModel, template.Embedded()))

		chunks, err := provider.Collect(qa.Answer(tierContext(model.Opus46), testSession(), question))
		require.NoError(t, err)

		require.Len(t, chunks, 2)
		assert.Equal(t, provider.ChunkEffort, chunks[0].Type)
		assert.Equal(t, provider.TextChunk(escalation.EmergencyAction), chunks[1])
		assert.Len(t, screenerModel.CallsFor(provider.OpChat), 1)
		assert.Empty(t, answerModel.Calls)
	})

	t.Run("verdict carrying another action", func(t *testing.T) {
		answerModel := provider.NewMockClient("should not be used")
		screener := &fakeScreener{verdict: escalation.Verdict{
			IsUrgent:          true,
			Severity:          escalation.SeverityCritical,
			RecommendedAction: "No action needed",
		}}
		qa := NewQA(answerModel, assembler.New(template.Embedded()), screener)

		chunks, err := provider.Collect(qa.Answer(tierContext(model.Good), testSession(), question))
		require.NoError(t, err)
		assert.Equal(t, escalation.EmergencyAction, textOf(chunks))
		assert.Empty(t, answerModel.Calls)
	})
}

func TestAnswer_NonThinkingTierStreamsPlain(t *testing.T) {
	mock := provider.NewMockClient("It treats a fast heart rhythm.")
	qa := NewQA(mock, assembler.New(template.Embedded()), calm())

	chunks, err := provider.Collect(qa.Answer(tierContext(model.Good), testSession(), "What does my diagnosis mean for me?"))
	require.NoError(t, err)

	assert.Equal(t, []provider.ChunkType{
		provider.ChunkEffort, provider.ChunkStatus, provider.ChunkContextTokens,
		provider.ChunkText, provider.ChunkText, provider.ChunkText, provider.ChunkText, provider.ChunkText, provider.ChunkText,
	}, chunkTypes(chunks))
	assert.Equal(t, "medium", chunks[0].Content)
	assert.Equal(t, StatusPreparing, chunks[1].Content)
	assert.Equal(t, "It treats a fast heart rhythm.", textOf(chunks))

	var breakdown map[string]int
	require.NoError(t, json.Unmarshal([]byte(chunks[2].Content), &breakdown))
	assert.Positive(t, breakdown["total"])

	calls := mock.CallsFor(provider.OpStream)
	require.Len(t, calls, 1)
	assert.Equal(t, model.SonnetModelID, calls[0].Options.Model)
	assert.Equal(t, model.NonThinkingMaxTokens, calls[0].Options.MaxTokens)
	assert.Zero(t, calls[0].Options.BudgetTokens)

	msgs := calls[0].Messages
	n := len(msgs)
	assert.Equal(t, provider.UserMessage("What does my diagnosis mean for me?"), msgs[n-1])
	assert.Equal(t, []provider.Message{
		provider.UserMessage("What is propranolol for?"),
		provider.AssistantMessage("It slows your heart rate."),
		provider.UserMessage("Thanks."),
	}, msgs[n-4:n-1], "history in creation order")
	assert.Equal(t, assembler.FullAcknowledgement, msgs[n-5].Content)
}

func TestAnswer_ThinkingTierUsesEffortBudget(t *testing.T) {
	mock := provider.NewMockClient("Your rhythm is fast.").WithThinking("consider the SVT")
	qa := NewQA(mock, assembler.New(template.Embedded()), calm(), WithReasoner(&fakeReasoner{}))

	chunks, err := provider.Collect(qa.Answer(tierContext(model.Opus46), testSession(), "What does my diagnosis mean for me?"))
	require.NoError(t, err)

	assert.Equal(t, provider.StatusChunk(StatusLoading), chunks[1])
	assert.Equal(t, provider.StatusChunk(StatusPreparing), chunks[2])
	assert.Contains(t, chunks, provider.ThinkingChunk("consider the SVT"))
	assert.Equal(t, "Your rhythm is fast.", textOf(chunks))

	calls := mock.CallsFor(provider.OpStreamWithThinking)
	require.Len(t, calls, 1)
	want := model.Opus46.BudgetForEffort(model.EffortMedium)
	assert.Equal(t, want.BudgetTokens, calls[0].Options.BudgetTokens)
	assert.Equal(t, want.MaxTokens, calls[0].Options.MaxTokens)
	assert.True(t, calls[0].Options.CacheSystem)
}

func TestAnswer_UrgencyNoteAppended(t *testing.T) {
	mock := provider.NewMockClient("Please call your cardiologist today.")
	screener := &fakeScreener{verdict: escalation.Verdict{
		IsUrgent: true,
		Severity: escalation.SeverityModerate,
		Reason:   "New swelling in a cardiac patient",
	}}
	qa := NewQA(mock, assembler.New(template.Embedded()), screener)

	_, err := provider.Collect(qa.Answer(tierContext(model.Good), testSession(), "My ankles look puffy today"))
	require.NoError(t, err)

	msgs := mock.CallsFor(provider.OpStream)[0].Messages
	assert.Equal(t, "My ankles look puffy today", msgs[len(msgs)-2].Content)
	assert.Equal(t,
		"[SYSTEM NOTE: Urgency detected - severity: moderate. Reason: New swelling in a cardiac patient. Address this concern appropriately in your response.]",
		msgs[len(msgs)-1].Content)
}

func TestAnswer_RoutesToReasoner(t *testing.T) {
	tests := []struct {
		name     string
		tier     model.Tier
		question string
		want     bool
	}{
		{"high effort on thinking tier", model.Opus46, "Are there side effects of propranolol?", true},
		{"deep trigger with medium effort", model.Better, "Why did the doctor pick this plan?", true},
		{"medium effort without trigger", model.Opus46, "What does my diagnosis mean for me?", false},
		{"high effort on plain tier", model.Good, "Are there side effects of propranolol?", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := provider.NewMockClient("plain answer")
			reasoner := &fakeReasoner{}
			qa := NewQA(mock, assembler.New(template.Embedded()), calm(), WithReasoner(reasoner))

			chunks, err := provider.Collect(qa.Answer(tierContext(tt.tier), testSession(), tt.question))
			require.NoError(t, err)

			if !tt.want {
				assert.Empty(t, reasoner.question)
				assert.NotContains(t, chunks, provider.StatusChunk(StatusDeep))
				return
			}
			assert.Equal(t, tt.question, reasoner.question)
			assert.Len(t, reasoner.history, 3)
			require.NotNil(t, reasoner.assembled)
			assert.Equal(t, assembler.FullAcknowledgement, reasoner.assembled.Messages[len(reasoner.assembled.Messages)-1].Content)
			assert.Empty(t, mock.Calls, "the reasoner owns all model calls")

			assert.Equal(t, []provider.ChunkType{
				provider.ChunkEffort, provider.ChunkStatus, provider.ChunkStatus,
				provider.ChunkContextTokens, provider.ChunkStatus, provider.ChunkPhase, provider.ChunkText,
			}, chunkTypes(chunks))
			assert.Equal(t, StatusGuidelines, chunks[2].Content)
			assert.Equal(t, StatusDeep, chunks[4].Content)
		})
	}
}

func TestAnswer_Errors(t *testing.T) {
	t.Run("screener error", func(t *testing.T) {
		mock := provider.NewMockClient("x")
		qa := NewQA(mock, assembler.New(template.Embedded()), &fakeScreener{err: template.ErrNotFound})

		chunks, err := provider.Collect(qa.Answer(context.Background(), testSession(), "hello"))
		assert.ErrorIs(t, err, template.ErrNotFound)
		assert.Len(t, chunks, 1, "only the effort chunk")
		assert.Empty(t, mock.Calls)
	})

	t.Run("missing visit", func(t *testing.T) {
		qa := NewQA(provider.NewMockClient("x"), assembler.New(template.Embedded()), calm())
		_, err := provider.Collect(qa.Answer(context.Background(), &records.Session{ID: "s"}, "hello"))
		assert.ErrorIs(t, err, records.ErrNotFound)
	})

	t.Run("provider error mid-stream", func(t *testing.T) {
		mock := provider.NewMockClient("").WithError(provider.ErrRateLimited)
		qa := NewQA(mock, assembler.New(template.Embedded()), calm())
		_, err := provider.Collect(qa.Answer(tierContext(model.Good), testSession(), "hello"))
		assert.ErrorIs(t, err, provider.ErrRateLimited)
	})
}

func TestAnswer_TierStore(t *testing.T) {
	store := model.NewTierStore()
	store.Set(model.Good)
	mock := provider.NewMockClient("ok")
	asm := assembler.New(template.Embedded())
	qa := NewQA(mock, asm, calm(), WithTierStore(store))

	_, err := provider.Collect(qa.Answer(context.Background(), testSession(), "What does my diagnosis mean for me?"))
	require.NoError(t, err)
	assert.Len(t, mock.CallsFor(provider.OpStream), 1)
	assert.Empty(t, mock.CallsFor(provider.OpStreamWithThinking))
}

func TestQuickAnswer(t *testing.T) {
	mock := provider.NewMockClient("It slows your heart.")
	qa := NewQA(mock, assembler.New(template.Embedded()), calm())

	chunks, err := provider.Collect(qa.QuickAnswer(context.Background(), testSession(), "What is propranolol?"))
	require.NoError(t, err)

	for _, c := range chunks {
		assert.Equal(t, provider.ChunkQuick, c.Type)
	}
	require.Len(t, chunks, 4)

	call := mock.CallsFor(provider.OpStream)[0]
	assert.Equal(t, model.HaikuModelID, call.Options.Model)
	assert.Equal(t, QuickMaxTokens, call.Options.MaxTokens)
	assert.Equal(t, assembler.QuickAcknowledgement, call.Messages[2].Content)

	msgs := call.Messages[3:]
	assert.Equal(t, []provider.Message{
		provider.AssistantMessage("It slows your heart rate."),
		provider.UserMessage("Thanks."),
		provider.UserMessage("What is propranolol?"),
	}, msgs)
}

// The full flow with real components and a scripted model.
func TestAnswer_IbuprofenPropranololEndToEnd(t *testing.T) {
	for _, flagged := range []bool{false, true} {
		name := "verified"
		if flagged {
			name = "correction"
		}
		t.Run(name, func(t *testing.T) {
			mock := provider.NewMockClient("").
				WithThinking("NSAIDs blunt beta blockers.").
				WithHandler(func(_ context.Context, call provider.MockCall) (string, error) {
					switch {
					case strings.HasPrefix(call.System, "You are a clinical triage assistant"):
						return `{"is_urgent": false, "severity": "low", "reason": "medication question"}`, nil
					case strings.HasPrefix(call.System, "You are a clinical reasoning planner"):
						return "- Pharmacology\n- Blood pressure\n- Kidney safety", nil
					case strings.HasPrefix(call.System, "You are a clinical accuracy verifier"):
						if flagged {
							return `{"is_verified": false, "concerns": ["no kidney warning"], "correction": "Avoid regular ibuprofen use without asking your doctor."}`, nil
						}
						return `{"is_verified": true, "concerns": [], "correction": null}`, nil
					default:
						return "Occasional ibuprofen is usually fine.", nil
					}
				})

			prompts := template.Embedded()
			asm := assembler.New(prompts)
			qa := NewQA(mock, asm, escalation.NewScreener(mock, prompts),
				WithReasoner(pipeline.New(mock, prompts)))

			chunks, err := provider.Collect(qa.Answer(tierContext(model.Opus46), testSession(), "Can I take ibuprofen with my propranolol?"))
			require.NoError(t, err)

			assert.Equal(t, provider.Chunk{Type: provider.ChunkEffort, Content: "high"}, chunks[0])

			var phases []string
			firstPhase := -1
			for i, c := range chunks {
				if c.Type == provider.ChunkPhase {
					phases = append(phases, c.Content)
					if firstPhase < 0 {
						firstPhase = i
					}
				}
			}
			assert.Equal(t, []string{pipeline.PhasePlanning, pipeline.PhaseReasoning, pipeline.PhaseVerifying}, phases)

			tail := chunkTypes(chunks[firstPhase:])
			assert.Equal(t, []provider.ChunkType{
				provider.ChunkPhase, provider.ChunkThinking,
				provider.ChunkPhase, provider.ChunkThinking,
				provider.ChunkText, provider.ChunkText, provider.ChunkText, provider.ChunkText, provider.ChunkText,
				provider.ChunkPhase,
			}, tail[:10])

			if flagged {
				require.Len(t, tail, 11)
				last := chunks[len(chunks)-1]
				assert.Equal(t, pipeline.CorrectionPrefix+"Avoid regular ibuprofen use without asking your doctor.", last.Content)
			} else {
				assert.Len(t, tail, 10)
			}

			screen := mock.CallsFor(provider.OpChatWithThinking)[0]
			assert.True(t, strings.HasPrefix(screen.System, "You are a clinical triage assistant"),
				"screening happens before any reasoning call")
		})
	}
}

func TestHistory(t *testing.T) {
	assert.Nil(t, history(nil, 0))
	assert.Len(t, history(testSession(), 0), 3)
	assert.Len(t, history(testSession(), 2), 2)
	assert.Len(t, history(testSession(), 10), 3)
	assert.Empty(t, history(&records.Session{}, 0))

	last := history(testSession(), 1)
	assert.Equal(t, []provider.Message{provider.UserMessage("Thanks.")}, last)
}
