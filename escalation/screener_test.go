package escalation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/records"
	"github.com/postvisit/carecore/template"
)

func cardiologyVisit() *records.Visit {
	return &records.Visit{
		ID:           "visit-1",
		Practitioner: &records.Practitioner{FirstName: "Ana", LastName: "Ruiz", Specialty: "cardiology"},
		Conditions: []records.Condition{
			{Code: "I47.1", Display: "Supraventricular tachycardia"},
			{Code: "I10", Display: "Hypertension"},
		},
	}
}

func TestEvaluate_KeywordFastPathSkipsModel(t *testing.T) {
	tests := []struct {
		message string
		trigger string
	}{
		{"I can't breathe", "can't breathe"},
		{"I CAN’T BREATHE after the new pills", "can't breathe"},
		{"I have CHEST PAIN since this morning", "chest pain"},
		{"my husband fainted in the kitchen", "fainted"},
		{"I've been feeling suicidal", "suicidal"},
		{"sudden blindness in my left eye", "sudden blindness"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			mock := provider.NewMockClient(`{"is_urgent": false}`)
			s := NewScreener(mock, template.Embedded())

			v, err := s.Evaluate(context.Background(), tt.message, cardiologyVisit())
			require.NoError(t, err)

			assert.True(t, v.IsUrgent)
			assert.Equal(t, SeverityCritical, v.Severity)
			assert.True(t, v.IsCritical())
			assert.Equal(t, []string{tt.trigger}, v.TriggerPhrases)
			assert.Equal(t, EmergencyAction, v.RecommendedAction)
			assert.Equal(t, "Message contains critical symptom: '"+tt.trigger+"'", v.Reason)
			assert.Empty(t, mock.Calls, "fast path must not call the model")
		})
	}
}

func TestEvaluate_KeywordPathNeedsNoPrompt(t *testing.T) {
	// A broken prompt directory must not affect the fast path.
	s := NewScreener(nil, template.NewFSLoader(emptyFS{}))

	v, err := s.Evaluate(context.Background(), "severe bleeding from the incision", nil)
	require.NoError(t, err)
	assert.True(t, v.IsCritical())
}

func TestEvaluate_ModelFallback(t *testing.T) {
	response := "```json\n" + `{
  "is_urgent": true,
  "severity": "moderate",
  "reason": "Palpitations with known SVT",
  "trigger_phrases": ["heart racing"],
  "recommended_action": "Call your cardiologist today.",
  "context_factors": ["SVT history"]
}` + "\n```"
	mock := provider.NewMockClient(response)
	s := NewScreener(mock, template.Embedded(), WithModel("escalation-model"))

	v, err := s.Evaluate(context.Background(), "My heart keeps racing at night", cardiologyVisit())
	require.NoError(t, err)

	assert.True(t, v.IsUrgent)
	assert.Equal(t, SeverityModerate, v.Severity)
	assert.False(t, v.IsCritical())
	assert.Equal(t, "Call your cardiologist today.", v.RecommendedAction)
	assert.Equal(t, []string{"SVT history"}, v.ContextFactors)

	calls := mock.CallsFor(provider.OpChat)
	require.Len(t, calls, 1)
	call := calls[0]
	assert.Equal(t, "escalation-model", call.Options.Model)
	assert.Equal(t, DefaultMaxTokens, call.Options.MaxTokens)
	assert.Contains(t, call.System, "is_urgent")

	input := call.Messages[0].Content
	assert.True(t, strings.HasPrefix(input, "Evaluate the following patient message for urgency.\n\n"))
	assert.Contains(t, input, "Patient Message: My heart keeps racing at night\n\n")
	assert.Contains(t, input, "Known Conditions: Supraventricular tachycardia, Hypertension\n")
	assert.Contains(t, input, "Visit Specialty: cardiology\n")
}

func TestEvaluate_UnparsableFailsOpen(t *testing.T) {
	for _, response := range []string{
		"I think this is probably fine.",
		"```json\n{not json}\n```",
		"null",
	} {
		t.Run(response, func(t *testing.T) {
			s := NewScreener(provider.NewMockClient(response), template.Embedded())

			v, err := s.Evaluate(context.Background(), "Is it normal to feel tired?", nil)
			require.NoError(t, err)

			assert.False(t, v.IsUrgent)
			assert.Equal(t, SeverityLow, v.Severity)
			assert.Equal(t, "Unable to evaluate (parse error)", v.Reason)
			assert.Equal(t, "No action needed", v.RecommendedAction)
		})
	}
}

func TestEvaluate_ProviderErrorFailsOpen(t *testing.T) {
	mock := provider.NewMockClient("").WithError(provider.ErrUnavailable)
	s := NewScreener(mock, template.Embedded())

	v, err := s.Evaluate(context.Background(), "mild headache today", nil)
	require.NoError(t, err)
	assert.False(t, v.IsUrgent)
	assert.Equal(t, SeverityLow, v.Severity)
}

func TestEvaluate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScreener(provider.NewMockClient("{}"), template.Embedded())
	_, err := s.Evaluate(ctx, "mild headache today", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate_MissingPromptIsFatal(t *testing.T) {
	s := NewScreener(provider.NewMockClient("{}"), template.NewFSLoader(emptyFS{}))

	_, err := s.Evaluate(context.Background(), "mild headache today", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, template.ErrNotFound))
}

func TestEvaluate_PlainChatOnEveryTier(t *testing.T) {
	for _, tier := range []model.Tier{model.Opus46, model.Better} {
		t.Run(tier.Name, func(t *testing.T) {
			mock := provider.NewMockClient(`{"is_urgent": false, "severity": "low", "reason": "routine"}`)
			s := NewScreener(mock, template.Embedded())

			v, err := s.Evaluate(model.NewContext(context.Background(), tier), "can I shower tonight?", nil)
			require.NoError(t, err)
			assert.Equal(t, "routine", v.Reason)

			assert.Empty(t, mock.CallsFor(provider.OpChatWithThinking))
			calls := mock.CallsFor(provider.OpChat)
			require.Len(t, calls, 1)
			assert.Equal(t, DefaultMaxTokens, calls[0].Options.MaxTokens)
			assert.Zero(t, calls[0].Options.BudgetTokens)
		})
	}
}

func TestEvaluate_ModelCriticalGetsSafetyText(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no action given", `{"is_urgent":true,"severity":"critical","reason":"stroke signs"}`},
		{"model action replaced", `{"is_urgent":true,"severity":"critical","reason":"stroke signs","recommended_action":"Rest and see how you feel tomorrow."}`},
		{"urgent flag missing", `{"severity":"critical","reason":"stroke signs"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScreener(provider.NewMockClient(tt.response), template.Embedded())

			v, err := s.Evaluate(context.Background(), "my words come out garbled and my left side feels numb", nil)
			require.NoError(t, err)
			assert.True(t, v.IsCritical())
			assert.Equal(t, EmergencyAction, v.RecommendedAction)
			assert.Equal(t, "stroke signs", v.Reason)
		})
	}
}

func TestNormalize(t *testing.T) {
	v := normalize(Verdict{IsUrgent: true, Severity: "urgent-ish"})
	assert.Equal(t, SeverityModerate, v.Severity)
	assert.Equal(t, noAction, v.RecommendedAction)
	assert.NotNil(t, v.TriggerPhrases)

	v = normalize(Verdict{})
	assert.Equal(t, SeverityLow, v.Severity)

	v = normalize(Verdict{Severity: SeverityCritical, RecommendedAction: "wait and see"})
	assert.True(t, v.IsUrgent)
	assert.Equal(t, EmergencyAction, v.RecommendedAction)

	v = normalize(Verdict{IsUrgent: true, Severity: SeverityModerate, RecommendedAction: "Call today."})
	assert.Equal(t, "Call today.", v.RecommendedAction)
}
