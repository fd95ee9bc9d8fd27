package provider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_SequentialResponses(t *testing.T) {
	m := NewMockClient("").WithResponses("first", "second")
	ctx := context.Background()

	a, err := m.Chat(ctx, "sys", []Message{UserMessage("q")}, Options{MaxTokens: 512})
	require.NoError(t, err)
	b, err := m.Chat(ctx, "sys", nil, Options{})
	require.NoError(t, err)
	c, err := m.Chat(ctx, "sys", nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "first"}, []string{a, b, c})
	require.Len(t, m.Calls, 3)
	assert.Equal(t, 512, m.Calls[0].Options.MaxTokens)
	assert.Equal(t, "sys", m.Calls[0].System)
}

func TestMockClient_StreamWithThinking(t *testing.T) {
	m := NewMockClient("Take with food").WithThinking("considering")

	chunks, err := Collect(m.StreamWithThinking(context.Background(), "", nil, Options{}))
	require.NoError(t, err)

	require.Len(t, chunks, 4)
	assert.Equal(t, ThinkingChunk("considering"), chunks[0])
	assert.Equal(t, TextChunk("Take "), chunks[1])
	assert.Len(t, m.CallsFor(OpStreamWithThinking), 1)
}

func TestMockClient_Error(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockClient("x").WithError(boom)

	_, err := m.ChatWithThinking(context.Background(), "", nil, Options{})
	assert.ErrorIs(t, err, boom)

	_, err = CollectText(m.Stream(context.Background(), "", nil, Options{}))
	assert.ErrorIs(t, err, boom)
}

func TestMockClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockClient("x").Chat(ctx, "", nil, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockClient_ChatWithTools(t *testing.T) {
	input := json.RawMessage(`{"drug_name":"propranolol"}`)
	m := NewMockClient("final answer").WithToolCalls(ToolCall{ID: "t1", Name: "get_drug_safety_info", Input: input})

	var executed []string
	exec := func(_ context.Context, call ToolCall) json.RawMessage {
		executed = append(executed, call.Name)
		return json.RawMessage(`{"error":"lookup failed","source":"OpenFDA (fda.gov)"}`)
	}

	res, err := m.ChatWithTools(context.Background(), "sys", []Message{UserMessage("gather")}, nil, exec, Options{})
	require.NoError(t, err)

	assert.Equal(t, "final answer", res.Text)
	assert.Equal(t, []string{"get_drug_safety_info"}, executed)
	require.Len(t, res.ToolsUsed, 1)

	calls := m.CallsFor(OpChatWithTools)
	require.Len(t, calls, 1)
	msgs := calls[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, BlockToolResult, msgs[2].Blocks[0].Type)
	assert.Contains(t, msgs[2].Blocks[0].Result, "lookup failed")
}

func TestMockClient_Handler(t *testing.T) {
	m := NewMockClient("").WithHandler(func(_ context.Context, call MockCall) (string, error) {
		return call.Op, nil
	})

	res, err := m.ChatWithThinking(context.Background(), "", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, OpChatWithThinking, res.Text)
}
