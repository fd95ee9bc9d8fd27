package provider

import (
	"context"
	"iter"
	"strings"
	"sync"
)

func init() {
	Register("mock", func(cfg Config) (Client, error) {
		return NewMockClient("This is a mock response."), nil
	})
}

// Operation names recorded in MockCall.Op.
const (
	OpChat               = "chat"
	OpStream             = "stream"
	OpChatWithThinking   = "chat_with_thinking"
	OpStreamWithThinking = "stream_with_thinking"
	OpChatWithTools      = "chat_with_tools"
)

// MockCall records one call made to a MockClient.
type MockCall struct {
	Op       string
	System   string
	Messages []Message
	Options  Options
	Tools    []ToolDefinition
}

// MockClient answers every Client method from canned text. It is also the
// "mock" provider, used to run the server without an API key.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	next      int
	thinking  string
	err       error
	toolCalls []ToolCall
	handler   func(ctx context.Context, call MockCall) (string, error)

	// Calls holds every request in arrival order.
	Calls []MockCall
}

// NewMockClient returns a mock that always answers response.
func NewMockClient(response string) *MockClient {
	return &MockClient{responses: []string{response}}
}

// WithResponses answers successive calls in order, wrapping around.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.responses = responses
	return m
}

// WithThinking sets the deliberation text returned by thinking operations.
func (m *MockClient) WithThinking(thinking string) *MockClient {
	m.thinking = thinking
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.err = err
	return m
}

// WithToolCalls configures the tool calls ChatWithTools requests, one per
// loop iteration, before producing its final answer.
func (m *MockClient) WithToolCalls(calls ...ToolCall) *MockClient {
	m.toolCalls = calls
	return m
}

// WithHandler computes each answer with fn, ignoring WithResponses and
// WithError.
func (m *MockClient) WithHandler(fn func(ctx context.Context, call MockCall) (string, error)) *MockClient {
	m.handler = fn
	return m
}

// CallsFor filters Calls by operation.
func (m *MockClient) CallsFor(op string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []MockCall
	for _, c := range m.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockClient) respond(ctx context.Context, call MockCall) (string, error) {
	m.mu.Lock()
	call.Messages = append([]Message(nil), call.Messages...)
	m.Calls = append(m.Calls, call)
	handler := m.handler
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if handler != nil {
		return handler(ctx, call)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}

	if len(m.responses) == 0 {
		return "", nil
	}
	text := m.responses[m.next%len(m.responses)]
	m.next++
	return text, nil
}

func mockUsage(text string) TokenUsage {
	return TokenUsage{InputTokens: 10, OutputTokens: len(text) / 4, TotalTokens: 10 + len(text)/4}
}

// Chat implements Client.
func (m *MockClient) Chat(ctx context.Context, system string, msgs []Message, opts Options) (string, error) {
	return m.respond(ctx, MockCall{Op: OpChat, System: system, Messages: msgs, Options: opts})
}

// ChatWithThinking implements Client.
func (m *MockClient) ChatWithThinking(ctx context.Context, system string, msgs []Message, opts Options) (*ThinkingResult, error) {
	text, err := m.respond(ctx, MockCall{Op: OpChatWithThinking, System: system, Messages: msgs, Options: opts})
	if err != nil {
		return nil, err
	}
	return &ThinkingResult{Text: text, Thinking: m.thinking, Usage: mockUsage(text)}, nil
}

// Stream implements Client. The response is yielded word by word.
func (m *MockClient) Stream(ctx context.Context, system string, msgs []Message, opts Options) iter.Seq2[Chunk, error] {
	return m.stream(ctx, MockCall{Op: OpStream, System: system, Messages: msgs, Options: opts}, false)
}

// StreamWithThinking implements Client. A thinking chunk precedes the text
// when thinking text is configured.
func (m *MockClient) StreamWithThinking(ctx context.Context, system string, msgs []Message, opts Options) iter.Seq2[Chunk, error] {
	return m.stream(ctx, MockCall{Op: OpStreamWithThinking, System: system, Messages: msgs, Options: opts}, true)
}

func (m *MockClient) stream(ctx context.Context, call MockCall, thinking bool) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		text, err := m.respond(ctx, call)
		if err != nil {
			yield(Chunk{}, err)
			return
		}
		if thinking && m.thinking != "" {
			if !yield(ThinkingChunk(m.thinking), nil) {
				return
			}
		}
		for _, word := range strings.SplitAfter(text, " ") {
			if word == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(Chunk{}, err)
				return
			}
			if !yield(TextChunk(word), nil) {
				return
			}
		}
	}
}

// ChatWithTools implements Client. Each configured tool call is passed to
// exec, and its result appended as a tool_result turn, before the final
// response is produced.
func (m *MockClient) ChatWithTools(ctx context.Context, system string, msgs []Message, defs []ToolDefinition, exec ToolExecutor, opts Options) (*ToolResult, error) {
	m.mu.Lock()
	calls := append([]ToolCall(nil), m.toolCalls...)
	m.mu.Unlock()

	conversation := append([]Message(nil), msgs...)
	result := &ToolResult{}
	for _, tc := range calls {
		out := exec(ctx, tc)
		result.ToolsUsed = append(result.ToolsUsed, tc)
		conversation = append(conversation,
			Message{Role: RoleAssistant, Blocks: []ContentBlock{{Type: BlockToolUse, ToolUseID: tc.ID, Name: tc.Name, Input: tc.Input}}},
			Message{Role: RoleUser, Blocks: []ContentBlock{{Type: BlockToolResult, ToolUseID: tc.ID, Result: string(out)}}},
		)
	}

	text, err := m.respond(ctx, MockCall{Op: OpChatWithTools, System: system, Messages: conversation, Options: opts, Tools: defs})
	if err != nil {
		return nil, err
	}
	result.Text = text
	result.Thinking = m.thinking
	result.Usage = mockUsage(text)
	return result, nil
}
