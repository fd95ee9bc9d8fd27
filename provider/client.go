// Package provider defines the narrow contract the AI core uses to talk to an
// LLM provider, and the typed chunk stream every streaming operation emits.
//
// # Usage
//
// Create a client using the registry:
//
//	client, err := provider.New("anthropic", provider.Config{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for chunk, err := range client.StreamWithThinking(ctx, system, msgs, provider.Options{
//	    MaxTokens:    16000,
//	    BudgetTokens: 8000,
//	}) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(chunk.Content)
//	}
//
// # Streams
//
// Streams are pull-based sequences. Nothing is read from the provider until
// the caller ranges over the sequence; breaking out of the loop, or
// cancelling the context, stops the read and releases the connection.
//
// Consumers rebuild the answer by concatenating ChunkText chunks in order.
// ChunkThinking chunks are deliberation and never part of the answer.
// Unknown chunk types must be ignored.
package provider

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
)

// Client is the interface to an LLM provider.
// Implementations must be safe for concurrent use.
type Client interface {
	// Chat sends a request and returns the full text response.
	Chat(ctx context.Context, system string, msgs []Message, opts Options) (string, error)

	// Stream yields text chunks as the provider produces them.
	Stream(ctx context.Context, system string, msgs []Message, opts Options) iter.Seq2[Chunk, error]

	// ChatWithThinking sends a request with extended thinking enabled and
	// returns the answer and the deliberation separately.
	ChatWithThinking(ctx context.Context, system string, msgs []Message, opts Options) (*ThinkingResult, error)

	// StreamWithThinking yields thinking and text chunks as they arrive.
	StreamWithThinking(ctx context.Context, system string, msgs []Message, opts Options) iter.Seq2[Chunk, error]

	// ChatWithTools runs a non-streaming tool loop. Each tool call requested
	// by the model is passed to exec and its result fed back, until the model
	// answers without requesting tools.
	ChatWithTools(ctx context.Context, system string, msgs []Message, defs []ToolDefinition, exec ToolExecutor, opts Options) (*ToolResult, error)
}

// Options configures a single provider call.
type Options struct {
	// Model overrides the client's default model.
	Model string `json:"model,omitempty"`

	// MaxTokens is the completion ceiling, thinking included.
	MaxTokens int `json:"max_tokens,omitempty"`

	// BudgetTokens is the thinking allowance. Zero disables thinking.
	BudgetTokens int `json:"budget_tokens,omitempty"`

	// Temperature controls sampling. Nil uses the provider default.
	// Ignored when thinking is enabled.
	Temperature *float64 `json:"temperature,omitempty"`

	// CacheSystem marks the system prompt as cacheable.
	CacheSystem bool `json:"cache_system,omitempty"`
}

// ThinkingResult is the output of a thinking-enabled, non-streaming call.
type ThinkingResult struct {
	Text     string     `json:"text"`
	Thinking string     `json:"thinking"`
	Usage    TokenUsage `json:"usage"`
}

// ToolResult is the output of a ChatWithTools loop.
type ToolResult struct {
	Text      string     `json:"text"`
	Thinking  string     `json:"thinking"`
	ToolsUsed []ToolCall `json:"tools_used"`
	Usage     TokenUsage `json:"usage"`
}

// ToolExecutor runs one tool call and returns its JSON result. Executors
// report failures inside the returned payload; the loop treats every result
// as data.
type ToolExecutor func(ctx context.Context, call ToolCall) json.RawMessage

// Collect drains a stream into a slice.
// Returns the chunks read before the first error.
func Collect(seq iter.Seq2[Chunk, error]) ([]Chunk, error) {
	var chunks []Chunk
	for c, err := range seq {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// CollectText drains a stream and concatenates its text chunks.
func CollectText(seq iter.Seq2[Chunk, error]) (string, error) {
	var sb strings.Builder
	for c, err := range seq {
		if err != nil {
			return sb.String(), err
		}
		if c.Type == ChunkText {
			sb.WriteString(c.Content)
		}
	}
	return sb.String(), nil
}
