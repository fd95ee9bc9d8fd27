package provider

import (
	"encoding/json"
	"strings"
)

// Role identifies the message sender.
type Role string

// Message roles. System prompts travel separately from messages.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block types.
const (
	BlockText       = "text"
	BlockImage      = "image"
	BlockDocument   = "document"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Message is a conversation turn.
// For simple text messages, use Content. Blocks carry multimodal input and
// tool traffic; if set they take precedence over Content.
type Message struct {
	Role    Role           `json:"role"`
	Content string         `json:"content,omitempty"`
	Blocks  []ContentBlock `json:"blocks,omitempty"`
}

// ContentBlock is one piece of a multimodal or tool message.
type ContentBlock struct {
	Type string `json:"type"`

	// Text content (BlockText).
	Text string `json:"text,omitempty"`

	// Inline media (BlockImage, BlockDocument).
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"` // base64

	// Tool request (BlockToolUse).
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`

	// Tool response (BlockToolResult) also sets ToolUseID.
	Result string `json:"result,omitempty"`
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewDocumentMessage attaches a base64 document, such as a PDF of visit
// notes, ahead of the user's instruction.
func NewDocumentMessage(text, base64Data, mediaType string) Message {
	return attachment(BlockDocument, text, base64Data, mediaType)
}

// NewImageMessage attaches a base64 image ahead of the user's text.
func NewImageMessage(text, base64Data, mediaType string) Message {
	return attachment(BlockImage, text, base64Data, mediaType)
}

func attachment(blockType, text, data, mediaType string) Message {
	return Message{Role: RoleUser, Blocks: []ContentBlock{
		{Type: blockType, Data: data, MediaType: mediaType},
		{Type: BlockText, Text: text},
	}}
}

// IsMultimodal reports whether the message is carried in Blocks.
func (m Message) IsMultimodal() bool {
	return len(m.Blocks) > 0
}

// GetText returns Content, or the text blocks joined for a block message.
func (m Message) GetText() string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	var parts []string
	for _, b := range m.Blocks {
		if b.Type == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "")
}

// ChunkType discriminates stream chunks.
type ChunkType string

// Chunk types.
const (
	// ChunkPhase marks a pipeline stage transition ("planning", "reasoning", "verifying").
	ChunkPhase ChunkType = "phase"

	// ChunkStatus reports progress to the caller.
	ChunkStatus ChunkType = "status"

	// ChunkThinking carries deliberation that is not part of the answer.
	ChunkThinking ChunkType = "thinking"

	// ChunkText is user-visible answer content.
	ChunkText ChunkType = "text"

	// ChunkToolUse reports a tool invocation.
	ChunkToolUse ChunkType = "tool_use"

	// ChunkEffort reports the classified effort level of a question.
	ChunkEffort ChunkType = "effort"

	// ChunkContextTokens reports the assembled context size.
	ChunkContextTokens ChunkType = "context_tokens"

	// ChunkQuick carries a fast preliminary answer.
	ChunkQuick ChunkType = "quick"
)

// Chunk is one unit of a stream.
type Chunk struct {
	Type    ChunkType `json:"type"`
	Content string    `json:"content"`
}

// PhaseChunk creates a phase transition chunk.
func PhaseChunk(phase string) Chunk { return Chunk{Type: ChunkPhase, Content: phase} }

// StatusChunk creates a progress chunk.
func StatusChunk(status string) Chunk { return Chunk{Type: ChunkStatus, Content: status} }

// ThinkingChunk creates a thinking chunk.
func ThinkingChunk(text string) Chunk { return Chunk{Type: ChunkThinking, Content: text} }

// TextChunk creates an answer chunk.
func TextChunk(text string) Chunk { return Chunk{Type: ChunkText, Content: text} }

// ToolUseChunk creates a tool invocation chunk.
func ToolUseChunk(name string) Chunk { return Chunk{Type: ChunkToolUse, Content: name} }

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`

	// Cache-related tokens (may be zero)
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Add combines token usage from another TokenUsage.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}
