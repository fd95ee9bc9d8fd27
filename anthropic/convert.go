package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/postvisit/carecore/provider"
)

func toMessages(msgs []provider.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		if !m.IsMultimodal() {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for _, b := range m.Blocks {
			blocks = append(blocks, toBlock(b))
		}

		role := anthropic.MessageParamRoleUser
		if m.Role == provider.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

func toBlock(b provider.ContentBlock) anthropic.ContentBlockParamUnion {
	switch b.Type {
	case provider.BlockImage:
		return anthropic.NewImageBlockBase64(b.MediaType, b.Data)
	case provider.BlockDocument:
		return anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: b.Data})
	case provider.BlockToolUse:
		input := b.Input
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		return anthropic.NewToolUseBlock(b.ToolUseID, input, b.Name)
	case provider.BlockToolResult:
		return anthropic.NewToolResultBlock(b.ToolUseID, b.Result, false)
	default:
		return anthropic.NewTextBlock(b.Text)
	}
}

// toTools lifts the properties and required list out of each definition's
// JSON schema. The SDK always sends "type": "object".
func toTools(defs []provider.ToolDefinition) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, len(defs))
	for i, d := range defs {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if len(d.InputSchema) > 0 {
			_ = json.Unmarshal(d.InputSchema, &schema)
		}
		tool := anthropic.ToolParam{
			Name: d.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}
		if d.Description != "" {
			tool.Description = anthropic.String(d.Description)
		}
		out[i] = anthropic.ToolUnionParam{OfTool: &tool}
	}
	return out
}

// split concatenates the message's text blocks and thinking blocks.
func split(msg *anthropic.Message) (text, thinking string) {
	var t, th strings.Builder
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			t.WriteString(b.Text)
		case "thinking":
			th.WriteString(b.Thinking)
		}
	}
	return t.String(), th.String()
}

func tokenUsage(u anthropic.Usage) provider.TokenUsage {
	return provider.TokenUsage{
		InputTokens:              int(u.InputTokens),
		OutputTokens:             int(u.OutputTokens),
		TotalTokens:              int(u.InputTokens + u.OutputTokens),
		CacheCreationInputTokens: int(u.CacheCreationInputTokens),
		CacheReadInputTokens:     int(u.CacheReadInputTokens),
	}
}
