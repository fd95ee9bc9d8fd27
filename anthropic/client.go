// Package anthropic implements provider.Client over the Anthropic Messages
// API using the official anthropic-sdk-go client.
//
// Transient failures (HTTP 408, 409, 429, 5xx and connection errors) are
// retried by the SDK up to Config.MaxRetries times, honoring the server's
// retry-after hints.
//
// The package registers itself as the "anthropic" provider:
//
//	import _ "github.com/postvisit/carecore/anthropic"
//
//	client, err := provider.New("anthropic", cfg)
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/provider"
)

const (
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.anthropic.com/"

	// DefaultVersion is sent as the anthropic-version header.
	DefaultVersion = "2023-06-01"

	// DefaultMaxTokens applies when Options.MaxTokens is zero.
	DefaultMaxTokens = 4096

	// DefaultThinkingBudget applies to thinking calls made without a budget.
	DefaultThinkingBudget = 8000

	// MaxToolIterations bounds the ChatWithTools request loop.
	MaxToolIterations = 5

	providerName = "anthropic"
)

func init() {
	provider.Register(providerName, func(cfg provider.Config) (provider.Client, error) {
		return New(cfg)
	})
}

// Client talks to the Messages API. Safe for concurrent use.
type Client struct {
	api        anthropic.Client
	baseURL    string
	model      string
	httpClient *http.Client
	extra      []option.RequestOption
	tracker    *model.CostTracker
	logger     *slog.Logger
}

var _ provider.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used by the SDK.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRequestOptions appends raw SDK request options. They are applied
// last and win over values derived from the provider config.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *Client) { c.extra = append(c.extra, opts...) }
}

// WithCostTracker records every request's usage into t.
func WithCostTracker(t *model.CostTracker) Option {
	return func(c *Client) { c.tracker = t }
}

// WithLogger sets the logger for usage and retry events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client from cfg. The API key is required.
func New(cfg provider.Config, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, provider.NewError(providerName, "new", provider.ErrCredentialsNotFound, false)
	}
	if err := cfg.Validate(); err != nil {
		return nil, provider.NewError(providerName, "new", fmt.Errorf("%w: %v", provider.ErrInvalidRequest, err), false)
	}

	c := &Client{
		baseURL: sanitizeBaseURL(cfg.BaseURL),
		model:   cfg.Model,
		logger:  slog.Default(),
	}
	if c.model == "" {
		c.model = model.DefaultTier.ModelID
	}
	for _, opt := range opts {
		opt(c)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(c.baseURL),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithHeader("anthropic-version", cfg.StringOption("anthropic_version", DefaultVersion)),
		option.WithMiddleware(c.logAttempt),
	}
	if beta := cfg.StringOption("anthropic_beta", ""); beta != "" {
		reqOpts = append(reqOpts, option.WithHeader("anthropic-beta", beta))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	if c.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(c.httpClient))
	}
	reqOpts = append(reqOpts, c.extra...)

	c.api = anthropic.NewClient(reqOpts...)
	return c, nil
}

// sanitizeBaseURL strips a trailing /v1 and ensures the trailing slash the
// SDK resolves request paths against.
func sanitizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	return strings.TrimSuffix(base, "/v1") + "/"
}

// logAttempt surfaces every transient attempt the SDK will retry.
func (c *Client) logAttempt(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	resp, err := next(req)
	switch {
	case err != nil:
		if req.Context().Err() == nil {
			c.logger.Warn("anthropic connection error", "path", req.URL.Path, "error", err)
		}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.Warn("anthropic transient HTTP error", "path", req.URL.Path, "status", resp.StatusCode)
	}
	return resp, err
}

// Chat sends a single request and returns the concatenated text blocks.
func (c *Client) Chat(ctx context.Context, system string, msgs []provider.Message, opts provider.Options) (string, error) {
	params := c.params(system, msgs, opts, false)
	msg, err := c.create(ctx, "chat", params)
	if err != nil {
		return "", err
	}
	text, _ := split(msg)
	return text, nil
}

// ChatWithThinking sends a request with extended thinking enabled. A zero
// BudgetTokens uses DefaultThinkingBudget.
func (c *Client) ChatWithThinking(ctx context.Context, system string, msgs []provider.Message, opts provider.Options) (*provider.ThinkingResult, error) {
	params := c.params(system, msgs, opts, true)
	msg, err := c.create(ctx, "chat_with_thinking", params)
	if err != nil {
		return nil, err
	}
	text, thinking := split(msg)
	return &provider.ThinkingResult{
		Text:     text,
		Thinking: thinking,
		Usage:    tokenUsage(msg.Usage),
	}, nil
}

// Stream yields text chunks as they arrive.
func (c *Client) Stream(ctx context.Context, system string, msgs []provider.Message, opts provider.Options) iter.Seq2[provider.Chunk, error] {
	return c.stream(ctx, "stream", c.params(system, msgs, opts, false))
}

// StreamWithThinking yields thinking and text chunks as they arrive.
func (c *Client) StreamWithThinking(ctx context.Context, system string, msgs []provider.Message, opts provider.Options) iter.Seq2[provider.Chunk, error] {
	return c.stream(ctx, "stream_with_thinking", c.params(system, msgs, opts, true))
}

// ChatWithTools runs the tool loop. Thinking is enabled when
// opts.BudgetTokens is positive. The loop fails with
// provider.ErrToolLoopExceeded when the model still requests tools after
// MaxToolIterations requests.
func (c *Client) ChatWithTools(ctx context.Context, system string, msgs []provider.Message, defs []provider.ToolDefinition, exec provider.ToolExecutor, opts provider.Options) (*provider.ToolResult, error) {
	const op = "chat_with_tools"

	params := c.params(system, msgs, opts, opts.BudgetTokens > 0)
	params.Tools = toTools(defs)

	result := &provider.ToolResult{}
	var thinking strings.Builder
	for range MaxToolIterations {
		msg, err := c.create(ctx, op, params)
		if err != nil {
			return nil, err
		}
		result.Usage.Add(tokenUsage(msg.Usage))

		text, th := split(msg)
		thinking.WriteString(th)

		if msg.StopReason != anthropic.StopReasonToolUse {
			result.Text = text
			result.Thinking = thinking.String()
			names := make([]string, len(result.ToolsUsed))
			for i, call := range result.ToolsUsed {
				names[i] = call.Name
			}
			c.logger.Info("anthropic tool loop finished",
				"model", string(params.Model),
				"tools_used", len(result.ToolsUsed),
				"tool_names", names,
			)
			return result, nil
		}

		params.Messages = append(params.Messages, msg.ToParam())

		var results []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			if block.Type != provider.BlockToolUse {
				continue
			}
			call := provider.ToolCall{ID: block.ID, Name: block.Name, Input: block.Input}
			result.ToolsUsed = append(result.ToolsUsed, call)
			results = append(results, anthropic.NewToolResultBlock(block.ID, string(c.runTool(ctx, exec, call)), false))
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(results...))
	}

	return nil, provider.NewError(providerName, op,
		fmt.Errorf("%w (%d)", provider.ErrToolLoopExceeded, MaxToolIterations), false)
}

func (c *Client) runTool(ctx context.Context, exec provider.ToolExecutor, call provider.ToolCall) json.RawMessage {
	if exec == nil {
		out, _ := json.Marshal(map[string]string{"error": "Unknown tool: " + call.Name})
		return out
	}
	out := exec(ctx, call)
	if len(out) == 0 {
		return json.RawMessage("null")
	}
	return out
}

func (c *Client) params(system string, msgs []provider.Message, opts provider.Options, thinking bool) anthropic.MessageNewParams {
	modelID := opts.Model
	if modelID == "" {
		modelID = c.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:    anthropic.Model(modelID),
		Messages: toMessages(msgs),
	}
	if system != "" {
		block := anthropic.TextBlockParam{Text: system}
		if opts.CacheSystem {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}

	if !thinking {
		params.MaxTokens = int64(maxTokens)
		if opts.Temperature != nil {
			params.Temperature = anthropic.Float(*opts.Temperature)
		}
		return params
	}
	budget := opts.BudgetTokens
	if budget <= 0 {
		budget = DefaultThinkingBudget
	}
	// The thinking allowance counts against max_tokens and must leave room
	// for the answer.
	if maxTokens <= budget {
		maxTokens = budget + DefaultMaxTokens
	}
	params.MaxTokens = int64(maxTokens)
	params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
	return params
}

// create sends a non-streaming request and records its usage.
func (c *Client) create(ctx context.Context, op string, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, c.wrapErr(ctx, op, err)
	}
	c.recordUsage(op, string(params.Model), tokenUsage(msg.Usage))
	return msg, nil
}

func (c *Client) stream(ctx context.Context, op string, params anthropic.MessageNewParams) iter.Seq2[provider.Chunk, error] {
	return func(yield func(provider.Chunk, error) bool) {
		stream := c.api.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		var u provider.TokenUsage
		for stream.Next() {
			switch ev := stream.Current().AsAny().(type) {
			case anthropic.MessageStartEvent:
				u = tokenUsage(ev.Message.Usage)
			case anthropic.MessageDeltaEvent:
				u.OutputTokens = int(ev.Usage.OutputTokens)
			case anthropic.ContentBlockDeltaEvent:
				chunk, ok := deltaChunk(ev.Delta)
				if !ok {
					continue
				}
				if !yield(chunk, nil) {
					c.recordUsage(op, string(params.Model), u)
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(provider.Chunk{}, c.wrapErr(ctx, op, err))
			return
		}
		c.recordUsage(op, string(params.Model), u)
	}
}

func deltaChunk(d anthropic.RawContentBlockDeltaUnion) (provider.Chunk, bool) {
	switch d.Type {
	case "text_delta":
		if d.Text != "" {
			return provider.TextChunk(d.Text), true
		}
	case "thinking_delta":
		if d.Thinking != "" {
			return provider.ThinkingChunk(d.Thinking), true
		}
	}
	return provider.Chunk{}, false
}

// wrapErr maps an SDK failure onto the provider sentinels. Cancellation
// passes through unwrapped.
func (c *Client) wrapErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		c.logger.Error("anthropic API error", "op", op, "status", apiErr.StatusCode, "error", err)
		return statusError(op, apiErr.StatusCode, err.Error())
	}
	// Connection failures and mid-stream error events carry no status.
	c.logger.Error("anthropic request failed", "op", op, "error", err)
	return provider.NewError(providerName, op, fmt.Errorf("%w: %v", provider.ErrUnavailable, err), true)
}

func statusError(op string, status int, msg string) error {
	var sentinel error
	retryable := false
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = provider.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		sentinel, retryable = provider.ErrRateLimited, true
	case status >= 500:
		sentinel, retryable = provider.ErrUnavailable, true
	default:
		sentinel = provider.ErrInvalidRequest
	}
	return provider.NewError(providerName, op, fmt.Errorf("%w: HTTP %d: %s", sentinel, status, msg), retryable)
}

func (c *Client) recordUsage(op, modelID string, u provider.TokenUsage) {
	attrs := []any{
		"op", op,
		"model", modelID,
		"input_tokens", u.InputTokens,
		"output_tokens", u.OutputTokens,
	}
	if u.CacheCreationInputTokens > 0 {
		attrs = append(attrs, "cache_creation_input_tokens", u.CacheCreationInputTokens)
	}
	if u.CacheReadInputTokens > 0 {
		attrs = append(attrs, "cache_read_input_tokens", u.CacheReadInputTokens)
	}
	c.logger.Info("anthropic request", attrs...)

	if c.tracker != nil {
		c.tracker.Record(modelID, model.Usage{
			InputTokens:         u.InputTokens,
			OutputTokens:        u.OutputTokens,
			CacheReadTokens:     u.CacheReadInputTokens,
			CacheCreationTokens: u.CacheCreationInputTokens,
			Requests:            1,
		})
	}
}
