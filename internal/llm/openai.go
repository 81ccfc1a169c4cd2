package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/mosaic/internal/config"
	"github.com/ledgerline/mosaic/internal/httpkit"
)

// DefaultOpenAIBaseURL is used when no endpoint is configured.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient speaks the chat completions protocol with function
// calling. It is the standard-variant adapter: no extended reasoning, so
// a requested budget is silently ignored. The same wire format is served
// by llama.cpp, Ollama, and vLLM, which is why the local variant
// delegates here.
type OpenAIClient struct {
	name      string
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	http      *http.Client
	log       *slog.Logger
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithOpenAIModel sets the model identifier sent with every request.
func WithOpenAIModel(model string) OpenAIOption {
	return func(c *OpenAIClient) { c.model = model }
}

// WithOpenAIMaxTokens caps output tokens per call.
func WithOpenAIMaxTokens(n int) OpenAIOption {
	return func(c *OpenAIClient) { c.maxTokens = n }
}

// WithOpenAILogger sets the logger.
func WithOpenAILogger(l *slog.Logger) OpenAIOption {
	return func(c *OpenAIClient) { c.log = l }
}

// WithOpenAIHTTPClient overrides the HTTP client, mainly for tests.
func WithOpenAIHTTPClient(h *http.Client) OpenAIOption {
	return func(c *OpenAIClient) { c.http = h }
}

// withOpenAIName rebrands the client for composing variants.
func withOpenAIName(name string) OpenAIOption {
	return func(c *OpenAIClient) { c.name = name }
}

// NewOpenAIClient creates an adapter for an OpenAI-compatible endpoint.
// An empty baseURL targets the OpenAI API itself.
func NewOpenAIClient(baseURL, apiKey string, opts ...OpenAIOption) *OpenAIClient {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	c := &OpenAIClient{
		name:      "openai",
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     "gpt-4o",
		maxTokens: 8192,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		// No overall timeout: a completion arrives only when generation
		// finishes, which on local hardware can take minutes.
		c.http = httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithResponseHeaderTimeout(10*time.Minute),
		)
	}
	return c
}

// Wire format for the chat completions endpoint.

type openaiRequest struct {
	Model     string          `json:"model"`
	Messages  []openaiMessage `json:"messages"`
	Tools     []openaiTool    `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openaiFuncCall `json:"function"`
}

type openaiFuncCall struct {
	Name string `json:"name"`
	// Arguments is a JSON object encoded as a string, per the protocol.
	Arguments string `json:"arguments"`
}

type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Name implements Provider.
func (c *OpenAIClient) Name() string { return c.name }

// Send implements Provider. reasoningBudget is ignored: this protocol
// has no thinking phase, and requesting one must not change behavior.
func (c *OpenAIClient) Send(ctx context.Context, conversation []Message, system string, tools []ToolSpec, reasoningBudget int) (*Response, error) {
	if len(conversation) == 0 {
		return nil, &ProviderError{Provider: c.name, Err: fmt.Errorf("empty conversation")}
	}

	req := openaiRequest{
		Model:     c.model,
		Messages:  toOpenAIMessages(conversation, system),
		Tools:     toOpenAITools(tools),
		MaxTokens: c.maxTokens,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Err: fmt.Errorf("marshal request: %w", err)}
	}

	c.log.Debug("chat request",
		"provider", c.name,
		"model", c.model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)
	c.log.Log(ctx, config.LevelTrace, "chat request payload",
		"provider", c.name,
		"json", string(body),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider: c.name,
			Status:   httpResp.StatusCode,
			Body:     httpkit.ReadErrorBody(httpResp.Body, 4096),
		}
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Err: fmt.Errorf("read response: %w", err)}
	}
	c.log.Log(ctx, config.LevelTrace, "chat response payload",
		"provider", c.name,
		"json", string(raw),
	)

	var wire openaiResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ProviderError{Provider: c.name, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(wire.Choices) == 0 {
		return nil, &ProviderError{Provider: c.name, Body: "response contained no choices"}
	}

	resp := c.fromWire(&wire)
	c.log.Debug("chat response",
		"provider", c.name,
		"model", resp.Model,
		"stop_reason", resp.StopReason,
		"tool_calls", len(resp.ToolCalls),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return resp, nil
}

// HistoryMessage implements Provider.
func (c *OpenAIClient) HistoryMessage(resp *Response) Message {
	return assistantMessage(resp)
}

// ResultMessages implements Provider: one flat tool turn per result,
// correlated by call ID.
func (c *OpenAIClient) ResultMessages(calls []ToolCall, results []ToolResult) []Message {
	out := make([]Message, 0, len(results))
	for _, r := range results {
		out = append(out, Message{
			Role:       RoleTool,
			Content:    r.Content,
			ToolCallID: r.ID,
		})
	}
	return out
}

func (c *OpenAIClient) fromWire(wire *openaiResponse) *Response {
	choice := wire.Choices[0]

	var calls []ToolCall
	var blocks []Block
	if choice.Message.Content != "" {
		blocks = append(blocks, Block{Kind: BlockText, Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			// Permissive local servers omit IDs; results still need a
			// correlation token.
			id = "call_" + uuid.NewString()[:8]
		}
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				c.log.Warn("unparseable tool arguments",
					"provider", c.name,
					"tool", tc.Function.Name,
					"error", err,
				)
				args = map[string]any{}
			}
		}
		call := ToolCall{ID: id, Name: tc.Function.Name, Args: args}
		calls = append(calls, call)
		callCopy := call
		blocks = append(blocks, Block{Kind: BlockToolUse, Call: &callCopy})
	}

	stop := finishToStopReason(choice.FinishReason, len(calls) > 0)
	return &Response{
		StopReason:   normalizeStopReason(stop, len(calls) > 0),
		Text:         choice.Message.Content,
		ToolCalls:    calls,
		Blocks:       blocks,
		Model:        wire.Model,
		InputTokens:  wire.Usage.PromptTokens,
		OutputTokens: wire.Usage.CompletionTokens,
	}
}

// finishToStopReason maps the protocol's finish_reason to the canonical
// stop reason. A response carrying tool calls is tool use regardless of
// the declared reason; some servers report "stop" alongside calls.
func finishToStopReason(finish string, hasCalls bool) StopReason {
	if hasCalls {
		return StopToolUse
	}
	switch finish {
	case "stop":
		return StopEndTurn
	case "tool_calls":
		return StopToolUse
	default:
		return StopOther
	}
}

// toOpenAIMessages converts the canonical conversation. System
// instructions travel as the leading system message in this protocol.
func toOpenAIMessages(conversation []Message, system string) []openaiMessage {
	out := make([]openaiMessage, 0, len(conversation)+1)
	if system != "" {
		out = append(out, openaiMessage{Role: "system", Content: system})
	}

	for _, m := range conversation {
		switch m.Role {
		case RoleTool:
			out = append(out, openaiMessage{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case RoleAssistant:
			out = append(out, assistantToOpenAI(m))
		default:
			if len(m.Blocks) == 0 {
				out = append(out, openaiMessage{Role: string(m.Role), Content: m.Content})
				continue
			}
			// Block-style user turns: flatten text, and re-emit any
			// embedded tool results as flat tool turns.
			for _, b := range m.Blocks {
				switch b.Kind {
				case BlockText:
					out = append(out, openaiMessage{Role: "user", Content: b.Text})
				case BlockToolResult:
					if b.Result != nil {
						out = append(out, openaiMessage{
							Role:       "tool",
							Content:    b.Result.Content,
							ToolCallID: b.Result.ID,
						})
					}
				}
			}
		}
	}
	return out
}

func assistantToOpenAI(m Message) openaiMessage {
	if len(m.Blocks) == 0 {
		return openaiMessage{Role: "assistant", Content: m.Content}
	}

	var texts []string
	var calls []openaiToolCall
	for _, b := range m.Blocks {
		switch b.Kind {
		case BlockText:
			texts = append(texts, b.Text)
		case BlockToolUse:
			if b.Call == nil {
				continue
			}
			args := "{}"
			if len(b.Call.Args) > 0 {
				if enc, err := json.Marshal(b.Call.Args); err == nil {
					args = string(enc)
				}
			}
			calls = append(calls, openaiToolCall{
				ID:   b.Call.ID,
				Type: "function",
				Function: openaiFuncCall{
					Name:      b.Call.Name,
					Arguments: args,
				},
			})
		}
		// Thinking blocks have no representation in this protocol.
	}
	return openaiMessage{
		Role:      "assistant",
		Content:   strings.Join(texts, "\n"),
		ToolCalls: calls,
	}
}

func toOpenAITools(tools []ToolSpec) []openaiTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openaiTool, 0, len(tools))
	for _, t := range tools {
		params := t.InputSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
