package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ledgerline/mosaic/internal/config"
)

// DefaultAnthropicModel is the model used when none is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicClient is the reasoning-variant adapter. It is the only
// provider that honors a reasoning budget: when one is requested the
// request enables extended thinking, and the returned thinking blocks
// are preserved so assistant turns replay verbatim on later calls.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	baseURL   string
	log       *slog.Logger
}

// AnthropicOption configures an AnthropicClient.
type AnthropicOption func(*AnthropicClient)

// WithAnthropicModel sets the model identifier.
func WithAnthropicModel(model string) AnthropicOption {
	return func(c *AnthropicClient) { c.model = anthropic.Model(model) }
}

// WithAnthropicMaxTokens caps output tokens per call. The cap must
// exceed any reasoning budget passed to Send; thinking tokens count
// against it.
func WithAnthropicMaxTokens(n int64) AnthropicOption {
	return func(c *AnthropicClient) { c.maxTokens = n }
}

// WithAnthropicBaseURL points the client at a proxy or gateway.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(c *AnthropicClient) { c.baseURL = url }
}

// WithAnthropicLogger sets the logger.
func WithAnthropicLogger(l *slog.Logger) AnthropicOption {
	return func(c *AnthropicClient) { c.log = l }
}

// NewAnthropicClient creates an adapter for the Anthropic Messages API.
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) *AnthropicClient {
	c := &AnthropicClient{
		model:     anthropic.Model(DefaultAnthropicModel),
		maxTokens: 8192,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	ro := []option.RequestOption{option.WithAPIKey(apiKey)}
	if c.baseURL != "" {
		ro = append(ro, option.WithBaseURL(c.baseURL))
	}
	c.client = anthropic.NewClient(ro...)
	return c
}

// Name implements Provider.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Send implements Provider. A reasoningBudget above zero enables
// extended thinking with that token budget.
func (c *AnthropicClient) Send(ctx context.Context, conversation []Message, system string, tools []ToolSpec, reasoningBudget int) (*Response, error) {
	if len(conversation) == 0 {
		return nil, &ProviderError{Provider: "anthropic", Err: fmt.Errorf("empty conversation")}
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  toAnthropicMessages(conversation),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}
	if reasoningBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(reasoningBudget))
	}

	c.log.Debug("chat request",
		"provider", "anthropic",
		"model", c.model,
		"messages", len(params.Messages),
		"tools", len(params.Tools),
		"reasoning_budget", reasoningBudget,
	)
	if enc, err := json.Marshal(params); err == nil {
		c.log.Log(ctx, config.LevelTrace, "chat request payload",
			"provider", "anthropic",
			"json", string(enc),
		)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Err: err}
	}

	resp := c.fromAnthropic(msg)
	c.log.Debug("chat response",
		"provider", "anthropic",
		"model", resp.Model,
		"stop_reason", resp.StopReason,
		"tool_calls", len(resp.ToolCalls),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return resp, nil
}

// HistoryMessage implements Provider. The full block list, thinking
// included, goes back into history: the API rejects a tool-use replay
// whose thinking blocks were dropped or altered.
func (c *AnthropicClient) HistoryMessage(resp *Response) Message {
	return assistantMessage(resp)
}

// ResultMessages implements Provider: a single user turn carrying one
// tool_result block per call, in call order.
func (c *AnthropicClient) ResultMessages(calls []ToolCall, results []ToolResult) []Message {
	blocks := make([]Block, 0, len(results))
	for _, r := range results {
		rc := r
		blocks = append(blocks, Block{Kind: BlockToolResult, Result: &rc})
	}
	return []Message{{Role: RoleUser, Blocks: blocks}}
}

func (c *AnthropicClient) fromAnthropic(msg *anthropic.Message) *Response {
	var (
		texts  []string
		calls  []ToolCall
		blocks []Block
	)
	for _, blk := range msg.Content {
		switch blk.Type {
		case "text":
			texts = append(texts, blk.Text)
			blocks = append(blocks, Block{Kind: BlockText, Text: blk.Text})
		case "tool_use":
			args := map[string]any{}
			if len(blk.Input) > 0 {
				if err := json.Unmarshal(blk.Input, &args); err != nil {
					c.log.Warn("unparseable tool input",
						"provider", "anthropic",
						"tool", blk.Name,
						"error", err,
					)
					args = map[string]any{}
				}
			}
			call := ToolCall{ID: blk.ID, Name: blk.Name, Args: args}
			calls = append(calls, call)
			cc := call
			blocks = append(blocks, Block{Kind: BlockToolUse, Call: &cc})
		case "thinking":
			blocks = append(blocks, Block{
				Kind:      BlockThinking,
				Text:      blk.Thinking,
				Signature: blk.Signature,
			})
		case "redacted_thinking":
			blocks = append(blocks, Block{Kind: BlockRedacted, Text: blk.Data})
		}
	}

	var stop StopReason
	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		stop = StopToolUse
	case anthropic.StopReasonEndTurn:
		stop = StopEndTurn
	default:
		stop = StopOther
	}

	return &Response{
		StopReason:   normalizeStopReason(stop, len(calls) > 0),
		Text:         strings.Join(texts, "\n"),
		ToolCalls:    calls,
		Blocks:       blocks,
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
}

func toAnthropicMessages(conversation []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(conversation))
	for _, m := range conversation {
		switch m.Role {
		case RoleAssistant:
			out = append(out, assistantToAnthropic(m))
		case RoleTool:
			// Flat tool turns from another provider's history shape
			// become user turns with a single tool_result block.
			out = append(out, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					toolResultParam(m.ToolCallID, m.Content),
				},
			})
		default:
			if len(m.Blocks) == 0 {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
				continue
			}
			content := make([]anthropic.ContentBlockParamUnion, 0, len(m.Blocks))
			for _, b := range m.Blocks {
				switch b.Kind {
				case BlockText:
					content = append(content, anthropic.NewTextBlock(b.Text))
				case BlockToolResult:
					if b.Result != nil {
						content = append(content, toolResultParam(b.Result.ID, b.Result.Content))
					}
				}
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: content,
			})
		}
	}
	return out
}

func assistantToAnthropic(m Message) anthropic.MessageParam {
	if len(m.Blocks) == 0 {
		return anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content))
	}
	content := make([]anthropic.ContentBlockParamUnion, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch b.Kind {
		case BlockText:
			if b.Text != "" {
				content = append(content, anthropic.NewTextBlock(b.Text))
			}
		case BlockToolUse:
			if b.Call == nil {
				continue
			}
			var input any = b.Call.Args
			if b.Call.Args == nil {
				input = map[string]any{}
			}
			content = append(content, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    b.Call.ID,
					Name:  b.Call.Name,
					Input: input,
				},
			})
		case BlockThinking:
			content = append(content, anthropic.ContentBlockParamUnion{
				OfThinking: &anthropic.ThinkingBlockParam{
					Thinking:  b.Text,
					Signature: b.Signature,
				},
			})
		case BlockRedacted:
			content = append(content, anthropic.ContentBlockParamUnion{
				OfRedactedThinking: &anthropic.RedactedThinkingBlockParam{
					Data: b.Text,
				},
			})
		}
	}
	return anthropic.MessageParam{
		Role:    anthropic.MessageParamRoleAssistant,
		Content: content,
	}
}

func toolResultParam(id, content string) anthropic.ContentBlockParamUnion {
	return anthropic.ContentBlockParamUnion{
		OfToolResult: &anthropic.ToolResultBlockParam{
			ToolUseID: id,
			Content: []anthropic.ToolResultBlockParamContentUnion{
				{OfText: &anthropic.TextBlockParam{Text: content}},
			},
		},
	}
}

func toAnthropicTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		props, _ := t.InputSchema["properties"].(map[string]any)
		if props == nil {
			props = map[string]any{}
		}
		var required []string
		switch req := t.InputSchema["required"].(type) {
		case []string:
			required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
		tp := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   required,
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tp})
	}
	return out
}
