// Package llm defines the vendor-neutral conversation model and the
// provider adapters that translate it to and from each backend's wire
// format. Sessions hold conversations exclusively in these canonical
// types; nothing outside this package touches a vendor SDK or wire
// struct.
package llm

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleTool carries a single tool result in the flat format used by
	// OpenAI-compatible backends. Anthropic-style backends carry results
	// as blocks inside a user turn instead.
	RoleTool Role = "tool"
)

// StopReason classifies why the model ended a turn.
type StopReason string

const (
	// StopToolUse means the model requested tool execution. A response
	// carries this reason if and only if it carries tool calls.
	StopToolUse StopReason = "tool_use"
	// StopEndTurn means the model finished its answer.
	StopEndTurn StopReason = "end_turn"
	// StopOther covers unrecognized or irregular stop conditions. The
	// session treats it as a flagged completion, not an error.
	StopOther StopReason = "other"
)

// BlockKind identifies a content block within a structured message.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	// BlockThinking is an extended-reasoning block from a provider that
	// supports it. Text holds the reasoning, Signature the provider's
	// opaque attestation; both must be replayed verbatim on later turns.
	BlockThinking BlockKind = "thinking"
	// BlockRedacted is reasoning the provider withheld. Text holds the
	// opaque payload, replayed as-is.
	BlockRedacted BlockKind = "redacted_thinking"
)

// ToolCall is a model request to execute one tool.
type ToolCall struct {
	// ID is an opaque correlation token, unique within a turn. Results
	// must echo it back.
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the outcome of one tool call. Content is typically a
// serialized payload or an in-band error marker.
type ToolResult struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Block is one element of a structured message.
type Block struct {
	Kind      BlockKind   `json:"kind"`
	Text      string      `json:"text,omitempty"`
	Call      *ToolCall   `json:"call,omitempty"`
	Result    *ToolResult `json:"result,omitempty"`
	Signature string      `json:"signature,omitempty"`
}

// Message is one conversation turn. Content holds plain text; Blocks
// holds structured content and takes precedence when non-empty. A
// conversation is an append-only []Message owned by exactly one session.
type Message struct {
	Role    Role    `json:"role"`
	Content string  `json:"content,omitempty"`
	Blocks  []Block `json:"blocks,omitempty"`
	// ToolCallID correlates a RoleTool message with its originating call.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// UserMessage builds a plain-text user turn.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// ApproxSize is a cheap character-count proxy for the message's token
// footprint, summing every text payload including tool arguments. It is
// deliberately not a token count; the history trimmer only needs a
// consistent order of magnitude.
func (m Message) ApproxSize() int {
	n := len(m.Content)
	for _, b := range m.Blocks {
		n += len(b.Text) + len(b.Signature)
		if b.Result != nil {
			n += len(b.Result.Content)
		}
		if b.Call != nil {
			n += len(b.Call.Name) + argsSize(b.Call.Args)
		}
	}
	return n
}

func argsSize(args map[string]any) int {
	n := 0
	for k, v := range args {
		n += len(k)
		if s, ok := v.(string); ok {
			n += len(s)
		} else {
			n += 16
		}
	}
	return n
}

// Response is the canonical result of one provider call.
type Response struct {
	StopReason StopReason `json:"stop_reason"`
	// Text is the concatenated textual content; may be empty when the
	// model stopped to use tools.
	Text string `json:"text"`
	// ToolCalls are the requested executions, in model order. Non-empty
	// exactly when StopReason is StopToolUse.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Blocks is the complete assistant content, preserved so the turn
	// can be replayed verbatim into history (including reasoning blocks).
	Blocks       []Block `json:"blocks,omitempty"`
	Model        string  `json:"model,omitempty"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
}

// ToolSpec describes one tool to the model: a name, a human description,
// and a JSON-Schema-shaped parameter object. This single format is
// translated by every adapter into its vendor's wire format.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// normalizeStopReason enforces the response invariant: tool_use exactly
// when calls are present. A vendor reason of tool_use without parseable
// calls degrades to StopOther so the session flags it rather than
// looping on an empty Tooling pass.
func normalizeStopReason(sr StopReason, hasCalls bool) StopReason {
	if hasCalls {
		return StopToolUse
	}
	if sr == StopToolUse {
		return StopOther
	}
	return sr
}

// assistantMessage serializes a model turn back into history. Structured
// content (tool calls, reasoning blocks) is preserved block-for-block;
// plain answers stay plain.
func assistantMessage(resp *Response) Message {
	if len(resp.Blocks) > 0 {
		return Message{Role: RoleAssistant, Blocks: resp.Blocks}
	}
	return Message{Role: RoleAssistant, Content: resp.Text}
}
