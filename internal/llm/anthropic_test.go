package llm

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestAnthropicMessageConversion(t *testing.T) {
	conv := []Message{
		UserMessage("analyze AAPL"),
		{Role: RoleAssistant, Blocks: []Block{
			{Kind: BlockText, Text: "Checking."},
			{Kind: BlockToolUse, Call: &ToolCall{
				ID:   "toolu_01",
				Name: "read_file",
				Args: map[string]any{"path": "AAPL_10K.txt"},
			}},
		}},
		{Role: RoleUser, Blocks: []Block{
			{Kind: BlockToolResult, Result: &ToolResult{ID: "toolu_01", Content: "filing contents"}},
		}},
	}

	msgs := toAnthropicMessages(conv)
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}

	if msgs[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("msg 0 role = %q", msgs[0].Role)
	}
	if msgs[0].Content[0].OfText == nil || msgs[0].Content[0].OfText.Text != "analyze AAPL" {
		t.Errorf("msg 0 content = %+v", msgs[0].Content)
	}

	asst := msgs[1]
	if asst.Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("msg 1 role = %q", asst.Role)
	}
	if len(asst.Content) != 2 {
		t.Fatalf("assistant blocks = %d, want 2", len(asst.Content))
	}
	if asst.Content[0].OfText == nil || asst.Content[0].OfText.Text != "Checking." {
		t.Errorf("assistant text = %+v", asst.Content[0])
	}
	tu := asst.Content[1].OfToolUse
	if tu == nil {
		t.Fatalf("assistant block 1 = %+v, want tool use", asst.Content[1])
	}
	if tu.ID != "toolu_01" || tu.Name != "read_file" {
		t.Errorf("tool use = %+v", tu)
	}
	args, ok := tu.Input.(map[string]any)
	if !ok || args["path"] != "AAPL_10K.txt" {
		t.Errorf("tool input = %#v", tu.Input)
	}

	res := msgs[2]
	if res.Role != anthropic.MessageParamRoleUser {
		t.Errorf("msg 2 role = %q", res.Role)
	}
	tr := res.Content[0].OfToolResult
	if tr == nil {
		t.Fatalf("msg 2 block = %+v, want tool result", res.Content[0])
	}
	if tr.ToolUseID != "toolu_01" {
		t.Errorf("tool use id = %q", tr.ToolUseID)
	}
	if len(tr.Content) != 1 || tr.Content[0].OfText == nil || tr.Content[0].OfText.Text != "filing contents" {
		t.Errorf("tool result content = %+v", tr.Content)
	}
}

func TestAnthropicFlatToolTurnConversion(t *testing.T) {
	// A flat tool turn written by an OpenAI-style adapter becomes a
	// user turn carrying one tool_result block.
	conv := []Message{
		UserMessage("go"),
		{Role: RoleTool, Content: "result payload", ToolCallID: "toolu_02"},
	}
	msgs := toAnthropicMessages(conv)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d", len(msgs))
	}
	if msgs[1].Role != anthropic.MessageParamRoleUser {
		t.Errorf("role = %q", msgs[1].Role)
	}
	tr := msgs[1].Content[0].OfToolResult
	if tr == nil || tr.ToolUseID != "toolu_02" {
		t.Errorf("conversion = %+v", msgs[1].Content[0])
	}
}

func TestAnthropicThinkingReplay(t *testing.T) {
	m := Message{Role: RoleAssistant, Blocks: []Block{
		{Kind: BlockThinking, Text: "step by step", Signature: "sig123"},
		{Kind: BlockRedacted, Text: "opaque-payload"},
		{Kind: BlockText, Text: "The answer."},
	}}
	param := assistantToAnthropic(m)
	if len(param.Content) != 3 {
		t.Fatalf("blocks = %d, want 3", len(param.Content))
	}
	th := param.Content[0].OfThinking
	if th == nil || th.Thinking != "step by step" || th.Signature != "sig123" {
		t.Errorf("thinking block = %+v", param.Content[0])
	}
	rd := param.Content[1].OfRedactedThinking
	if rd == nil || rd.Data != "opaque-payload" {
		t.Errorf("redacted block = %+v", param.Content[1])
	}
	if param.Content[2].OfText == nil {
		t.Errorf("text block = %+v", param.Content[2])
	}
}

func TestAnthropicToolConversion(t *testing.T) {
	specs := []ToolSpec{{
		Name:        "save_artifact",
		Description: "Persist a named artifact",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []any{"name", "content"},
		},
	}}
	tools := toAnthropicTools(specs)
	if len(tools) != 1 {
		t.Fatalf("tools = %d", len(tools))
	}
	tp := tools[0].OfTool
	if tp == nil {
		t.Fatal("expected OfTool variant")
	}
	if tp.Name != "save_artifact" {
		t.Errorf("name = %q", tp.Name)
	}
	props, ok := tp.InputSchema.Properties.(map[string]any)
	if !ok {
		t.Fatalf("properties = %#v", tp.InputSchema.Properties)
	}
	if _, ok := props["name"]; !ok {
		t.Errorf("properties = %v", props)
	}
	if len(tp.InputSchema.Required) != 2 || tp.InputSchema.Required[0] != "name" {
		t.Errorf("required = %v", tp.InputSchema.Required)
	}
}

func TestAnthropicFromResponse(t *testing.T) {
	c := NewAnthropicClient("test-key")

	t.Run("tool use", func(t *testing.T) {
		msg := &anthropic.Message{
			Model: anthropic.Model("claude-sonnet-4-5"),
			Content: []anthropic.ContentBlockUnion{
				{Type: "text", Text: "Let me check."},
				{Type: "tool_use", ID: "toolu_01", Name: "read_file",
					Input: json.RawMessage(`{"path":"notes.md"}`)},
			},
			StopReason: anthropic.StopReasonToolUse,
			Usage:      anthropic.Usage{InputTokens: 120, OutputTokens: 30},
		}
		resp := c.fromAnthropic(msg)
		if resp.StopReason != StopToolUse {
			t.Errorf("stop reason = %q", resp.StopReason)
		}
		if len(resp.ToolCalls) != 1 {
			t.Fatalf("tool calls = %d", len(resp.ToolCalls))
		}
		call := resp.ToolCalls[0]
		if call.ID != "toolu_01" || call.Name != "read_file" || call.Args["path"] != "notes.md" {
			t.Errorf("call = %+v", call)
		}
		if resp.Text != "Let me check." {
			t.Errorf("text = %q", resp.Text)
		}
		if resp.InputTokens != 120 || resp.OutputTokens != 30 {
			t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
		}
		if len(resp.Blocks) != 2 || resp.Blocks[1].Kind != BlockToolUse {
			t.Errorf("blocks = %+v", resp.Blocks)
		}
	})

	t.Run("declared tool use without calls degrades", func(t *testing.T) {
		msg := &anthropic.Message{
			Content:    []anthropic.ContentBlockUnion{{Type: "text", Text: "hm"}},
			StopReason: anthropic.StopReasonToolUse,
		}
		resp := c.fromAnthropic(msg)
		if resp.StopReason != StopOther {
			t.Errorf("stop reason = %q, want %q", resp.StopReason, StopOther)
		}
	})

	t.Run("thinking blocks preserved", func(t *testing.T) {
		msg := &anthropic.Message{
			Content: []anthropic.ContentBlockUnion{
				{Type: "thinking", Thinking: "reasoning chain", Signature: "sig"},
				{Type: "redacted_thinking", Data: "opaque"},
				{Type: "text", Text: "Answer."},
			},
			StopReason: anthropic.StopReasonEndTurn,
		}
		resp := c.fromAnthropic(msg)
		if resp.StopReason != StopEndTurn {
			t.Errorf("stop reason = %q", resp.StopReason)
		}
		if len(resp.Blocks) != 3 {
			t.Fatalf("blocks = %d", len(resp.Blocks))
		}
		if resp.Blocks[0].Kind != BlockThinking || resp.Blocks[0].Text != "reasoning chain" || resp.Blocks[0].Signature != "sig" {
			t.Errorf("thinking block = %+v", resp.Blocks[0])
		}
		if resp.Blocks[1].Kind != BlockRedacted || resp.Blocks[1].Text != "opaque" {
			t.Errorf("redacted block = %+v", resp.Blocks[1])
		}
		// Thinking text never leaks into the answer text.
		if resp.Text != "Answer." {
			t.Errorf("text = %q", resp.Text)
		}
	})

	t.Run("max tokens maps to other", func(t *testing.T) {
		msg := &anthropic.Message{
			Content:    []anthropic.ContentBlockUnion{{Type: "text", Text: "truncat"}},
			StopReason: anthropic.StopReasonMaxTokens,
		}
		resp := c.fromAnthropic(msg)
		if resp.StopReason != StopOther {
			t.Errorf("stop reason = %q, want %q", resp.StopReason, StopOther)
		}
	})
}

func TestAnthropicResultMessages(t *testing.T) {
	c := NewAnthropicClient("test-key")
	calls := []ToolCall{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}}
	results := []ToolResult{{ID: "a", Content: "1"}, {ID: "b", Content: "2"}}

	msgs := c.ResultMessages(calls, results)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want one user turn", len(msgs))
	}
	m := msgs[0]
	if m.Role != RoleUser {
		t.Errorf("role = %q", m.Role)
	}
	if len(m.Blocks) != 2 {
		t.Fatalf("blocks = %d", len(m.Blocks))
	}
	for i, b := range m.Blocks {
		if b.Kind != BlockToolResult || b.Result == nil || b.Result.ID != results[i].ID {
			t.Errorf("block %d = %+v", i, b)
		}
	}
}
