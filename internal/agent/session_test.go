package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ledgerline/mosaic/internal/llm"
	"github.com/ledgerline/mosaic/internal/tools"
)

// fakeProvider replays a scripted sequence of responses and records
// everything the session sends. After the script runs out, the last
// response repeats.
type fakeProvider struct {
	script        []*llm.Response
	errAt         map[int]error
	calls         int
	conversations [][]llm.Message
	systems       []string
	budgets       []int
	specCounts    []int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(ctx context.Context, conversation []llm.Message, system string, specs []llm.ToolSpec, reasoningBudget int) (*llm.Response, error) {
	idx := p.calls
	p.calls++

	conv := make([]llm.Message, len(conversation))
	copy(conv, conversation)
	p.conversations = append(p.conversations, conv)
	p.systems = append(p.systems, system)
	p.budgets = append(p.budgets, reasoningBudget)
	p.specCounts = append(p.specCounts, len(specs))

	if err, ok := p.errAt[idx]; ok {
		return nil, err
	}
	if idx >= len(p.script) {
		return p.script[len(p.script)-1], nil
	}
	return p.script[idx], nil
}

func (p *fakeProvider) HistoryMessage(resp *llm.Response) llm.Message {
	if len(resp.Blocks) > 0 {
		return llm.Message{Role: llm.RoleAssistant, Blocks: resp.Blocks}
	}
	return llm.Message{Role: llm.RoleAssistant, Content: resp.Text}
}

func (p *fakeProvider) ResultMessages(calls []llm.ToolCall, results []llm.ToolResult) []llm.Message {
	out := make([]llm.Message, 0, len(results))
	for _, r := range results {
		out = append(out, llm.Message{Role: llm.RoleTool, Content: r.Content, ToolCallID: r.ID})
	}
	return out
}

func toolUseResponse(text string, calls ...llm.ToolCall) *llm.Response {
	var blocks []llm.Block
	if text != "" {
		blocks = append(blocks, llm.Block{Kind: llm.BlockText, Text: text})
	}
	for i := range calls {
		c := calls[i]
		blocks = append(blocks, llm.Block{Kind: llm.BlockToolUse, Call: &c})
	}
	return &llm.Response{
		StopReason:   llm.StopToolUse,
		Text:         text,
		ToolCalls:    calls,
		Blocks:       blocks,
		InputTokens:  10,
		OutputTokens: 5,
	}
}

func endTurnResponse(text string) *llm.Response {
	return &llm.Response{
		StopReason:   llm.StopEndTurn,
		Text:         text,
		InputTokens:  10,
		OutputTokens: 5,
	}
}

func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(nil)
	r.Register(&tools.Tool{
		Name:        "echo",
		Description: "echo text back",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return tools.StringArg(args, "text"), nil
		},
	})
	return r
}

func TestSessionSingleTurn(t *testing.T) {
	p := &fakeProvider{script: []*llm.Response{endTurnResponse("the answer")}}
	s := NewSession(p, echoRegistry(t), WithSystem("be terse"), WithReasoningBudget(4000))

	res, err := s.Run(context.Background(), "what is up")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateDone || res.Text != "the answer" || res.Turns != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.UsedTools {
		t.Error("UsedTools = true for a single text turn")
	}
	if p.systems[0] != "be terse" {
		t.Errorf("system = %q", p.systems[0])
	}
	if p.budgets[0] != 4000 {
		t.Errorf("reasoning budget = %d", p.budgets[0])
	}
	if p.specCounts[0] != 1 {
		t.Errorf("tool specs sent = %d", p.specCounts[0])
	}

	conv := s.Conversation()
	if len(conv) != 2 || conv[0].Role != llm.RoleUser || conv[1].Role != llm.RoleAssistant {
		t.Errorf("final conversation = %+v", conv)
	}
}

func TestSessionToolLoop(t *testing.T) {
	p := &fakeProvider{script: []*llm.Response{
		toolUseResponse("Reading files.",
			llm.ToolCall{ID: "c1", Name: "echo", Args: map[string]any{"text": "first"}},
			llm.ToolCall{ID: "c2", Name: "echo", Args: map[string]any{"text": "second"}},
		),
		endTurnResponse("all read"),
	}}
	s := NewSession(p, echoRegistry(t))

	res, err := s.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateDone || res.Text != "all read" || res.Turns != 2 {
		t.Errorf("result = %+v", res)
	}
	if !res.UsedTools {
		t.Error("UsedTools = false")
	}
	if res.InputTokens != 20 || res.OutputTokens != 10 {
		t.Errorf("token totals = %d/%d", res.InputTokens, res.OutputTokens)
	}

	// Second request must carry: user, assistant turn, then one result
	// per call in call order.
	conv := p.conversations[1]
	if len(conv) != 4 {
		t.Fatalf("second request conversation = %d messages", len(conv))
	}
	if conv[1].Role != llm.RoleAssistant {
		t.Errorf("message 1 role = %q", conv[1].Role)
	}
	if conv[2].ToolCallID != "c1" || conv[2].Content != "first" {
		t.Errorf("first result = %+v", conv[2])
	}
	if conv[3].ToolCallID != "c2" || conv[3].Content != "second" {
		t.Errorf("second result = %+v", conv[3])
	}
}

func TestSessionToolErrorContinues(t *testing.T) {
	r := tools.NewRegistry(nil)
	r.Register(&tools.Tool{
		Name:       "save",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("disk full")
		},
	})
	p := &fakeProvider{script: []*llm.Response{
		toolUseResponse("", llm.ToolCall{ID: "c1", Name: "save"}),
		endTurnResponse("noted the failure"),
	}}
	s := NewSession(p, r)

	res, err := s.Run(context.Background(), "save it")
	if err != nil {
		t.Fatalf("session terminated on tool failure: %v", err)
	}
	if res.State != StateDone || res.Text != "noted the failure" {
		t.Errorf("result = %+v", res)
	}

	// The model saw the failure as an in-band payload.
	conv := p.conversations[1]
	last := conv[len(conv)-1]
	var payload map[string]string
	if err := json.Unmarshal([]byte(last.Content), &payload); err != nil {
		t.Fatalf("result content %q is not JSON: %v", last.Content, err)
	}
	if payload["error"] != "disk full" {
		t.Errorf("payload = %v", payload)
	}
}

func TestSessionMaxTurnsAborts(t *testing.T) {
	p := &fakeProvider{script: []*llm.Response{
		toolUseResponse("still working", llm.ToolCall{ID: "c", Name: "echo", Args: map[string]any{"text": "x"}}),
	}}
	s := NewSession(p, echoRegistry(t), WithMaxTurns(3))

	res, err := s.Run(context.Background(), "never finishes")
	if err != nil {
		t.Fatalf("abort must be a soft failure, got error: %v", err)
	}
	if !res.Aborted() {
		t.Fatalf("state = %q, want aborted", res.State)
	}
	if res.Turns != 3 || p.calls != 3 {
		t.Errorf("turns = %d, provider calls = %d, want 3/3", res.Turns, p.calls)
	}
	if res.Text != "still working" {
		t.Errorf("aborted text = %q, want last available text", res.Text)
	}
}

func TestSessionIrregularCompletion(t *testing.T) {
	p := &fakeProvider{script: []*llm.Response{
		{StopReason: llm.StopOther, Text: "partial out"},
	}}
	s := NewSession(p, echoRegistry(t))

	res, err := s.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateDone || !res.Irregular {
		t.Errorf("result = %+v, want flagged done", res)
	}
	if res.Text != "partial out" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestSessionProviderErrorPropagates(t *testing.T) {
	p := &fakeProvider{
		script: []*llm.Response{endTurnResponse("unused")},
		errAt:  map[int]error{0: &llm.ProviderError{Provider: "fake", Status: 500, Body: "overloaded"}},
	}
	s := NewSession(p, echoRegistry(t))

	_, err := s.Run(context.Background(), "go")
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error chain lost ProviderError: %v", err)
	}
	if s.State() != StateAborted {
		t.Errorf("state = %q", s.State())
	}
}

func TestSessionTrimsBeforeRequest(t *testing.T) {
	big := strings.Repeat("y", 800)
	r := tools.NewRegistry(nil)
	r.Register(&tools.Tool{
		Name:       "dump",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return big, nil
		},
	})
	p := &fakeProvider{script: []*llm.Response{
		toolUseResponse("", llm.ToolCall{ID: "c1", Name: "dump"}),
		toolUseResponse("", llm.ToolCall{ID: "c2", Name: "dump"}),
		endTurnResponse("done"),
	}}
	s := NewSession(p, r, WithHistoryBudget(200))

	if _, err := s.Run(context.Background(), "go"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.calls != 3 {
		t.Fatalf("provider calls = %d", p.calls)
	}

	// Third request: first dump's payload is stale (outside the last
	// two messages) and must be a placeholder; second dump is recent
	// and must be intact.
	conv := p.conversations[2]
	var stale, fresh *llm.Message
	for i := range conv {
		if conv[i].ToolCallID == "c1" {
			stale = &conv[i]
		}
		if conv[i].ToolCallID == "c2" {
			fresh = &conv[i]
		}
	}
	if stale == nil || fresh == nil {
		t.Fatalf("results missing from conversation: %+v", conv)
	}
	if stale.Content != HistoryPlaceholder {
		t.Errorf("stale payload not trimmed: %d chars", len(stale.Content))
	}
	if fresh.Content != big {
		t.Errorf("fresh payload modified: %d chars", len(fresh.Content))
	}
}

func TestSessionSingleUse(t *testing.T) {
	p := &fakeProvider{script: []*llm.Response{endTurnResponse("done")}}
	s := NewSession(p, echoRegistry(t))

	if _, err := s.Run(context.Background(), "go"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := s.Run(context.Background(), "again"); err == nil {
		t.Fatal("second Run on a consumed session must fail")
	}
}

func TestSessionCancelledBetweenTurns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &fakeProvider{script: []*llm.Response{endTurnResponse("unused")}}
	s := NewSession(p, echoRegistry(t))

	_, err := s.Run(ctx, "go")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v", err)
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times after cancellation", p.calls)
	}
}
