// Package tools provides the tool registry and dispatch framework.
//
// Each pipeline stage assembles its own Registry, so a stage can only
// call what it was explicitly given. Dispatch never returns an error to
// the caller: every failure (unknown tool, handler error, panic) comes
// back as an in-band JSON payload for the model to read and react to.
// The session loop therefore never aborts because a tool misbehaved.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerline/mosaic/internal/llm"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON-Schema object describing the arguments.
	Parameters map[string]any
	Handler    func(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the tools exposed to one session.
type Registry struct {
	order []string
	tools map[string]*Tool
	log   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		tools: make(map[string]*Tool),
		log:   log,
	}
}

// Register adds a tool. Re-registering a name replaces the handler but
// keeps its original position in the spec order.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, nil if absent.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Specs returns the vendor-neutral tool descriptions for the model, in
// registration order so requests are reproducible.
func (r *Registry) Specs() []llm.ToolSpec {
	out := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, llm.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return out
}

// Dispatch executes one tool call and always produces a result. The
// result content is the handler's output on success, or an ErrorPayload
// describing the failure.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	tool := r.tools[call.Name]
	if tool == nil {
		r.log.Warn("unknown tool requested", "tool", call.Name, "session", SessionIDFromContext(ctx))
		return llm.ToolResult{ID: call.ID, Content: ErrorPayload(fmt.Sprintf("unknown tool: %s", call.Name))}
	}

	start := time.Now()
	out, err := r.run(ctx, tool, call.Args)
	elapsed := time.Since(start)

	if err != nil {
		r.log.Warn("tool failed",
			"tool", call.Name,
			"session", SessionIDFromContext(ctx),
			"duration", elapsed,
			"error", err,
		)
		return llm.ToolResult{ID: call.ID, Content: ErrorPayload(err.Error())}
	}

	r.log.Debug("tool executed",
		"tool", call.Name,
		"session", SessionIDFromContext(ctx),
		"duration", elapsed,
		"output_chars", len(out),
	)
	return llm.ToolResult{ID: call.ID, Content: out}
}

// DispatchAll executes calls in order and returns results in the same
// order, one per call.
func (r *Registry) DispatchAll(ctx context.Context, calls []llm.ToolCall) []llm.ToolResult {
	out := make([]llm.ToolResult, 0, len(calls))
	for _, c := range calls {
		out = append(out, r.Dispatch(ctx, c))
	}
	return out
}

func (r *Registry) run(ctx context.Context, tool *Tool, args map[string]any) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool panicked: %v", p)
		}
	}()
	if args == nil {
		args = map[string]any{}
	}
	return tool.Handler(ctx, args)
}

// ErrorPayload wraps a failure message as the in-band JSON object tool
// results use for errors.
func ErrorPayload(msg string) string {
	b, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"tool failed"}`
	}
	return string(b)
}

// StringArg extracts a string argument, empty if absent or mistyped.
func StringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// IntArg extracts an integer argument. JSON numbers arrive as float64;
// def covers absent or mistyped values.
func IntArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// BoolArg extracts a boolean argument with a default.
func BoolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
