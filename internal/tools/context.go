package tools

import "context"

type contextKey string

const sessionIDKey contextKey = "session_id"
const stageKey contextKey = "stage"

// WithSessionID adds the session correlation ID to the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session correlation ID from the
// context. Returns "none" if not set.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok && id != "" {
		return id
	}
	return "none"
}

// WithStage records which pipeline stage owns this context.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext extracts the pipeline stage name. Returns "" if no
// stage was set.
func StageFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(stageKey).(string); ok {
		return s
	}
	return ""
}
