// Package agent implements the session loop that drives one unit of
// pipeline work: send the conversation, execute whatever tools the
// model requests, append the results, and repeat until the model
// finishes or the turn budget runs out.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/mosaic/internal/llm"
	"github.com/ledgerline/mosaic/internal/tools"
)

// State is the session's position in its lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateTooling    State = "tooling"
	StateDone       State = "done"
	StateAborted    State = "aborted"
)

const (
	defaultMaxTurns      = 25
	defaultHistoryBudget = 400_000
)

// Session owns one conversation and drives it to completion. Sessions
// are single-use: created fresh per work item, discarded after their
// final output. Conversations are never shared between sessions.
type Session struct {
	id       string
	stage    string
	provider llm.Provider
	registry *tools.Registry
	system   string

	maxTurns      int
	historyBudget int
	reasoning     int
	log           *slog.Logger

	conversation []llm.Message
	state        State
	turns        int
	totalInput   int
	totalOutput  int
	usedTools    bool
	irregular    bool
	lastText     string
	lastModel    string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSystem sets the system instructions sent with every request.
func WithSystem(system string) SessionOption {
	return func(s *Session) { s.system = system }
}

// WithMaxTurns caps the number of provider round trips.
func WithMaxTurns(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithHistoryBudget sets the approximate character ceiling enforced
// before every request.
func WithHistoryBudget(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.historyBudget = n
		}
	}
}

// WithReasoningBudget requests an extended thinking phase with the
// given token budget. Providers without the capability ignore it.
func WithReasoningBudget(n int) SessionOption {
	return func(s *Session) { s.reasoning = n }
}

// WithStage labels the session with its pipeline stage for logs.
func WithStage(stage string) SessionOption {
	return func(s *Session) { s.stage = stage }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// NewSession creates an idle session bound to one provider and one
// tool registry.
func NewSession(provider llm.Provider, registry *tools.Registry, opts ...SessionOption) *Session {
	sid, _ := uuid.NewV7()
	s := &Session{
		id:            sid.String(),
		provider:      provider,
		registry:      registry,
		maxTurns:      defaultMaxTurns,
		historyBudget: defaultHistoryBudget,
		log:           slog.Default(),
		state:         StateIdle,
	}
	for _, o := range opts {
		o(s)
	}
	if s.registry == nil {
		s.registry = tools.NewRegistry(s.log)
	}
	return s
}

// ID returns the session correlation ID.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Conversation exposes the history for inspection. Callers must treat
// it as read-only.
func (s *Session) Conversation() []llm.Message { return s.conversation }

// Result is the outcome of a session run.
type Result struct {
	// Text is the session's final output. For an aborted session it is
	// the last text produced, possibly from an incomplete turn, and may
	// be empty.
	Text string
	// State is StateDone or StateAborted.
	State State
	// Irregular marks a completion whose final stop condition was
	// neither tool use nor a normal end of turn.
	Irregular    bool
	Turns        int
	InputTokens  int
	OutputTokens int
	// Model is the model name reported by the provider, from the most
	// recent response that carried one.
	Model string
	// UsedTools reports whether any turn requested tool execution.
	UsedTools bool
}

// Aborted reports whether the session hit its turn ceiling.
func (r *Result) Aborted() bool { return r.State == StateAborted }

// Run starts the session with the given task message and drives it to
// completion. It returns an error only for provider failures and
// cancellation; running out of turns is a soft failure reported through
// Result.State.
func (s *Session) Run(ctx context.Context, task string) (*Result, error) {
	if s.state != StateIdle {
		return nil, fmt.Errorf("session %s already consumed (state %s)", s.id, s.state)
	}
	s.conversation = append(s.conversation, llm.UserMessage(task))

	s.log.Info("session started",
		"session", s.id,
		"stage", s.stage,
		"provider", s.provider.Name(),
		"tools", len(s.registry.Names()),
		"max_turns", s.maxTurns,
	)
	return s.resume(ctx)
}

// Continue appends a follow-up user instruction to a completed session
// and resumes the loop. The turn counter carries over; the corrective
// pass spends the same budget as the original run.
func (s *Session) Continue(ctx context.Context, instruction string) (*Result, error) {
	if s.state != StateDone {
		return nil, fmt.Errorf("session %s cannot continue from state %s", s.id, s.state)
	}
	s.conversation = append(s.conversation, llm.UserMessage(instruction))
	s.irregular = false
	return s.resume(ctx)
}

func (s *Session) resume(ctx context.Context) (*Result, error) {
	ctx = tools.WithSessionID(ctx, s.id)
	if s.stage != "" {
		ctx = tools.WithStage(ctx, s.stage)
	}
	start := time.Now()

	for {
		// The provider call itself is not interruptible; cancellation
		// and the turn ceiling are both checked at turn boundaries only.
		if err := ctx.Err(); err != nil {
			s.state = StateAborted
			return nil, fmt.Errorf("session cancelled: %w", err)
		}
		if s.turns >= s.maxTurns {
			s.state = StateAborted
			s.log.Warn("session turn budget exhausted",
				"session", s.id,
				"stage", s.stage,
				"max_turns", s.maxTurns,
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			return s.result(), nil
		}

		s.state = StateRequesting
		s.turns++
		s.conversation = TrimHistory(s.conversation, s.historyBudget)

		turnStart := time.Now()
		resp, err := s.provider.Send(ctx, s.conversation, s.system, s.registry.Specs(), s.reasoning)
		if err != nil {
			s.state = StateAborted
			return nil, fmt.Errorf("provider send (turn %d): %w", s.turns, err)
		}
		s.totalInput += resp.InputTokens
		s.totalOutput += resp.OutputTokens
		if resp.Model != "" {
			s.lastModel = resp.Model
		}

		s.log.Debug("session turn",
			"session", s.id,
			"stage", s.stage,
			"turn", s.turns,
			"stop_reason", resp.StopReason,
			"tool_calls", len(resp.ToolCalls),
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
			"elapsed", time.Since(turnStart).Round(time.Millisecond),
		)

		s.conversation = append(s.conversation, s.provider.HistoryMessage(resp))

		switch resp.StopReason {
		case llm.StopToolUse:
			s.state = StateTooling
			s.usedTools = true
			if resp.Text != "" {
				s.lastText = resp.Text
			}
			results := s.registry.DispatchAll(ctx, resp.ToolCalls)
			s.conversation = append(s.conversation, s.provider.ResultMessages(resp.ToolCalls, results)...)

		case llm.StopEndTurn:
			s.state = StateDone
			s.lastText = resp.Text
			s.log.Info("session completed",
				"session", s.id,
				"stage", s.stage,
				"turns", s.turns,
				"input_tokens", s.totalInput,
				"output_tokens", s.totalOutput,
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			return s.result(), nil

		default:
			// Unrecognized stop condition: done, but flagged. The text
			// may be empty; downstream decides what partial output is
			// worth.
			s.state = StateDone
			s.irregular = true
			s.lastText = resp.Text
			s.log.Warn("session ended irregularly",
				"session", s.id,
				"stage", s.stage,
				"stop_reason", resp.StopReason,
				"turns", s.turns,
			)
			return s.result(), nil
		}
	}
}

func (s *Session) result() *Result {
	return &Result{
		Text:         s.lastText,
		State:        s.state,
		Irregular:    s.irregular,
		Turns:        s.turns,
		InputTokens:  s.totalInput,
		OutputTokens: s.totalOutput,
		Model:        s.lastModel,
		UsedTools:    s.usedTools,
	}
}
