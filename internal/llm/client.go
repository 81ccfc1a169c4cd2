package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ledgerline/mosaic/internal/config"
)

// Provider is the adapter contract every backend implements. Adapters
// are stateless across calls except for configuration (endpoint,
// credentials, model identity, token limits); conversations live in the
// caller.
type Provider interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Send submits the conversation and returns the model's turn. The
	// conversation must not be empty. reasoningBudget > 0 requests an
	// extended thinking phase with that many tokens; adapters without
	// the capability ignore it. Every error from Send is (or wraps) a
	// *ProviderError; Send never returns a silent empty response.
	Send(ctx context.Context, conversation []Message, system string, tools []ToolSpec, reasoningBudget int) (*Response, error)

	// HistoryMessage serializes a model turn back into the conversation
	// in a shape this adapter replays verbatim on the next call.
	HistoryMessage(resp *Response) Message

	// ResultMessages packages tool results in this backend's expected
	// shape: one user turn of result blocks, or one tool turn per
	// result. Results must be ordered to match calls.
	ResultMessages(calls []ToolCall, results []ToolResult) []Message
}

// ProviderError is a transport failure or vendor-reported fault during
// Send. It carries the raw diagnostic so pipeline logs show what the
// backend actually said. The engine does not retry these; the session
// fails and the coordinator moves on.
type ProviderError struct {
	Provider string
	Status   int    // HTTP status, 0 for transport failures
	Body     string // raw response body or vendor message, may be empty
	Err      error  // underlying transport error, may be nil
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// FromConfig builds the configured provider. Selection is by name, not
// subclassing: the local variant composes the OpenAI-compatible client
// with its own endpoint identity.
func FromConfig(cfg *config.Config, log *slog.Logger) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but anthropic.api_key is empty")
		}
		opts := []AnthropicOption{
			WithAnthropicModel(cfg.Anthropic.Model),
			WithAnthropicMaxTokens(int64(cfg.Pipeline.MaxTokens)),
			WithAnthropicLogger(log),
		}
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, WithAnthropicBaseURL(cfg.Anthropic.BaseURL))
		}
		return NewAnthropicClient(cfg.Anthropic.APIKey, opts...), nil
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai provider selected but openai.api_key is empty")
		}
		return NewOpenAIClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey,
			WithOpenAIModel(cfg.OpenAI.Model),
			WithOpenAIMaxTokens(cfg.Pipeline.MaxTokens),
			WithOpenAILogger(log),
		), nil
	case "local":
		return NewLocalClient(cfg.Local.BaseURL, cfg.Local.APIKey,
			WithLocalModel(cfg.Local.Model),
			WithLocalMaxTokens(cfg.Pipeline.MaxTokens),
			WithLocalLogger(log),
		), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (valid: anthropic, openai, local)", cfg.Provider)
	}
}
