package llm

import (
	"context"
	"log/slog"
)

// DefaultLocalBaseURL targets a llama.cpp or Ollama server on the
// loopback interface.
const DefaultLocalBaseURL = "http://127.0.0.1:17777/v1"

// DefaultLocalModel is small enough to run on a laptop.
const DefaultLocalModel = "llama3.2:3b"

// LocalClient drives a self-hosted OpenAI-compatible server. It is a
// thin composition over OpenAIClient: the wire protocol is identical,
// only the defaults and the reported name differ.
type LocalClient struct {
	inner *OpenAIClient
}

// LocalOption configures a LocalClient.
type LocalOption func(*localOptions)

type localOptions struct {
	model     string
	maxTokens int
	log       *slog.Logger
}

// WithLocalModel sets the model identifier.
func WithLocalModel(model string) LocalOption {
	return func(o *localOptions) { o.model = model }
}

// WithLocalMaxTokens caps output tokens per call.
func WithLocalMaxTokens(n int) LocalOption {
	return func(o *localOptions) { o.maxTokens = n }
}

// WithLocalLogger sets the logger.
func WithLocalLogger(l *slog.Logger) LocalOption {
	return func(o *localOptions) { o.log = l }
}

// NewLocalClient creates an adapter for a local inference server. Most
// local servers ignore the API key, but a placeholder is still sent
// because some gateways reject requests without one.
func NewLocalClient(baseURL, apiKey string, opts ...LocalOption) *LocalClient {
	if baseURL == "" {
		baseURL = DefaultLocalBaseURL
	}
	if apiKey == "" {
		apiKey = "local"
	}
	o := localOptions{
		model:     DefaultLocalModel,
		maxTokens: 8192,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	inner := NewOpenAIClient(baseURL, apiKey,
		withOpenAIName("local"),
		WithOpenAIModel(o.model),
		WithOpenAIMaxTokens(o.maxTokens),
		WithOpenAILogger(o.log),
	)
	return &LocalClient{inner: inner}
}

// Name implements Provider.
func (c *LocalClient) Name() string { return c.inner.Name() }

// Send implements Provider.
func (c *LocalClient) Send(ctx context.Context, conversation []Message, system string, tools []ToolSpec, reasoningBudget int) (*Response, error) {
	return c.inner.Send(ctx, conversation, system, tools, reasoningBudget)
}

// HistoryMessage implements Provider.
func (c *LocalClient) HistoryMessage(resp *Response) Message {
	return c.inner.HistoryMessage(resp)
}

// ResultMessages implements Provider.
func (c *LocalClient) ResultMessages(calls []ToolCall, results []ToolResult) []Message {
	return c.inner.ResultMessages(calls, results)
}
