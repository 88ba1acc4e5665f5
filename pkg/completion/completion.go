package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"mercator-hq/tutor/pkg/resilience"
	"mercator-hq/tutor/pkg/session"
	"mercator-hq/tutor/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Reply is one assistant reply produced by the upstream model.
type Reply struct {
	// Text is the reply content shown to the learner
	Text string `json:"text"`

	// FinishReason is the upstream finish reason ("stop", "length", ...)
	FinishReason string `json:"finish_reason,omitempty"`

	// PromptTokens and CompletionTokens report upstream usage when known
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

// Config configures a Client.
type Config struct {
	// SystemPrompt is sent before the history on every call.
	SystemPrompt string

	// HistoryLimit caps how many prior messages are sent upstream.
	// Default: 10
	HistoryLimit int

	// Timeout bounds one upstream call. Zero relies on the caller's context.
	Timeout time.Duration
}

// Client adapts an eino chat model to the conversation layer.
//
// Upstream failures are classified for the retry engine:
//   - deadline expiry: *resilience.TimeoutError
//   - errors already marked permanent: returned unchanged
//   - caller cancellation: returned unchanged
//   - anything else: *resilience.InfraError
type Client struct {
	model  model.BaseChatModel
	config Config
	logger *slog.Logger
}

// NewClient wraps m.
func NewClient(m model.BaseChatModel, config Config, logger *slog.Logger) (*Client, error) {
	if m == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 10
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", config.Timeout)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		model:  m,
		config: config,
		logger: logger.With("component", "completion"),
	}, nil
}

// Complete sends the recent history plus prompt upstream and returns the reply.
func (c *Client) Complete(ctx context.Context, history []session.Message, prompt string) (Reply, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	ctx, span := otel.Tracer(tracing.InstrumentationName).Start(ctx, "completion.generate",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	input := c.buildInput(history, prompt)
	span.SetAttributes(attribute.Int("tutor.history", len(input)-1))

	start := time.Now()
	msg, err := c.model.Generate(ctx, input)
	if err != nil {
		err = c.classify(ctx, err)
		tracing.SetError(span, err)
		return Reply{}, err
	}
	if msg == nil {
		err := resilience.NewInfraError("completion.generate", errors.New("empty response from model"))
		tracing.SetError(span, err)
		return Reply{}, err
	}

	reply := Reply{Text: msg.Content}
	if meta := msg.ResponseMeta; meta != nil {
		reply.FinishReason = meta.FinishReason
		if meta.Usage != nil {
			reply.PromptTokens = meta.Usage.PromptTokens
			reply.CompletionTokens = meta.Usage.CompletionTokens
		}
	}

	tracing.SetTokenAttributes(span, reply.PromptTokens, reply.CompletionTokens)
	span.SetAttributes(attribute.String(tracing.AttrFinishReason, reply.FinishReason))

	c.logger.DebugContext(ctx, "completion generated",
		"history", len(history),
		"length", len(reply.Text),
		"duration", time.Since(start),
	)

	return reply, nil
}

// buildInput converts session messages to eino messages, keeping only the
// most recent HistoryLimit user and assistant turns.
func (c *Client) buildInput(history []session.Message, prompt string) []*schema.Message {
	start := 0
	if len(history) > c.config.HistoryLimit {
		start = len(history) - c.config.HistoryLimit
	}

	input := make([]*schema.Message, 0, len(history)-start+2)
	if c.config.SystemPrompt != "" {
		input = append(input, schema.SystemMessage(c.config.SystemPrompt))
	}
	for _, msg := range history[start:] {
		switch msg.Role {
		case session.RoleUser:
			input = append(input, schema.UserMessage(msg.Content))
		case session.RoleAssistant:
			input = append(input, schema.AssistantMessage(msg.Content, nil))
		case session.RoleSystem:
			input = append(input, schema.SystemMessage(msg.Content))
		}
	}
	return append(input, schema.UserMessage(prompt))
}

func (c *Client) classify(ctx context.Context, err error) error {
	var permanent *resilience.PermanentError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &resilience.TimeoutError{Timeout: c.config.Timeout}
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &permanent):
		return err
	default:
		return resilience.NewInfraError("completion.generate", err)
	}
}
