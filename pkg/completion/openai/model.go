package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"mercator-hq/tutor/pkg/resilience"
	"mercator-hq/tutor/pkg/telemetry/tracing"
)

// Config configures a ChatModel.
type Config struct {
	// BaseURL is the API root (e.g., "https://api.openai.com/v1")
	BaseURL string

	// APIKey is sent as a bearer token
	APIKey string

	// Model is the default model identifier
	Model string

	// Timeout bounds one HTTP request.
	// Default: 60s
	Timeout time.Duration

	// MaxIdleConns sizes the connection pool.
	// Default: 10
	MaxIdleConns int
}

// ChatModel is an eino chat model speaking the OpenAI-compatible
// chat completions protocol over HTTP.
//
// ChatModel makes exactly one HTTP attempt per call; retries and circuit
// breaking are the caller's concern. Failures are classified:
//   - 400, 401, 403, 404: resilience.Permanent
//   - 429: *RateLimitError (temporary)
//   - 5xx and transport errors: *ProviderError
type ChatModel struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// NewChatModel creates a chat model with a pooled HTTP client.
func NewChatModel(config Config, logger *slog.Logger) (*ChatModel, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &ChatModel{
		config: config,
		client: &http.Client{Transport: transport, Timeout: config.Timeout},
		logger: logger.With("component", "completion.openai", "model", config.Model),
	}, nil
}

// Generate sends one chat completion request.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{}, opts...)
	body, err := json.Marshal(toRequest(m.config.Model, input, options))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	url := strings.TrimRight(m.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if m.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.config.APIKey)
	}
	tracing.Inject(ctx, req.Header)

	m.logger.Debug("sending chat completion request", "messages", len(input))

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "failed to read response", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp, raw)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &ParseError{RawResponse: string(raw), Cause: err}
	}

	msg, err := fromResponse(&decoded)
	if err != nil {
		return nil, &ParseError{RawResponse: string(raw), Cause: err}
	}
	return msg, nil
}

// Stream generates the full reply and delivers it as a single chunk.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Close releases idle connections.
func (m *ChatModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

func classifyStatus(resp *http.Response, body []byte) error {
	message := string(body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return resilience.Permanent(&AuthError{Message: message})
	case http.StatusTooManyRequests:
		return &RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    message,
		}
	case http.StatusBadRequest, http.StatusNotFound:
		return resilience.Permanent(&ProviderError{StatusCode: resp.StatusCode, Message: message})
	default:
		return &ProviderError{StatusCode: resp.StatusCode, Message: message}
	}
}

// parseRetryAfter supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}
