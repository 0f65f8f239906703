// Package openai implements the OpenAI-backed ports of Jarvis: link
// embeddings and the conversational assistant. Calls are retried on
// transient failures and guarded by a circuit breaker.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jarvis-hub/jarvis/internal/domain/assistant"
	"github.com/jarvis-hub/jarvis/internal/domain/link"
	"github.com/jarvis-hub/jarvis/internal/domain/message"
	"github.com/jarvis-hub/jarvis/internal/domain/shared"
	"github.com/jarvis-hub/jarvis/pkg/circuitbreaker"
	"github.com/jarvis-hub/jarvis/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the OpenAI client.
type ClientConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string

	// BaseURL overrides the API endpoint (proxies, compatible servers).
	BaseURL string

	// EmbeddingModel is used for link vectors.
	EmbeddingModel string

	// ChatModel is used by the assistant.
	ChatModel string

	// Temperature of assistant replies.
	Temperature float64

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(apiKey string) ClientConfig {
	return ClientConfig{
		APIKey:         apiKey,
		EmbeddingModel: string(sdk.EmbeddingModelTextEmbedding3Small),
		ChatModel:      string(sdk.ChatModelGPT4oMini),
		Temperature:    0,
		Timeout:        30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

type embeddingsAPI interface {
	New(ctx context.Context, body sdk.EmbeddingNewParams, opts ...option.RequestOption) (*sdk.CreateEmbeddingResponse, error)
}

type completionsAPI interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Client talks to the OpenAI API. It implements link.Embedder and
// assistant.Assistant.
type Client struct {
	config      ClientConfig
	logger      *slog.Logger
	embeddings  embeddingsAPI
	completions completionsAPI
	retrier     *retry.Retrier
	breaker     *circuitbreaker.CircuitBreaker
}

var (
	_ link.Embedder       = (*Client)(nil)
	_ assistant.Assistant = (*Client)(nil)
)

// NewClient creates a new OpenAI client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, shared.NewConfigurationError("openai.NewClient", "api key is empty")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	api := sdk.NewClient(opts...)
	return newClient(config, &api.Embeddings, &api.Chat.Completions), nil
}

func newClient(config ClientConfig, embeddings embeddingsAPI, completions completionsAPI) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "openai")

	return &Client{
		config:      config,
		logger:      logger,
		embeddings:  embeddings,
		completions: completions,
		retrier: retry.OpenAIRetrier(func(attempt int, err error, delay time.Duration) {
			logger.Warn("openai call failed, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}),
		breaker: circuitbreaker.OpenAIBreaker(isTransient, func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		}),
	}
}

// BreakerState returns the circuit breaker state for health reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDINGS
// ══════════════════════════════════════════════════════════════════════════════

// Embed returns the embedding vector of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	params := sdk.EmbeddingNewParams{
		Model:      sdk.EmbeddingModel(c.config.EmbeddingModel),
		Input:      sdk.EmbeddingNewParamsInputUnion{OfString: sdk.String(text)},
		Dimensions: sdk.Int(link.EmbeddingDimensions),
	}

	resp, err := call(ctx, c, "embed", func(ctx context.Context) (*sdk.CreateEmbeddingResponse, error) {
		return c.embeddings.New(ctx, params)
	})
	if err != nil {
		return nil, shared.WrapError("openai", "Embed", shared.ErrExternalService, "embedding request failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, shared.NewDomainError("openai", "Embed", shared.ErrExternalService, "empty embedding response")
	}

	raw := resp.Data[0].Embedding
	vector := make([]float32, len(raw))
	for i, v := range raw {
		vector[i] = float32(v)
	}
	return vector, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAT
// ══════════════════════════════════════════════════════════════════════════════

// Reply asks the chat model to answer text given the dialog history.
func (c *Client) Reply(ctx context.Context, history []message.Exchange, username, text string) (string, error) {
	turns := assistant.BuildPrompt(history, username, text)

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case assistant.RoleSystem:
			messages = append(messages, sdk.SystemMessage(turn.Content))
		case assistant.RoleAssistant:
			messages = append(messages, sdk.AssistantMessage(turn.Content))
		default:
			messages = append(messages, sdk.UserMessage(turn.Content))
		}
	}

	params := sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(c.config.ChatModel),
		Messages:    messages,
		Temperature: sdk.Float(c.config.Temperature),
	}

	resp, err := call(ctx, c, "chat", func(ctx context.Context) (*sdk.ChatCompletion, error) {
		return c.completions.New(ctx, params)
	})
	if err != nil {
		return "", shared.WrapError("openai", "Reply", shared.ErrExternalService, "chat request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", shared.NewDomainError("openai", "Reply", shared.ErrExternalService, "empty chat response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// call runs op through the circuit breaker with retries on transient errors.
func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	result, err := retry.DoWithData(ctx, c.retrier, func(ctx context.Context) (T, error) {
		var out T
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			var callErr error
			out, callErr = fn(ctx)
			return callErr
		})
		if err != nil && isTransient(err) {
			return out, retry.Retryable(err)
		}
		return out, err
	})

	c.logger.Debug("openai call",
		"op", op,
		"latency", time.Since(start),
		"error", err,
	)
	return result, err
}

// isTransient reports whether an error is worth retrying: rate limits,
// server errors and network failures. Client errors and cancellation are not.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
		errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return false
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func (c *Client) String() string {
	return fmt.Sprintf("openai(chat=%s, embeddings=%s)", c.config.ChatModel, c.config.EmbeddingModel)
}
