// Package llm talks to OpenAI-compatible chat completion endpoints and
// turns their forced tool calls into schema-shaped structured output.
package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/longregen/archetype/internal/adapters/metrics"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.GetTracerProvider().Tracer("archetype/llm")

// Completer is the slice of the OpenAI client the gateway needs.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds the configuration for a provider client.
type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
	Timeout    time.Duration
}

type Option func(*Config)

func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(c *Config) {
		c.MaxTokens = maxTokens
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
// This is ignored if WithHTTPClient is also used.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// Client is one named provider.
type Client struct {
	api       *openai.Client
	Name      string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewClient creates an OpenAI-compatible client.
// BaseURL should be the full API base URL (e.g., "https://api.openai.com/v1").
func NewClient(name, baseURL, apiKey string, opts ...Option) *Client {
	cfg := &Config{
		Name:      name,
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		APIKey:    apiKey,
		Model:     "gpt-4o-mini",
		MaxTokens: 4096,
		Timeout:   120 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	openaiCfg := openai.DefaultConfig(cfg.APIKey)
	openaiCfg.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		openaiCfg.HTTPClient = cfg.HTTPClient
	} else {
		openaiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		api:       openai.NewClientWithConfig(openaiCfg),
		Name:      cfg.Name,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}
}

// CreateChatCompletion wraps the OpenAI call with a span and metrics.
func (c *Client) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "llm.chat", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("llm.provider", c.Name),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.request.tools", len(req.Tools)),
		attribute.Int("llm.request.messages", len(req.Messages)),
		attribute.Float64("llm.request.temperature", float64(req.Temperature)),
	)

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	metrics.LLMRequestDuration.WithLabelValues(c.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.Name, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	metrics.LLMRequestsTotal.WithLabelValues(c.Name, "ok").Inc()

	span.SetAttributes(
		attribute.Int("llm.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.usage.output_tokens", resp.Usage.CompletionTokens),
	)
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		span.SetAttributes(
			attribute.String("llm.response.finish_reason", string(choice.FinishReason)),
			attribute.Int("llm.response.tool_calls", len(choice.Message.ToolCalls)),
		)
	}
	return resp, nil
}
