package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/longregen/archetype/internal/adapters/circuitbreaker"
	"github.com/longregen/archetype/internal/adapters/metrics"
	"github.com/longregen/archetype/internal/adapters/retry"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/ports"
	openai "github.com/sashabaranov/go-openai"
)

const (
	toolName = "respond"

	// DefaultReissues is how many times a reply without the forced tool
	// call is requested again.
	DefaultReissues = 3

	// minTemperature stands in for zero, which the request encoding omits.
	minTemperature = 1e-6

	toolInstruction = "Reply only by calling the function `" + toolName + "`. " +
		"Fill every parameter with a string; use the string null when a field has no value."
)

// Provider is a named completion endpoint with its default model.
type Provider struct {
	Name      string
	Model     string
	MaxTokens int
	Completer Completer
}

// ProviderFrom adapts a Client.
func ProviderFrom(c *Client) *Provider {
	return &Provider{Name: c.Name, Model: c.Model, MaxTokens: c.MaxTokens, Completer: c}
}

// Gateway implements ports.Gateway over a primary provider and an optional
// fallback.
type Gateway struct {
	primary   *Provider
	fallback  *Provider
	breaker   *circuitbreaker.CircuitBreaker
	rateLimit retry.BackoffConfig
	transient retry.BackoffConfig
	reissues  int
}

var _ ports.Gateway = (*Gateway)(nil)

type GatewayOption func(*Gateway)

// WithFallback sets the secondary provider used when the primary fails.
func WithFallback(p *Provider) GatewayOption {
	return func(g *Gateway) { g.fallback = p }
}

func WithRateLimitBackoff(cfg retry.BackoffConfig) GatewayOption {
	return func(g *Gateway) { g.rateLimit = cfg }
}

// WithTransientBackoff sets the retry policy for 5xx responses and network
// errors before the primary is counted as failed.
func WithTransientBackoff(cfg retry.BackoffConfig) GatewayOption {
	return func(g *Gateway) { g.transient = cfg }
}

func WithReissues(n int) GatewayOption {
	return func(g *Gateway) { g.reissues = n }
}

func WithBreaker(cb *circuitbreaker.CircuitBreaker) GatewayOption {
	return func(g *Gateway) { g.breaker = cb }
}

func NewGateway(primary *Provider, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		primary:   primary,
		rateLimit: retry.RateLimitConfig(),
		transient: retry.DefaultConfig(),
		reissues:  DefaultReissues,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = circuitbreaker.New(5, 30*time.Second,
			circuitbreaker.WithName(primary.Name),
			circuitbreaker.WithFailureFilter(func(err error) bool {
				var abandoned *callerAbandoned
				return !errors.Is(err, domain.ErrSchemaViolation) && !errors.As(err, &abandoned)
			}))
	}
	return g
}

// Respond returns a mapping whose keys are exactly the schema keys. An empty
// schema returns an empty mapping without calling any provider.
func (g *Gateway) Respond(ctx context.Context, messages []models.Message, schema ports.Schema, model string, temperature float64) (map[string]string, error) {
	if len(schema) == 0 {
		return map[string]string{}, nil
	}
	if model == "" {
		model = g.primary.Model
	}

	var out map[string]string
	err := g.breaker.Execute(func() error {
		var err error
		out, err = g.call(ctx, g.primary, messages, schema, model, temperature)
		if err != nil && ctx.Err() != nil {
			return &callerAbandoned{err: err}
		}
		return err
	})
	if err == nil {
		return out, nil
	}
	var abandoned *callerAbandoned
	if errors.As(err, &abandoned) {
		return nil, abandoned.err
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		err = fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, g.primary.Name, err)
	}
	if g.fallback == nil || ctx.Err() != nil {
		return nil, err
	}

	slog.WarnContext(ctx, "provider fallback", "from", g.primary.Name, "to", g.fallback.Name, "error", err)
	out, ferr := g.call(ctx, g.fallback, messages, schema, g.fallback.Model, temperature)
	if ferr != nil {
		return nil, fmt.Errorf("fallback %s: %w (primary %s: %v)", g.fallback.Name, ferr, g.primary.Name, err)
	}
	return out, nil
}

func (g *Gateway) call(ctx context.Context, p *Provider, messages []models.Message, schema ports.Schema, model string, temperature float64) (map[string]string, error) {
	fields := sortedFields(schema)
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   p.MaxTokens,
		Temperature: wireTemperature(temperature),
		Tools:       []openai.Tool{schemaTool(schema, fields)},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: toolName},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= g.reissues; attempt++ {
		if attempt > 0 {
			metrics.LLMSchemaRetries.Inc()
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("Your previous reply did not call `%s` correctly (%v). "+
					"You MUST call `%s` now and provide every field: %s.",
					toolName, lastErr, toolName, strings.Join(fields, ", ")),
			})
		}

		resp, err := g.complete(ctx, p, req)
		if err != nil {
			return nil, err
		}
		out, err := parseToolCall(resp, fields)
		if err == nil {
			return out, nil
		}
		lastErr = err
		slog.DebugContext(ctx, "reissuing request without valid tool call", "provider", p.Name, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", domain.ErrSchemaViolation, p.Name, g.reissues+1, lastErr)
}

// complete absorbs rate limits and transient failures with backoff;
// anything else is a provider failure.
func (g *Gateway) complete(ctx context.Context, p *Provider, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var resp openai.ChatCompletionResponse
	err := retry.WithBackoffIf(ctx, g.rateLimit, isRateLimited, func() error {
		return retry.WithBackoffIf(ctx, g.transient, isTransient, func() error {
			var err error
			resp, err = p.Completer.CreateChatCompletion(ctx, req)
			return classify(err)
		})
	})
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return resp, ctx.Err()
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return resp, fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, p.Name, err)
	}
	return resp, fmt.Errorf("%s: %w", p.Name, err)
}

// callerAbandoned marks a failure that happened after the caller's context
// ended; it says nothing about the provider's health.
type callerAbandoned struct {
	err error
}

func (e *callerAbandoned) Error() string { return e.err.Error() }
func (e *callerAbandoned) Unwrap() error { return e.err }

func wireTemperature(t float64) float32 {
	if t <= 0 {
		return minTemperature
	}
	return float32(t)
}

func isRateLimited(err error) bool {
	return errors.Is(err, domain.ErrRateLimited)
}

// isTransient reports 5xx and request timeout responses and retryable
// network errors. Rate limits have their own policy.
func isTransient(err error) bool {
	if isRateLimited(err) {
		return false
	}
	if status, ok := httpStatus(err); ok {
		return retry.IsRetryableHTTPStatus(status)
	}
	return retry.IsRetryableError(err)
}

func httpStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
}

func sortedFields(schema ports.Schema) []string {
	fields := make([]string, 0, len(schema))
	for k := range schema {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// schemaTool describes the schema as a function whose parameters are all
// required strings.
func schemaTool(schema ports.Schema, fields []string) openai.Tool {
	properties := make(map[string]any, len(fields))
	for _, f := range fields {
		properties[f] = map[string]any{
			"type":        "string",
			"description": schema[f],
		}
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        toolName,
			Description: "Submit the structured reply.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   fields,
			},
		},
	}
}

func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: toolInstruction})
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return msgs
}

// parseToolCall extracts the forced call's arguments. Missing fields are a
// violation; null becomes "null" and non-string scalars keep their JSON text.
func parseToolCall(resp openai.ChatCompletionResponse, fields []string) (map[string]string, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}
	var call *openai.ToolCall
	for i, tc := range resp.Choices[0].Message.ToolCalls {
		if tc.Function.Name == toolName {
			call = &resp.Choices[0].Message.ToolCalls[i]
			break
		}
	}
	if call == nil {
		return nil, fmt.Errorf("response did not call %s", toolName)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(call.Function.Arguments)))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v, ok := args[f]
		if !ok {
			return nil, fmt.Errorf("missing field %q", f)
		}
		switch val := v.(type) {
		case nil:
			out[f] = "null"
		case string:
			out[f] = val
		case json.Number:
			out[f] = val.String()
		case bool:
			out[f] = strconv.FormatBool(val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f, err)
			}
			out[f] = string(b)
		}
	}
	return out, nil
}
