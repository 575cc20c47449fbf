// Package dial implements llm.Client against a DIAL chat-completions deployment.
package dial

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bakkerme/dialx/internal/core"
	"github.com/bakkerme/dialx/internal/httpx"
	"github.com/bakkerme/dialx/internal/llm"
)

// ModelPlaceholder is replaced with the deployment name in endpoint templates.
const ModelPlaceholder = "{model}"

var (
	ErrEmptyAPIKey = errors.New("dial: API key cannot be empty")
	ErrNoChoice    = errors.New("dial: no choice present in the response")
	ErrNoMessage   = errors.New("dial: no message present in the response")
)

type Client struct {
	httpClient *http.Client
	endpoint   string
	deployment string
	apiKey     string
	logger     *slog.Logger
	timeout    time.Duration
	tracing    *httpx.TraceConfig
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout bounds each request. Zero keeps the transport default (no timeout).
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithTracing records request and response details on the completion span.
func WithTracing(cfg httpx.TraceConfig) Option {
	return func(c *Client) { c.tracing = &cfg }
}

// NewClient resolves endpointTemplate for deployment once; the endpoint is fixed afterwards.
func NewClient(endpointTemplate, deployment, apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrEmptyAPIKey
	}
	c := &Client{
		endpoint:   strings.ReplaceAll(endpointTemplate, ModelPlaceholder, deployment),
		deployment: deployment,
		apiKey:     apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.tracing != nil {
		traced := *c.httpClient
		cfg := *c.tracing
		if cfg.Prefix == "" {
			cfg.Prefix = "dial"
		}
		traced.Transport = httpx.NewTracedTransport(traced.Transport, cfg)
		c.httpClient = &traced
	}
	return c, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) Deployment() string {
	return c.deployment
}

func (c *Client) ChatCompletion(ctx context.Context, request llm.ChatRequest) (llm.Message, error) {
	tracer := otel.Tracer("dialx/llm/dial")
	ctx, span := tracer.Start(ctx, "llm.dial.chat.completions")
	span.SetAttributes(
		attribute.String("llm.provider", "dial"),
		attribute.String("llm.model", c.deployment),
		attribute.Int("llm.input_messages", len(request.Messages)),
		attribute.Int("llm.custom_fields", len(request.CustomFields)),
		attribute.String("conversation.id", core.ConversationIDFromContext(ctx)),
		attribute.String("flow.name", core.FlowFromContext(ctx)),
	)
	defer span.End()

	logger := core.LoggerFromContextOr(ctx, c.logger)
	headers := map[string]string{
		"api-key":      c.apiKey,
		"Content-Type": "application/json",
	}
	body := buildRequestBody(request)
	logRequest(logger, c.endpoint, headers, body)

	payload, err := json.Marshal(body)
	if err != nil {
		return llm.Message{}, failSpan(span, fmt.Errorf("dial: encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return llm.Message{}, failSpan(span, fmt.Errorf("dial: build request: %w", err))
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return llm.Message{}, failSpan(span, fmt.Errorf("dial: %w", err))
	}
	defer resp.Body.Close()

	raw, err := httpx.ReadBody(resp, 0)
	if err != nil {
		return llm.Message{}, failSpan(span, fmt.Errorf("dial: %w", err))
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return llm.Message{}, failSpan(span, httpx.NewStatusError(resp.StatusCode, raw))
	}

	logger.Debug("dial response", "status", resp.StatusCode, "body", string(raw))

	msg, err := parseCompletion(raw)
	if err != nil {
		return llm.Message{}, failSpan(span, err)
	}
	span.SetAttributes(attribute.Int("llm.output_attachments", len(msg.Attachments())))
	span.SetStatus(codes.Ok, "")
	return msg, nil
}

// buildRequestBody lays out messages, pass-through params and the nested custom fields.
func buildRequestBody(request llm.ChatRequest) map[string]any {
	messages := make([]any, 0, len(request.Messages))
	for _, msg := range request.Messages {
		messages = append(messages, msg.ToMap())
	}
	body := make(map[string]any, len(request.Params)+2)
	for key, value := range request.Params {
		if key == "messages" || key == "custom_fields" {
			continue
		}
		body[key] = value
	}
	body["messages"] = messages
	if len(request.CustomFields) > 0 {
		configuration := make(map[string]any, len(request.CustomFields))
		for key, value := range request.CustomFields {
			configuration[key] = value
		}
		body["custom_fields"] = map[string]any{"configuration": configuration}
	}
	return body
}

func parseCompletion(raw []byte) (llm.Message, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return llm.Message{}, fmt.Errorf("dial: decode response: %w", err)
	}
	choices, _ := data["choices"].([]any)
	if len(choices) == 0 {
		return llm.Message{}, ErrNoChoice
	}
	choice, _ := choices[0].(map[string]any)
	message, ok := choice["message"].(map[string]any)
	if !ok {
		return llm.Message{}, ErrNoMessage
	}
	msg, err := llm.MessageFromMap(message)
	if err != nil {
		return llm.Message{}, fmt.Errorf("dial: parse response message: %w", err)
	}
	return msg, nil
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
