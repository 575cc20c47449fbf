package bucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bakkerme/dialx/internal/core"
	"github.com/bakkerme/dialx/internal/httpx"
)

const apiKeyHeader = "Api-Key"

type Client struct {
	apiKey    string
	baseURL   string
	logger    *slog.Logger
	transport http.RoundTripper
	timeout   time.Duration
	tracing   *httpx.TraceConfig

	mu       sync.Mutex
	http     *http.Client
	owned    *http.Transport
	base     *url.URL
	bucketID string

	// lookupMu keeps concurrent callers from issuing duplicate bucket lookups.
	lookupMu sync.Mutex
}

type Option func(*Client)

// WithTransport replaces the per-session transport. The caller owns its connections.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) { c.transport = transport }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

func WithTracing(cfg httpx.TraceConfig) Option {
	return func(c *Client) { c.tracing = &cfg }
}

func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	c := &Client{apiKey: apiKey, baseURL: strings.TrimSpace(baseURL)}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Open creates the connection bound to the base URL.
func (c *Client) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.http != nil {
		return ErrAlreadyOpen
	}

	base, err := url.Parse(strings.TrimRight(c.baseURL, "/"))
	if err != nil {
		return fmt.Errorf("bucket: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("bucket: base url %q must be absolute", c.baseURL)
	}
	if base.Path == "" {
		base.Path = "/"
	}

	transport := c.transport
	var owned *http.Transport
	if transport == nil {
		owned = http.DefaultTransport.(*http.Transport).Clone()
		transport = owned
	}
	if c.tracing != nil {
		cfg := *c.tracing
		if cfg.Prefix == "" {
			cfg.Prefix = "bucket"
		}
		transport = httpx.NewTracedTransport(transport, cfg)
	}

	c.http = &http.Client{Transport: transport, Timeout: c.timeout}
	c.owned = owned
	c.base = base
	return nil
}

// Close releases the connection and forgets the cached bucket id. Closing a
// closed client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.http == nil {
		return nil
	}
	if c.owned != nil {
		c.owned.CloseIdleConnections()
	}
	c.http = nil
	c.owned = nil
	c.base = nil
	c.bucketID = ""
	return nil
}

// Session opens the client, runs fn and always closes it, including when fn
// fails or panics.
func (c *Client) Session(ctx context.Context, fn func(ctx context.Context, files Files) error) (err error) {
	if err := c.Open(); err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, c)
}

func (c *Client) conn() (*http.Client, *url.URL, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.http == nil {
		return nil, nil, ErrNotInitialized
	}
	return c.http, c.base, nil
}

// bucket resolves the bucket id once per open connection.
func (c *Client) bucket(ctx context.Context) (string, error) {
	c.lookupMu.Lock()
	defer c.lookupMu.Unlock()

	httpClient, base, err := c.conn()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	cached := c.bucketID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	ctx, span := otel.Tracer("dialx/bucket").Start(ctx, "bucket.lookup")
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodGet, base.JoinPath("v1", "bucket").String(), nil)
	if err != nil {
		return "", failSpan(span, err)
	}
	body, err := c.do(httpClient, req)
	if err != nil {
		return "", failSpan(span, err)
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return "", failSpan(span, fmt.Errorf("bucket: decode bucket response: %w", err))
	}
	raw, ok := data["appdata"]
	if !ok {
		raw, ok = data["bucket"]
	}
	if !ok {
		return "", failSpan(span, ErrNoBucket)
	}
	id, _ := raw.(string)
	if id == "" {
		return "", failSpan(span, fmt.Errorf("%w: unusable value %v", ErrNoBucket, raw))
	}

	c.mu.Lock()
	if c.http != nil {
		c.bucketID = id
	}
	c.mu.Unlock()

	core.LoggerFromContextOr(ctx, c.logger).Debug("bucket resolved", "bucket", id)
	span.SetStatus(codes.Ok, "")
	return id, nil
}

// PutFile uploads content as a multipart form field called name and returns
// the decoded response, which normally carries the file "url".
func (c *Client) PutFile(ctx context.Context, name, mimeType string, content io.Reader) (FileInfo, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("bucket: file name is required")
	}
	if content == nil {
		return nil, fmt.Errorf("bucket: content is required")
	}
	bucketID, err := c.bucket(ctx)
	if err != nil {
		return nil, err
	}
	httpClient, base, err := c.conn()
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("dialx/bucket").Start(ctx, "bucket.put_file", trace.WithAttributes(
		attribute.String("bucket.file.name", name),
		attribute.String("bucket.file.mime_type", mimeType),
	))
	defer span.End()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(name), escapeQuotes(name)))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("bucket: create form part: %w", err))
	}
	size, err := io.Copy(part, content)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("bucket: read content: %w", err))
	}
	if err := writer.Close(); err != nil {
		return nil, failSpan(span, fmt.Errorf("bucket: finish form: %w", err))
	}
	span.SetAttributes(attribute.Int64("bucket.file.size", size))

	target := base.JoinPath("v1", "files", bucketID, name).String()
	req, err := c.newRequest(ctx, http.MethodPut, target, &buf)
	if err != nil {
		return nil, failSpan(span, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := c.do(httpClient, req)
	if err != nil {
		return nil, failSpan(span, err)
	}
	var info FileInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, failSpan(span, fmt.Errorf("bucket: decode upload response: %w", err))
	}

	core.LoggerFromContextOr(ctx, c.logger).Debug("bucket file uploaded", "name", name, "bytes", size, "url", info.URL())
	span.SetStatus(codes.Ok, "")
	return info, nil
}

// GetFile downloads the file at fileURL, a path relative to the service root
// such as "files/<bucket>/<name>".
func (c *Client) GetFile(ctx context.Context, fileURL string) ([]byte, error) {
	httpClient, base, err := c.conn()
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("dialx/bucket").Start(ctx, "bucket.get_file", trace.WithAttributes(
		attribute.String("bucket.file.url", fileURL),
	))
	defer span.End()

	target := strings.TrimRight(base.String(), "/") + "/v1/" + strings.TrimPrefix(fileURL, "/")
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, failSpan(span, err)
	}
	body, err := c.do(httpClient, req)
	if err != nil {
		return nil, failSpan(span, err)
	}

	core.LoggerFromContextOr(ctx, c.logger).Debug("bucket file downloaded", "url", fileURL, "bytes", len(body))
	span.SetAttributes(attribute.Int("bucket.file.size", len(body)))
	span.SetStatus(codes.Ok, "")
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("bucket: build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	return req, nil
}

func (c *Client) do(httpClient *http.Client, req *http.Request) ([]byte, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bucket: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := httpx.ReadBody(resp, 0)
	if err != nil {
		return nil, fmt.Errorf("bucket: %w", err)
	}
	if !httpx.IsSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("bucket: %s %s: %w", req.Method, req.URL.Path, httpx.NewStatusError(resp.StatusCode, body))
	}
	return body, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
