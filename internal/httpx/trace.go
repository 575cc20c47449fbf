package httpx

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig controls what the traced transport records on the active span.
type TraceConfig struct {
	CaptureBodies bool
	MaxBodyBytes  int
	// Prefix namespaces span attributes and events, e.g. "dial".
	Prefix string
}

// TracedTransport records status codes and, optionally, request/response
// bodies on the span carried by the request context. It never starts spans.
type TracedTransport struct {
	Base   http.RoundTripper
	Config TraceConfig
}

// NewTracedTransport wraps base (http.DefaultTransport when nil).
func NewTracedTransport(base http.RoundTripper, cfg TraceConfig) *TracedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "http"
	}
	return &TracedTransport{Base: base, Config: cfg}
}

func (t *TracedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cfg := t.Config
	span := trace.SpanFromContext(req.Context())
	contentType := req.Header.Get("Content-Type")
	if cfg.CaptureBodies && span.IsRecording() && req.Body != nil && isTextual(contentType) {
		req.Body = newCaptureReadCloser(req.Body, cfg.MaxBodyBytes, func(body []byte, truncated bool) {
			bodyStr := bytesToString(body)
			span.SetAttributes(
				attribute.String("input.mime_type", contentType),
				attribute.String("input.value", bodyStr),
				attribute.Bool("input.truncated", truncated),
			)
			span.AddEvent(cfg.Prefix+".request.body", trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.url", req.URL.String()),
				attribute.String("body", bodyStr),
				attribute.Bool("truncated", truncated),
			))
		})
	}

	res, err := t.Base.RoundTrip(req)
	if err != nil {
		return res, err
	}
	if res == nil {
		return res, nil
	}

	if span.IsRecording() {
		span.AddEvent(cfg.Prefix+".response.meta", trace.WithAttributes(
			attribute.Int("http.status_code", res.StatusCode),
		))
	}

	resType := res.Header.Get("Content-Type")
	if cfg.CaptureBodies && span.IsRecording() && res.Body != nil && isTextual(resType) {
		res.Body = newCaptureReadCloser(res.Body, cfg.MaxBodyBytes, func(body []byte, truncated bool) {
			bodyStr := bytesToString(body)
			span.SetAttributes(
				attribute.String("output.mime_type", resType),
				attribute.String("output.value", bodyStr),
				attribute.Bool("output.truncated", truncated),
			)
			span.AddEvent(cfg.Prefix+".response.body", trace.WithAttributes(
				attribute.Int("http.status_code", res.StatusCode),
				attribute.String("body", bodyStr),
				attribute.Bool("truncated", truncated),
			))
		})
	}

	return res, nil
}

// Image uploads and downloads are not worth putting on a span.
func isTextual(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return contentType == "" ||
		strings.HasPrefix(contentType, "application/json") ||
		strings.HasPrefix(contentType, "text/")
}

type captureReadCloser struct {
	rc          io.ReadCloser
	maxBytes    int
	buf         bytes.Buffer
	truncated   bool
	onCloseOnce sync.Once
	onClose     func([]byte, bool)
}

func newCaptureReadCloser(rc io.ReadCloser, maxBytes int, onClose func([]byte, bool)) io.ReadCloser {
	if rc == nil {
		return rc
	}
	return &captureReadCloser{rc: rc, maxBytes: maxBytes, onClose: onClose}
}

func (c *captureReadCloser) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	if n > 0 && c.maxBytes != 0 {
		remaining := c.maxBytes - c.buf.Len()
		if c.maxBytes < 0 {
			remaining = n
		}
		if remaining > 0 {
			if remaining >= n {
				_, _ = c.buf.Write(p[:n])
			} else {
				_, _ = c.buf.Write(p[:remaining])
				c.truncated = true
			}
		} else {
			c.truncated = true
		}
	}
	return n, err
}

func (c *captureReadCloser) Close() error {
	c.onCloseOnce.Do(func() {
		if c.onClose != nil {
			c.onClose(c.buf.Bytes(), c.truncated)
		}
	})
	return c.rc.Close()
}

func bytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	// Attribute values must be valid UTF-8; invalid bytes are replaced.
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
