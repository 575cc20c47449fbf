package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestStatusError_Message(t *testing.T) {
	err := error(NewStatusError(http.StatusUnauthorized, []byte(" Unauthorized \n")))
	if got, want := err.Error(), "HTTP 401: Unauthorized"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 401 {
		t.Fatalf("expected StatusError with 401, got %#v", err)
	}
	if statusErr.Body != " Unauthorized \n" {
		t.Fatalf("Body = %q, want the raw response body", statusErr.Body)
	}
}

func TestReadBody_Limit(t *testing.T) {
	resp := &http.Response{Body: io.NopCloser(strings.NewReader("0123456789"))}
	if _, err := ReadBody(resp, 5); err == nil {
		t.Fatalf("expected size error")
	}
	resp = &http.Response{Body: io.NopCloser(strings.NewReader("01234"))}
	body, err := ReadBody(resp, 5)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if string(body) != "01234" {
		t.Fatalf("body = %q", body)
	}
}

func TestCaptureReadCloser_Truncates(t *testing.T) {
	var (
		captured  string
		truncated bool
	)
	rc := newCaptureReadCloser(io.NopCloser(strings.NewReader("hello world")), 5, func(b []byte, tr bool) {
		captured = string(b)
		truncated = tr
	})
	all, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(all) != "hello world" {
		t.Fatalf("reader altered the stream: %q", all)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if captured != "hello" || !truncated {
		t.Fatalf("captured = %q truncated = %v", captured, truncated)
	}
}

func TestTracedTransport_RecordsBodies(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := provider.Tracer("test").Start(context.Background(), "call")

	transport := NewTracedTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		_, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
			Request:    r,
		}, nil
	}), TraceConfig{CaptureBodies: true, MaxBodyBytes: 1024, Prefix: "dial"})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://dial.test/x", strings.NewReader(`{"messages":[]}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := (&http.Client{Transport: transport}).Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	_, _ = io.ReadAll(res.Body)
	_ = res.Body.Close()
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["input.value"] != `{"messages":[]}` {
		t.Fatalf("input.value = %q", attrs["input.value"])
	}
	if attrs["output.value"] != `{"ok":true}` {
		t.Fatalf("output.value = %q", attrs["output.value"])
	}
	events := map[string]bool{}
	for _, ev := range spans[0].Events() {
		events[ev.Name] = true
	}
	if !events["dial.response.meta"] {
		t.Fatalf("missing dial.response.meta event: %v", events)
	}
}
