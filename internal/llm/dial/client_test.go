package dial

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/bakkerme/dialx/internal/httpx"
	"github.com/bakkerme/dialx/internal/llm"
)

const (
	testEndpoint = "http://dial.test/openai/deployments/{model}/chat/completions"
	testModel    = "gpt-4o"
	testAPIKey   = "dial-test-key-0123456789"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

// newTestClient returns a client whose transport answers with status/body and
// stores the decoded request body in *captured.
func newTestClient(t *testing.T, status int, body string, captured *map[string]any) *Client {
	t.Helper()
	client, err := NewClient(testEndpoint, testModel, testAPIKey,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHTTPClient(&http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				if captured != nil {
					raw, err := io.ReadAll(r.Body)
					if err != nil {
						return nil, fmt.Errorf("read body: %w", err)
					}
					if err := json.Unmarshal(raw, captured); err != nil {
						return nil, fmt.Errorf("unmarshal: %w", err)
					}
				}
				return jsonResponse(r, status, body), nil
			}),
		}),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func userMessages() []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: "Hello"}}
}

func TestNewClient_RejectsEmptyAPIKey(t *testing.T) {
	for _, key := range []string{"", "   ", "\t\n"} {
		called := false
		_, err := NewClient(testEndpoint, testModel, key, WithHTTPClient(&http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				called = true
				return nil, fmt.Errorf("unexpected request")
			}),
		}))
		if !errors.Is(err, ErrEmptyAPIKey) {
			t.Fatalf("NewClient(%q) error = %v, want ErrEmptyAPIKey", key, err)
		}
		if called {
			t.Fatalf("NewClient(%q) touched the network", key)
		}
	}
}

func TestNewClient_ResolvesEndpoint(t *testing.T) {
	client, err := NewClient(testEndpoint, "dall-e-3", testAPIKey)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if got, want := client.Endpoint(), "http://dial.test/openai/deployments/dall-e-3/chat/completions"; got != want {
		t.Fatalf("Endpoint() = %q, want %q", got, want)
	}
}

func TestChatCompletion_Success(t *testing.T) {
	var gotReq *http.Request
	client, err := NewClient(testEndpoint, testModel, testAPIKey,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHTTPClient(&http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				gotReq = r
				return jsonResponse(r, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"Test response"}}]}`), nil
			}),
		}),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	msg, err := client.ChatCompletion(context.Background(), llm.ChatRequest{Messages: userMessages()})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	if msg.Role != llm.RoleAssistant || msg.Content != "Test response" {
		t.Fatalf("ChatCompletion() = %+v", msg)
	}

	if gotReq.Method != http.MethodPost {
		t.Fatalf("method = %s, want POST", gotReq.Method)
	}
	if got, want := gotReq.URL.String(), "http://dial.test/openai/deployments/gpt-4o/chat/completions"; got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
	if got := gotReq.Header.Get("api-key"); got != testAPIKey {
		t.Fatalf("api-key = %q, want %q", got, testAPIKey)
	}
	if got := gotReq.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
}

func TestChatCompletion_ResponseWithAttachments(t *testing.T) {
	body := `{"choices":[{"message":{"role":"assistant","content":"","custom_content":{"attachments":[{"title":"Image","type":"image/png","url":"files/b/img.png"}]}}}]}`
	client := newTestClient(t, http.StatusOK, body, nil)

	msg, err := client.ChatCompletion(context.Background(), llm.ChatRequest{Messages: userMessages()})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	attachments := msg.Attachments()
	if len(attachments) != 1 || attachments[0].URL == nil || *attachments[0].URL != "files/b/img.png" {
		t.Fatalf("unexpected attachments: %+v", attachments)
	}
	if attachments[0].Data != nil {
		t.Fatalf("expected nil data")
	}
}

func TestChatCompletion_MalformedResponses(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"empty choices", `{"choices":[]}`, ErrNoChoice},
		{"missing choices", `{}`, ErrNoChoice},
		{"missing message", `{"choices":[{"index":0}]}`, ErrNoMessage},
		{"null message", `{"choices":[{"message":null}]}`, ErrNoMessage},
		{"message without role", `{"choices":[{"message":{}}]}`, llm.ErrInvalidRole},
		{"unknown role", `{"choices":[{"message":{"role":"robot","content":"x"}}]}`, llm.ErrInvalidRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, http.StatusOK, tc.body, nil)
			_, err := client.ChatCompletion(context.Background(), llm.ChatRequest{Messages: userMessages()})
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestChatCompletion_HTTPError(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusCreated, http.StatusInternalServerError} {
		client := newTestClient(t, status, "Unauthorized", nil)
		_, err := client.ChatCompletion(context.Background(), llm.ChatRequest{Messages: userMessages()})
		var statusErr *httpx.StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("status %d: error = %v, want *httpx.StatusError", status, err)
		}
		if statusErr.StatusCode != status || statusErr.Body != "Unauthorized" {
			t.Fatalf("status error = %+v", statusErr)
		}
		if want := fmt.Sprintf("HTTP %d: Unauthorized", status); err.Error() != want {
			t.Fatalf("Error() = %q, want %q", err.Error(), want)
		}
	}
}

func TestChatCompletion_CustomFieldsNesting(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`, &body)

	_, err := client.ChatCompletion(context.Background(), llm.ChatRequest{
		Messages:     userMessages(),
		CustomFields: map[string]any{"temperature": 0.7},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	if _, ok := body["temperature"]; ok {
		t.Fatalf("unexpected top-level temperature: %v", body)
	}
	customFields, _ := body["custom_fields"].(map[string]any)
	configuration, _ := customFields["configuration"].(map[string]any)
	if configuration["temperature"] != 0.7 {
		t.Fatalf("custom_fields.configuration = %v", customFields)
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("messages = %v", body["messages"])
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "user" || first["content"] != "Hello" {
		t.Fatalf("message = %v", first)
	}
	if _, ok := first["custom_content"]; ok {
		t.Fatalf("custom_content should be omitted: %v", first)
	}
}

func TestChatCompletion_ParamsPassThrough(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`, &body)

	_, err := client.ChatCompletion(context.Background(), llm.ChatRequest{
		Messages: userMessages(),
		Params:   map[string]any{"temperature": 5.0, "max_tokens": 10, "messages": "ignored"},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	if body["temperature"] != 5.0 || body["max_tokens"] != 10.0 {
		t.Fatalf("params not passed through verbatim: %v", body)
	}
	if _, ok := body["custom_fields"]; ok {
		t.Fatalf("custom_fields should be absent without custom fields: %v", body)
	}
	if _, ok := body["messages"].([]any); !ok {
		t.Fatalf("messages was overwritten: %v", body["messages"])
	}
}

func TestChatCompletion_LogsMaskedRequest(t *testing.T) {
	var buf bytes.Buffer
	client, err := NewClient(testEndpoint, testModel, testAPIKey,
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		WithHTTPClient(&http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				return jsonResponse(r, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`), nil
			}),
		}),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	long := strings.Repeat("a", 150)
	_, err = client.ChatCompletion(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: long}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	logs := buf.String()
	if strings.Contains(logs, testAPIKey) {
		t.Fatalf("log leaked the API key: %s", logs)
	}
	if !strings.Contains(logs, "dial-tes...6789") {
		t.Fatalf("log is missing the masked key: %s", logs)
	}
	if !strings.Contains(logs, strings.Repeat("a", 100)+"...") || strings.Contains(logs, strings.Repeat("a", 101)) {
		t.Fatalf("content preview not truncated to 100 chars: %s", logs)
	}
}

func TestMaskAPIKey(t *testing.T) {
	cases := map[string]string{
		"short":              "***",
		"123456789012":       "***",
		"1234567890123":      "12345678...0123",
		"abcdefgh-ijkl-mnop": "abcdefgh...mnop",
	}
	for in, want := range cases {
		if got := maskAPIKey(in); got != want {
			t.Fatalf("maskAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPreviewContent(t *testing.T) {
	if got := previewContent("short"); got != "short" {
		t.Fatalf("previewContent(short) = %q", got)
	}
	long := strings.Repeat("é", 120)
	got := previewContent(long)
	if got != strings.Repeat("é", 100)+"..." {
		t.Fatalf("previewContent should cut on runes, got %q", got)
	}
}
