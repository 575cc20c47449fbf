// Package httpx holds the HTTP plumbing shared by the DIAL model and bucket clients.
package httpx

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultMaxBodySize caps how much of a response body is read into memory.
const DefaultMaxBodySize int64 = 64 << 20 // 64 MiB

// StatusError reports a response with an unexpected HTTP status. Body is the
// response body as received.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// ReadBody reads at most maxBytes from the response body.
func ReadBody(resp *http.Response, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	limited := io.LimitReader(resp.Body, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBytes)
	}
	return body, nil
}

// IsSuccess reports whether code is a 2xx status.
func IsSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// NewStatusError builds a StatusError from an already-read body.
func NewStatusError(code int, body []byte) *StatusError {
	return &StatusError{StatusCode: code, Body: string(body)}
}
