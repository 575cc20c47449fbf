package dial

import (
	"log/slog"
	"sort"
	"strings"
)

const (
	apiKeyPreviewLength  = 8
	apiKeySuffixLength   = 4
	contentPreviewLength = 100
)

// logRequest writes the outgoing request with the API key masked and message
// content shortened. It is diagnostics only.
func logRequest(logger *slog.Logger, endpoint string, headers map[string]string, body map[string]any) {
	headerAttrs := make([]any, 0, len(headers))
	for _, key := range sortedKeys(headers) {
		value := headers[key]
		if strings.EqualFold(key, "api-key") {
			value = maskAPIKey(value)
		}
		headerAttrs = append(headerAttrs, slog.String(key, value))
	}

	messages, _ := body["messages"].([]any)
	logger.Info("dial request",
		"endpoint", endpoint,
		slog.Group("headers", headerAttrs...),
		"messages", len(messages),
	)

	for i, raw := range messages {
		msg, _ := raw.(map[string]any)
		role, _ := msg["role"].(string)
		if role == "" {
			role = "unknown"
		}
		content, _ := msg["content"].(string)
		logger.Info("dial request message",
			"index", i+1,
			"role", strings.ToUpper(role),
			"content", previewContent(content),
		)
	}

	params := make([]any, 0, len(body))
	for _, key := range sortedKeys(body) {
		if key == "messages" {
			continue
		}
		params = append(params, slog.Any(key, body[key]))
	}
	if len(params) > 0 {
		logger.Info("dial request parameters", params...)
	}
}

func maskAPIKey(key string) string {
	if len(key) > apiKeyPreviewLength+apiKeySuffixLength {
		return key[:apiKeyPreviewLength] + "..." + key[len(key)-apiKeySuffixLength:]
	}
	return "***"
}

func previewContent(content string) string {
	runes := []rune(content)
	if len(runes) > contentPreviewLength {
		return string(runes[:contentPreviewLength]) + "..."
	}
	return content
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
