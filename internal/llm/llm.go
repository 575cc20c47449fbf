package llm

import "context"

// ChatRequest is a single chat-completion call.
//
// CustomFields are provider-specific generation parameters; clients nest them
// under custom_fields.configuration. Params are copied verbatim to the top
// level of the request body (temperature, max_tokens, ...).
type ChatRequest struct {
	Messages     []Message
	CustomFields map[string]any
	Params       map[string]any
}

type Client interface {
	ChatCompletion(ctx context.Context, request ChatRequest) (Message, error)
}
