package mock

import (
	"context"

	"github.com/bakkerme/dialx/internal/llm"
)

type Client struct {
	Responses []llm.Message
	Err       error
	Calls     []llm.ChatRequest
}

func (c *Client) ChatCompletion(ctx context.Context, request llm.ChatRequest) (llm.Message, error) {
	_ = ctx
	c.Calls = append(c.Calls, request)
	if c.Err != nil {
		return llm.Message{}, c.Err
	}
	if len(c.Responses) == 0 {
		return llm.Message{Role: llm.RoleAssistant}, nil
	}
	response := c.Responses[0]
	if len(c.Responses) > 1 {
		c.Responses = c.Responses[1:]
	}
	return response, nil
}
