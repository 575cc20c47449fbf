// Package flows wires the model and bucket clients into the three image flows:
// inline image analysis, bucket attachment analysis and image generation.
package flows

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bakkerme/dialx/internal/core"
	"github.com/bakkerme/dialx/internal/llm"
)

const (
	FlowInline   = "inline"
	FlowAttach   = "attach"
	FlowGenerate = "generate"
)

// Result is the model reply together with the conversation that produced it.
type Result struct {
	Reply        llm.Message
	Conversation *llm.Conversation
}

// start opens a conversation and returns a context carrying flow-scoped logging.
func start(ctx context.Context, flow string) (context.Context, *llm.Conversation, *slog.Logger) {
	conv := llm.NewConversation()
	logger := core.LoggerFromContext(ctx).With("flow", flow, "conversation_id", conv.ID)
	ctx = core.WithFlow(ctx, flow)
	ctx = core.WithConversationID(ctx, conv.ID)
	ctx = core.WithLogger(ctx, logger)
	return ctx, conv, logger
}

// complete sends the conversation so far and records the reply.
func complete(ctx context.Context, client llm.Client, conv *llm.Conversation, customFields map[string]any) (llm.Message, error) {
	reply, err := client.ChatCompletion(ctx, llm.ChatRequest{
		Messages:     conv.Messages(),
		CustomFields: customFields,
	})
	if err != nil {
		return llm.Message{}, err
	}
	conv.AddMessage(reply)
	return reply, nil
}

// detectImageType sniffs data and falls back to fallback when the content is
// not recognisably an image.
func detectImageType(data []byte, fallback string) string {
	contentType, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	if !strings.HasPrefix(contentType, "image/") {
		return fallback
	}
	return contentType
}

func requireClient(client llm.Client) error {
	if client == nil {
		return fmt.Errorf("model client is required")
	}
	return nil
}
