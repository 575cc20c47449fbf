package core

import "context"

type flowKey struct{}
type conversationIDKey struct{}

func WithFlow(ctx context.Context, flow string) context.Context {
	if ctx == nil || flow == "" {
		return ctx
	}
	return context.WithValue(ctx, flowKey{}, flow)
}

func WithConversationID(ctx context.Context, id string) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationIDKey{}, id)
}

func FlowFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(flowKey{}).(string); ok {
		return v
	}
	return ""
}

func ConversationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(conversationIDKey{}).(string); ok {
		return v
	}
	return ""
}
