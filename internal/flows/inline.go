package flows

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/bakkerme/dialx/internal/llm"
	"github.com/bakkerme/dialx/internal/llm/openai"
)

const (
	DefaultInlinePrompt = "What do you see on this picture?"
	DefaultImageURL     = "https://a-z-animals.com/media/2019/11/Elephant-male-1024x535.jpg"
)

type InlineInput struct {
	ImagePath string
	// Prompt defaults to DefaultInlinePrompt.
	Prompt string
	// FallbackURL is sent instead of a data URL when the image file is empty.
	FallbackURL string
}

func (in InlineInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ImagePath, validation.Required),
	)
}

// InlineImage sends the image as a base64 data URL next to a text prompt. The
// multi-part message is flattened to plain text before it is sent.
func InlineImage(ctx context.Context, client llm.Client, in InlineInput) (Result, error) {
	if err := requireClient(client); err != nil {
		return Result{}, err
	}
	if err := in.Validate(); err != nil {
		return Result{}, fmt.Errorf("inline: invalid input: %w", err)
	}
	if in.Prompt == "" {
		in.Prompt = DefaultInlinePrompt
	}
	if in.FallbackURL == "" {
		in.FallbackURL = DefaultImageURL
	}

	ctx, conv, logger := start(ctx, FlowInline)

	data, err := os.ReadFile(in.ImagePath)
	if err != nil {
		return Result{}, fmt.Errorf("inline: read image: %w", err)
	}

	imageURL := in.FallbackURL
	if len(data) > 0 {
		imageURL = DataURL(data)
	} else {
		logger.Warn("image file is empty, using fallback url", "path", in.ImagePath, "url", in.FallbackURL)
	}

	message := openai.ContentedMessage{
		Role: llm.RoleUser,
		Content: []openai.Part{
			openai.ImagePart(imageURL),
			openai.TextPart(in.Prompt),
		},
	}
	conv.AddMessage(openai.Flatten(message))

	reply, err := complete(ctx, client, conv, nil)
	if err != nil {
		return Result{}, fmt.Errorf("inline: %w", err)
	}
	logger.Info("inline image analysed", "reply_chars", len(reply.Content))
	return Result{Reply: reply, Conversation: conv}, nil
}

// DataURL encodes data as "data:<mime>;base64,<payload>", defaulting to
// image/png when the content type cannot be sniffed.
func DataURL(data []byte) string {
	contentType := detectImageType(data, "image/png")
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
}
