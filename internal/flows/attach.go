package flows

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/bakkerme/dialx/internal/bucket"
	"github.com/bakkerme/dialx/internal/llm"
)

const AnalysisPrompt = "Analyze these images and describe what you see. If multiple images are provided, compare and contrast them."

type AttachmentInput struct {
	Files []string
	// MimeType overrides sniffing for every file when set.
	MimeType string
}

func (in AttachmentInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Files, validation.Required, validation.Each(validation.Required)),
	)
}

// BucketImages uploads each file in its own bucket session, in order, and asks
// the model to describe them via message attachments. The first failure stops
// the flow; files already uploaded stay in the bucket.
func BucketImages(ctx context.Context, client llm.Client, store bucket.Sessioner, in AttachmentInput) (Result, error) {
	if err := requireClient(client); err != nil {
		return Result{}, err
	}
	if store == nil {
		return Result{}, fmt.Errorf("attach: bucket store is required")
	}
	if err := in.Validate(); err != nil {
		return Result{}, fmt.Errorf("attach: invalid input: %w", err)
	}

	ctx, conv, logger := start(ctx, FlowAttach)

	attachments := make([]llm.Attachment, 0, len(in.Files))
	for _, path := range in.Files {
		attachment, err := uploadImage(ctx, store, path, in.MimeType)
		if err != nil {
			return Result{}, fmt.Errorf("attach: %w", err)
		}
		attachments = append(attachments, attachment)
	}
	logger.Info("images uploaded", "count", len(attachments))

	conv.AddMessage(llm.Message{
		Role:          llm.RoleUser,
		Content:       AnalysisPrompt,
		CustomContent: &llm.CustomContent{Attachments: attachments},
	})

	reply, err := complete(ctx, client, conv, nil)
	if err != nil {
		return Result{}, fmt.Errorf("attach: %w", err)
	}
	logger.Info("attachments analysed", "reply_chars", len(reply.Content))
	return Result{Reply: reply, Conversation: conv}, nil
}

func uploadImage(ctx context.Context, store bucket.Sessioner, path, mimeType string) (llm.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return llm.Attachment{}, fmt.Errorf("read %s: %w", path, err)
	}
	if mimeType == "" {
		mimeType = detectImageType(data, "image/png")
	}
	name := filepath.Base(path)

	var attachment llm.Attachment
	err = store.Session(ctx, func(ctx context.Context, files bucket.Files) error {
		info, err := files.PutFile(ctx, name, mimeType, bytes.NewReader(data))
		if err != nil {
			return err
		}
		attachment = llm.Attachment{
			Title: llm.String(name),
			Type:  llm.String(mimeType),
		}
		if url := info.URL(); url != "" {
			attachment.URL = llm.String(url)
		}
		return nil
	})
	if err != nil {
		return llm.Attachment{}, fmt.Errorf("upload %s: %w", name, err)
	}
	return attachment, nil
}
