package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bakkerme/dialx/internal/flows"
)

const attachLongDesc string = `Upload images to the DIAL bucket and describe them.

Each file is uploaded in its own bucket session, in order, and referenced
from a single message as an attachment. The model is asked to describe the
images and, when there are several, to compare them.

Examples:
  dialx attach banner.png
  dialx attach --model gpt-4o before.png after.png`

type attachCommander struct {
	app      *app
	model    string
	mimeType string
}

func (a *app) attachCmd() *cobra.Command {
	cmder := &attachCommander{app: a}

	cmd := &cobra.Command{
		Use:   "attach [files...]",
		Short: "Describe images uploaded as attachments",
		Long:  attachLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Deployment name")
	cmd.Flags().StringVar(&cmder.mimeType, "mime-type", "", "MIME type for every file (sniffed when empty)")

	return cmd
}

func (c *attachCommander) run(ctx context.Context, cmd *cobra.Command, files []string) error {
	doc := c.app.doc
	if len(files) == 0 {
		files = doc.Attach.Files
	}
	model := firstNonEmpty(c.model, doc.ModelFor(doc.Attach.Model))
	client, err := c.app.newModel(c.app, model)
	if err != nil {
		return fmt.Errorf("could not create model client: %w", err)
	}

	c.app.logger.Info("analysing attachments", "model", model, "files", files)
	result, err := flows.BucketImages(ctx, client, c.app.newStore(c.app), flows.AttachmentInput{
		Files:    files,
		MimeType: firstNonEmpty(c.mimeType, doc.Attach.MimeType),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Model %s: %s\n", model, result.Reply.Content)
	return c.app.saveTranscript(result.Conversation)
}
