package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bakkerme/dialx/internal/flows"
)

const inlineLongDesc string = `Describe a local image.

The image is base64-encoded into a data URL, combined with the prompt and
flattened into a single text message before it is sent.

Examples:
  dialx inline
  dialx inline --model gpt-4o photo.jpg
  dialx inline --prompt "Count the animals" -t out.md photo.jpg`

type inlineCommander struct {
	app         *app
	model       string
	prompt      string
	fallbackURL string
}

func (a *app) inlineCmd() *cobra.Command {
	cmder := &inlineCommander{app: a}

	cmd := &cobra.Command{
		Use:   "inline [image]",
		Short: "Describe a local image sent inline",
		Long:  inlineLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image := ""
			if len(args) == 1 {
				image = args[0]
			}
			return cmder.run(cmd.Context(), cmd, image)
		},
	}

	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Deployment name")
	cmd.Flags().StringVarP(&cmder.prompt, "prompt", "p", "", "Question to ask about the image")
	cmd.Flags().StringVar(&cmder.fallbackURL, "fallback-url", "", "Image URL to send when the file is empty")

	return cmd
}

func (c *inlineCommander) run(ctx context.Context, cmd *cobra.Command, image string) error {
	doc := c.app.doc
	model := firstNonEmpty(c.model, doc.ModelFor(doc.Inline.Model))
	client, err := c.app.newModel(c.app, model)
	if err != nil {
		return fmt.Errorf("could not create model client: %w", err)
	}

	result, err := flows.InlineImage(ctx, client, flows.InlineInput{
		ImagePath:   firstNonEmpty(image, doc.Inline.Image),
		Prompt:      firstNonEmpty(c.prompt, doc.Inline.Prompt),
		FallbackURL: firstNonEmpty(c.fallbackURL, doc.Inline.FallbackURL, c.app.env.Dial.DefaultImageURL),
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Reply.Content)
	return c.app.saveTranscript(result.Conversation)
}
