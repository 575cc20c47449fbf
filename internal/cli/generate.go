package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bakkerme/dialx/internal/flows"
	"github.com/bakkerme/dialx/internal/schedule"
)

const generateLongDesc string = `Generate an image from a prompt.

Returned attachments are downloaded from the DIAL bucket and written as
generated_image_<timestamp>.png in the output directory. Generation errors
are logged and do not fail the command.

With --cron (or generate.schedule in the document) the generation runs on
every schedule match until interrupted.

Examples:
  dialx generate "Sunny day on Bali"
  dialx generate --size 1792x1024 --style natural "A lighthouse at dusk"
  dialx generate --cron "0 9 * * *" --timezone Europe/Amsterdam`

type generateCommander struct {
	app       *app
	model     string
	size      string
	quality   string
	style     string
	outputDir string
	cron      string
	timezone  string
}

func (a *app) generateCmd() *cobra.Command {
	cmder := &generateCommander{app: a}

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate an image and save it locally",
		Long:  generateLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := ""
			if len(args) == 1 {
				prompt = args[0]
			}
			return cmder.run(cmd.Context(), cmd, prompt)
		},
	}

	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Deployment name")
	cmd.Flags().StringVar(&cmder.size, "size", "", "Image size: 1024x1024, 1024x1792 or 1792x1024")
	cmd.Flags().StringVar(&cmder.quality, "quality", "", "Image quality: standard or hd")
	cmd.Flags().StringVar(&cmder.style, "style", "", "Image style: natural or vivid")
	cmd.Flags().StringVarP(&cmder.outputDir, "output-dir", "o", "", "Directory for downloaded images")
	cmd.Flags().StringVar(&cmder.cron, "cron", "", "Run on this cron schedule instead of once")
	cmd.Flags().StringVar(&cmder.timezone, "timezone", "", "Time zone for --cron (default UTC)")

	return cmd
}

func (c *generateCommander) run(ctx context.Context, cmd *cobra.Command, prompt string) error {
	doc := c.app.doc.Generate
	in := flows.GenerationInput{
		Prompt:    firstNonEmpty(prompt, doc.Prompt),
		Size:      flows.Size(firstNonEmpty(c.size, doc.Size)),
		Quality:   flows.Quality(firstNonEmpty(c.quality, doc.Quality)),
		Style:     flows.Style(firstNonEmpty(c.style, doc.Style)),
		OutputDir: firstNonEmpty(c.outputDir, doc.OutputDir),
	}

	spec := firstNonEmpty(c.cron, doc.Schedule)
	if spec == "" {
		c.generateOnce(ctx, cmd, in)
		return nil
	}

	cron := schedule.NewCron(spec, firstNonEmpty(c.timezone, doc.Timezone))
	ticks, err := cron.Start(ctx)
	if err != nil {
		return fmt.Errorf("could not start schedule: %w", err)
	}
	defer cron.Stop()

	if next, err := cron.Next(timeNow()); err == nil {
		c.app.logger.Info("generation scheduled", "schedule", spec, "next", next)
	}
	for tick := range ticks {
		c.app.logger.Info("scheduled generation", "at", tick.Timestamp)
		c.generateOnce(ctx, cmd, in)
	}
	return nil
}

// generateOnce runs the flow and logs failures instead of returning them.
func (c *generateCommander) generateOnce(ctx context.Context, cmd *cobra.Command, in flows.GenerationInput) {
	logger := c.app.logger
	model := firstNonEmpty(c.model, c.app.doc.ModelFor(c.app.doc.Generate.Model))
	client, err := c.app.newModel(c.app, model)
	if err != nil {
		logger.Error("error during image generation", "error", err)
		return
	}

	result, err := flows.Generate(ctx, client, c.app.newStore(c.app), in)
	for _, path := range result.Files {
		fmt.Fprintf(cmd.OutOrStdout(), "Image saved locally as %s\n", path)
	}
	if err != nil {
		logger.Error("error during image generation", "error", err)
	} else if len(result.Files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No attachments found in the response.")
	}
	if err := c.app.saveTranscript(result.Conversation); err != nil {
		logger.Error("could not write transcript", "error", err)
	}
}
