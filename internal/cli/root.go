// Package cli implements the dialx command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bakkerme/dialx/internal/bucket"
	"github.com/bakkerme/dialx/internal/config"
	"github.com/bakkerme/dialx/internal/core"
	"github.com/bakkerme/dialx/internal/httpx"
	"github.com/bakkerme/dialx/internal/llm"
	"github.com/bakkerme/dialx/internal/llm/dial"
	"github.com/bakkerme/dialx/internal/observability/otelx"
	"github.com/bakkerme/dialx/internal/transcript"
)

const rootLongDesc string = `dialx sends images to DIAL-hosted models.

Subcommands:
  inline    describe a local image sent as a base64 data URL
  attach    upload images to the DIAL bucket and describe them as attachments
  generate  generate an image from a prompt and download the results

Configuration is read from the environment (DIAL_API_KEY, DIAL_URL, ...),
an optional .env file and an optional dialx.yaml document. Flags win over
both.`

// app is the state shared by every subcommand of one invocation.
type app struct {
	configPath string
	transcript string
	debug      bool

	env      config.EnvConfig
	doc      *config.Document
	logger   *slog.Logger
	shutdown otelx.ShutdownFunc

	loadEnv  func() config.EnvConfig
	newModel func(a *app, model string) (llm.Client, error)
	newStore func(a *app) bucket.Sessioner
}

func newApp() *app {
	return &app{
		loadEnv:  config.LoadEnv,
		newModel: dialModel,
		newStore: dialStore,
	}
}

// Execute runs the command tree against os.Args.
func Execute(ctx context.Context) error {
	return newApp().execute(ctx, nil)
}

func (a *app) execute(ctx context.Context, args []string) error {
	root := a.rootCmd()
	if args != nil {
		root.SetArgs(args)
	}
	err := root.ExecuteContext(ctx)
	if a.shutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := a.shutdown(shutdownCtx); serr != nil && a.logger != nil {
			a.logger.Warn("otel shutdown failed", "error", serr)
		}
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dialx",
		Short:         "Image analysis and generation against DIAL",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to the dialx document (default $DIALX_CONFIG or dialx.yaml)")
	cmd.PersistentFlags().StringVarP(&a.transcript, "transcript", "t", "", "Write the conversation to this .md or .html file")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(a.inlineCmd())
	cmd.AddCommand(a.attachCmd())
	cmd.AddCommand(a.generateCmd())
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	a.env = a.loadEnv()
	a.logger = newLogger(cmd.ErrOrStderr(), a.debug, a.env.LogLevel)
	slog.SetDefault(a.logger)

	path := a.configPath
	if path == "" {
		path = a.env.ConfigPath
	}
	doc, err := config.LoadDocument(path, a.env.Dial.Model)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", path, err)
	}
	a.doc = doc

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := otelx.Init(ctx, a.logger, a.env.OTel)
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	a.shutdown = shutdown

	cmd.SetContext(core.WithLogger(ctx, a.logger))
	return nil
}

func newLogger(w io.Writer, debug bool, level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if debug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// timeout prefers DIAL_HTTP_TIMEOUT over the document value.
func (a *app) timeout() time.Duration {
	if a.env.Dial.HTTPTimeout > 0 {
		return a.env.Dial.HTTPTimeout
	}
	return time.Duration(a.doc.Timeout)
}

func (a *app) traceConfig() (httpx.TraceConfig, bool) {
	if !a.env.OTel.Enabled || !a.env.Dial.OTel.Enabled {
		return httpx.TraceConfig{}, false
	}
	return httpx.TraceConfig{
		CaptureBodies: a.env.Dial.OTel.CaptureBodies,
		MaxBodyBytes:  a.env.Dial.OTel.MaxBodyBytes,
	}, true
}

func dialModel(a *app, model string) (llm.Client, error) {
	opts := []dial.Option{dial.WithLogger(a.logger), dial.WithTimeout(a.timeout())}
	if cfg, ok := a.traceConfig(); ok {
		opts = append(opts, dial.WithTracing(cfg))
	}
	return dial.NewClient(a.env.Dial.ChatCompletionsEndpoint, model, a.env.Dial.APIKey, opts...)
}

func dialStore(a *app) bucket.Sessioner {
	opts := []bucket.Option{bucket.WithLogger(a.logger), bucket.WithTimeout(a.timeout())}
	if cfg, ok := a.traceConfig(); ok {
		opts = append(opts, bucket.WithTracing(cfg))
	}
	return bucket.NewClient(a.env.Dial.APIKey, a.env.Dial.URL, opts...)
}

func (a *app) saveTranscript(conv *llm.Conversation) error {
	if a.transcript == "" || conv == nil {
		return nil
	}
	if err := transcript.Save(a.transcript, conv); err != nil {
		return err
	}
	a.logger.Info("transcript written", "path", a.transcript)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var timeNow = time.Now
