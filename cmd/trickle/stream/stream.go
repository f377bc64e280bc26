// Package streamcmder provides the stream command, which prints one of the
// backend's demo streams as it arrives.
package streamcmder

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/trickle/cmd/trickle/cmdutil"
	"github.com/papercomputeco/trickle/pkg/cliui"
	"github.com/papercomputeco/trickle/pkg/config"
	"github.com/papercomputeco/trickle/pkg/logger"
	"github.com/papercomputeco/trickle/pkg/stream"
	"github.com/papercomputeco/trickle/pkg/streaming"
)

const streamLongDesc string = `Stream text from the backend and print it as it arrives.

Fragments are printed exactly as received: no whitespace is added between
them. Press Ctrl+C to cancel a stream early.

Subcommands:
  trickle stream text <text>      Echo a line-framed text stream
  trickle stream tokens [prompt]  Print a token stream
  trickle stream llm              Print a simulated LLM response`

const streamShortDesc string = "Print a streamed response"

// streamFlags are bound on every stream subcommand.
var streamFlags = []string{config.FlagTarget, config.FlagTimeout, config.FlagMaxBuffer}

type streamCommander struct {
	target    string
	timeout   string
	maxBuffer int
	normalize bool
	markdown  bool
	debug     bool

	out    io.Writer
	logger *zap.Logger
}

// starter starts one kind of stream on svc.
type starter func(ctx context.Context, svc *streaming.Service, sub stream.Subscriber) *stream.Session

func NewStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: streamShortDesc,
		Long:  streamLongDesc,
	}

	cmd.AddCommand(newSubCmd(
		"text <text>",
		"Echo a line-framed text stream",
		cobra.ExactArgs(1),
		func(args []string) starter {
			return func(ctx context.Context, svc *streaming.Service, sub stream.Subscriber) *stream.Session {
				return svc.StreamText(ctx, args[0], sub)
			}
		},
	))
	cmd.AddCommand(newSubCmd(
		"tokens [prompt]",
		"Print a token stream",
		cobra.MaximumNArgs(1),
		func(args []string) starter {
			prompt := ""
			if len(args) == 1 {
				prompt = args[0]
			}
			return func(ctx context.Context, svc *streaming.Service, sub stream.Subscriber) *stream.Session {
				return svc.TokenStream(ctx, prompt, sub)
			}
		},
	))
	cmd.AddCommand(newSubCmd(
		"llm",
		"Print a simulated LLM response",
		cobra.NoArgs,
		func([]string) starter {
			return func(ctx context.Context, svc *streaming.Service, sub stream.Subscriber) *stream.Session {
				return svc.LLMStream(ctx, sub)
			}
		},
	))

	return cmd
}

func newSubCmd(use, short string, args cobra.PositionalArgs, build func([]string) starter) *cobra.Command {
	cmder := &streamCommander{}
	var settings *cmdutil.Settings

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			settings, err = cmdutil.Load(cmd, streamFlags...)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.out = cmd.OutOrStdout()

			ctx, stop := cmdutil.SignalContext(cmd.Context())
			defer stop()

			return cmder.run(ctx, settings, build(args))
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxBuffer, &cmder.maxBuffer)
	cmd.Flags().BoolVar(&cmder.normalize, "normalize", false, "Print the whitespace-normalized response once the stream completes")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render the completed response as markdown")

	return cmd
}

func (c *streamCommander) run(ctx context.Context, settings *cmdutil.Settings, start starter) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	client, err := settings.NewClient(c.logger)
	if err != nil {
		return err
	}

	cfg := settings.Config.Client
	svc := streaming.NewService(client,
		streaming.WithLogger(c.logger),
		streaming.WithPaths(streaming.Paths{Text: cfg.TextPath, Tokens: cfg.TokensPath, LLM: cfg.LLMPath}),
		streaming.WithSessionOptions(settings.SessionOptions()...),
	)

	live := !c.markdown
	collector := streaming.NewCollector(func(tok string) {
		if live {
			fmt.Fprint(c.out, tok)
		}
	})

	err = start(ctx, svc, collector).Wait()
	if live {
		fmt.Fprintln(c.out)
	}

	switch {
	case errors.Is(err, stream.ErrCancelled):
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("cancelled"))
		return nil
	case err != nil:
		return fmt.Errorf("streaming from %s: %w", client.BaseURL(), err)
	}

	if c.markdown {
		rendered, err := cliui.RenderMarkdown(collector.Text())
		if err != nil {
			c.logger.Debug("rendering markdown", zap.Error(err))
		}
		fmt.Fprint(c.out, rendered)
	}

	if c.normalize {
		fmt.Fprintf(c.out, "%s %s\n", cliui.KeyStyle.Render("normalized:"), collector.Normalized())
	}

	return nil
}
