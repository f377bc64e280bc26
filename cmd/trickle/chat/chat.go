// Package chatcmder provides the chat command for an interactive chat against
// the backend's streaming chat endpoint.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/trickle/cmd/trickle/cmdutil"
	"github.com/papercomputeco/trickle/pkg/chat"
	"github.com/papercomputeco/trickle/pkg/cliui"
	"github.com/papercomputeco/trickle/pkg/config"
	"github.com/papercomputeco/trickle/pkg/logger"
	"github.com/papercomputeco/trickle/pkg/stream"
	"github.com/papercomputeco/trickle/pkg/worker"
)

type chatCommander struct {
	target       string
	timeout      string
	maxBuffer    int
	sqlitePath   string
	postgresDSN  string
	kafkaBrokers string
	kafkaTopic   string
	threadID     string
	markdown     bool
	debug        bool

	in     io.Reader
	out    io.Writer
	logger *zap.Logger
}

const chatLongDesc string = `Start an interactive chat session with the backend.

Replies stream in as they are generated. Every finished turn is recorded in
the transcript store (SQLite by default, PostgreSQL with --postgres) and, when
Kafka brokers are configured, announced on the event stream.

Press Ctrl+C to cancel a reply in progress. Type /new to start a new thread
and /exit (or Ctrl+D) to quit.

Examples:
  trickle chat
  trickle chat --target http://localhost:8000 --markdown
  trickle chat --thread chat-1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed`

const chatShortDesc string = "Interactive chat with a streaming backend"

var chatFlags = []string{
	config.FlagTarget,
	config.FlagTimeout,
	config.FlagMaxBuffer,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}
	var settings *cmdutil.Settings

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			settings, err = cmdutil.Load(cmd, chatFlags...)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()

			return cmder.run(cmd.Context(), settings)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxBuffer, &cmder.maxBuffer)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	cmd.Flags().StringVar(&cmder.threadID, "thread", "", "Continue an existing thread instead of starting a new one")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render each completed reply as markdown")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, settings *cmdutil.Settings) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	client, err := settings.NewClient(c.logger)
	if err != nil {
		return err
	}

	store, err := settings.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := settings.NewPublisher(c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	pool, err := worker.NewPool(&worker.Config{
		Store:     store,
		Publisher: publisher,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	// Runs before the store and publisher close so queued turns are kept.
	defer pool.Close()

	svc := chat.NewService(client,
		chat.WithPath(settings.Config.Client.ChatPath),
		chat.WithLogger(c.logger),
		chat.WithRecorder(pool),
		chat.WithSessionOptions(settings.SessionOptions()...),
	)

	threadID := c.threadID
	if threadID == "" {
		threadID = chat.NewThreadID()
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Backend:"), cliui.NameStyle.Render(client.BaseURL()))
	fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Thread:"), cliui.DimStyle.Render(threadID))
	fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Transcript:"), cliui.DimStyle.Render(settings.StoreLocation()))
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /new starts a new thread, /exit or Ctrl+D quits."))

	scanner := bufio.NewScanner(c.in)

	for {
		fmt.Fprint(c.out, cliui.UserPrompt+" ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(c.out)
			return nil
		case "/new":
			threadID = chat.NewThreadID()
			fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Thread:"), cliui.DimStyle.Render(threadID))
			continue
		}

		c.turn(ctx, svc, input, threadID)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// turn sends one message and prints the reply. Ctrl+C cancels the reply but
// keeps the session open.
func (c *chatCommander) turn(parent context.Context, svc *chat.Service, input, threadID string) {
	ctx, stop := cmdutil.SignalContext(parent)
	defer stop()

	messages, session := svc.Send(ctx, input, threadID)

	fmt.Fprint(c.out, cliui.AssistantPrompt+" ")

	var printed string
	for msg := range messages {
		if c.markdown {
			printed = msg.Content
			continue
		}
		if msg.Content == chat.FailureMessage && printed == "" {
			fmt.Fprintf(c.out, "%s %s", cliui.FailMark, msg.Content)
			printed = msg.Content
			continue
		}
		if strings.HasPrefix(msg.Content, printed) {
			fmt.Fprint(c.out, msg.Content[len(printed):])
			printed = msg.Content
		}
	}

	err := session.Wait()

	if c.markdown && printed != "" {
		rendered, rerr := cliui.RenderMarkdown(printed)
		if rerr != nil {
			c.logger.Debug("rendering markdown", zap.Error(rerr))
		}
		fmt.Fprint(c.out, "\n"+rendered)
	}

	switch {
	case errors.Is(err, stream.ErrCancelled) && ctx.Err() != nil:
		fmt.Fprintf(c.out, " %s", cliui.DimStyle.Render("(cancelled)"))
	case err != nil && !errors.Is(err, stream.ErrCancelled):
		c.logger.Debug("chat turn failed", zap.Error(err))
	}

	fmt.Fprint(c.out, "\n\n")
}
