// Package historycmder provides the history command, which reads recorded
// chat threads back from the transcript store.
package historycmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/trickle/cmd/trickle/cmdutil"
	"github.com/papercomputeco/trickle/pkg/cliui"
	"github.com/papercomputeco/trickle/pkg/config"
	"github.com/papercomputeco/trickle/pkg/logger"
	"github.com/papercomputeco/trickle/pkg/transcript"
	"github.com/papercomputeco/trickle/pkg/utils"
)

const historyLongDesc string = `Show recorded chat threads.

Without arguments, lists every thread, most recent first. With a thread id,
prints that thread's turns.

Examples:
  trickle history
  trickle history chat-1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed --markdown`

const historyShortDesc string = "Show recorded chat threads"

const previewLen = 60

var historyFlags = []string{config.FlagSQLite, config.FlagPostgres}

type historyCommander struct {
	sqlitePath  string
	postgresDSN string
	markdown    bool
	debug       bool

	out    io.Writer
	logger *zap.Logger
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}
	var settings *cmdutil.Settings

	cmd := &cobra.Command{
		Use:   "history [thread-id]",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			settings, err = cmdutil.Load(cmd, historyFlags...)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.out = cmd.OutOrStdout()

			threadID := ""
			if len(args) == 1 {
				threadID = args[0]
			}
			return cmder.run(cmd.Context(), settings, threadID)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render assistant replies as markdown")

	return cmd
}

func (c *historyCommander) run(ctx context.Context, settings *cmdutil.Settings, threadID string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	store, err := settings.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if threadID == "" {
		return c.listThreads(ctx, store)
	}
	return c.showThread(ctx, store, threadID)
}

func (c *historyCommander) listThreads(ctx context.Context, store transcript.Store) error {
	threads, err := store.Threads(ctx)
	if err != nil {
		return fmt.Errorf("listing threads: %w", err)
	}

	if len(threads) == 0 {
		fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render("No threads recorded yet."))
		return nil
	}

	fmt.Fprintln(c.out)
	for _, t := range threads {
		entries, err := store.List(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("reading thread %s: %w", t.ID, err)
		}
		last := entries[len(entries)-1]

		fmt.Fprintf(c.out, "  %s %s\n    %s\n",
			cliui.NameStyle.Render(t.ID),
			cliui.DimStyle.Render("("+strconv.Itoa(t.Entries)+" entries, "+last.CreatedAt.Local().Format("2006-01-02 15:04")+")"),
			utils.Truncate(utils.OneLine(last.Content), previewLen),
		)
	}
	fmt.Fprintln(c.out)

	return nil
}

func (c *historyCommander) showThread(ctx context.Context, store transcript.Store, threadID string) error {
	entries, err := store.List(ctx, threadID)
	if err != nil {
		var notFound transcript.NotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("no thread %q in the transcript store", threadID)
		}
		return fmt.Errorf("reading thread: %w", err)
	}

	fmt.Fprintln(c.out)
	for _, e := range entries {
		switch e.Role {
		case transcript.RoleUser:
			fmt.Fprintf(c.out, "%s %s\n\n", cliui.UserPrompt, e.Content)

		default:
			content := e.Content
			if c.markdown {
				rendered, err := cliui.RenderMarkdown(content)
				if err != nil {
					c.logger.Debug("rendering markdown", zap.Error(err))
				}
				content = "\n" + rendered
			}
			fmt.Fprintf(c.out, "%s %s\n\n", cliui.AssistantPrompt, content)
		}
	}

	return nil
}
