// Package tricklecmder is the root of the trickle CLI.
package tricklecmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/trickle/cmd/trickle/chat"
	configcmder "github.com/papercomputeco/trickle/cmd/trickle/config"
	historycmder "github.com/papercomputeco/trickle/cmd/trickle/history"
	streamcmder "github.com/papercomputeco/trickle/cmd/trickle/stream"
	versioncmder "github.com/papercomputeco/trickle/cmd/trickle/version"
)

const trickleLongDesc string = `Trickle consumes server-sent event streams.

Print a stream as it arrives:
  trickle stream llm
  trickle stream tokens "tell me a story"

Chat interactively and keep a transcript:
  trickle chat
  trickle history`

const trickleShortDesc string = "Trickle - streaming response client"

func NewTrickleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "trickle",
		Short:        trickleShortDesc,
		Long:         trickleLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .trickle/ config directory")

	cmd.AddCommand(streamcmder.NewStreamCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
