// Package configcmder provides the config command for managing persistent
// trickle configuration stored in the .trickle/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/trickle/pkg/cliui"
	"github.com/papercomputeco/trickle/pkg/config"
)

const configLongDesc string = `Manage persistent trickle configuration.

Configuration is stored as config.toml in the .trickle/ directory and provides
default values for command flags. CLI flags and TRICKLE_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.target, client.text_path, client.tokens_path, client.llm_path,
  client.chat_path, client.timeout,
  stream.max_buffer,
  storage.sqlite_path, storage.postgres_dsn,
  eventstream.brokers, eventstream.topic

Examples:
  trickle config set client.target http://localhost:8000
  trickle config set eventstream.brokers localhost:9092
  trickle config get client.timeout
  trickle config list`

const configShortDesc string = "Manage persistent trickle configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// completeKeys offers config keys for the first argument.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func openConfiger(cmd *cobra.Command, out io.Writer) (*config.Configer, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	fmt.Fprintf(out, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Config file:"),
		cliui.DimStyle.Render(cfger.GetTarget()),
	)
	return cfger, nil
}
