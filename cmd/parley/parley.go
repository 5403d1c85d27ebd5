// Package parleycmder
package parleycmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/parley/cmd/parley/auth"
	chatcmder "github.com/papercomputeco/parley/cmd/parley/chat"
	configcmder "github.com/papercomputeco/parley/cmd/parley/config"
	historycmder "github.com/papercomputeco/parley/cmd/parley/history"
	initcmder "github.com/papercomputeco/parley/cmd/parley/init"
	statuscmder "github.com/papercomputeco/parley/cmd/parley/status"
	versioncmder "github.com/papercomputeco/parley/cmd/version"
)

const parleyLongDesc string = `Parley is a streaming chat client for OpenAI-compatible APIs.

Answers are streamed token by token into the terminal. Lines starting with %
are commands (%help lists them). Finished exchanges are archived locally and
can be published to Kafka.

Get started:
  parley auth openai     Store an API key
  parley chat            Start chatting
  parley history         List archived exchanges`

const parleyShortDesc string = "Parley - streaming chat for OpenAI-compatible APIs"

func NewParleyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "parley",
		Short:         parleyShortDesc,
		Long:          parleyLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .parley/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
