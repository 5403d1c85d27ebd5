// Package configcmder provides the config command for managing persistent
// parley configuration stored in the .parley/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent parley configuration.

Configuration is stored as config.toml in the .parley/ directory and provides
default values for command flags. CLI flags and PARLEY_* environment
variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.endpoint, client.model, client.timeout,
  chat.placeholder, chat.save_file,
  storage.sqlite_path, storage.postgres_dsn,
  events.kafka_brokers, events.kafka_topic,
  log.debug, log.json

Use subcommands to get, set, or list configuration values:
  parley config set <key> <value>    Set a configuration value
  parley config get <key>            Get a configuration value
  parley config list                 List all configuration values

Examples:
  parley config set client.model gpt-4o
  parley config set events.kafka_brokers localhost:9092,localhost:9093
  parley config get client.endpoint
  parley config list`

const configShortDesc string = "Manage persistent parley configuration"

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
