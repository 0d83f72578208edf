// Package configcmder provides the config command for managing persistent
// aria configuration stored in the .aria/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent aria configuration.

Configuration is stored as config.toml in the .aria/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  api.listen,
  model.provider, model.target, model.api_key, model.name,
  moderation.fail_closed,
  orchestrator.max_tool_rounds,
  jobs.driver, jobs.sqlite_path, jobs.postgres_dsn,
  images.provider, images.target, images.model,
  events.provider, events.brokers, events.topic,
  mcp.enabled, policy.admins, client.api_target

Use subcommands to get, set, or list configuration values:
  aria config set <key> <value>    Set a configuration value
  aria config get <key>            Get a configuration value
  aria config list                 List all configuration values

Examples:
  aria config set model.provider openai
  aria config set jobs.driver sqlite
  aria config get model.name
  aria config list`

const configShortDesc string = "Manage persistent aria configuration"

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
