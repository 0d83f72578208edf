package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/lumonlabs/aria/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the ARIA_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (ARIA_API_LISTEN, ARIA_MODEL_API_KEY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: ARIA_API_LISTEN, ARIA_JOBS_DRIVER, etc.
	v.SetEnvPrefix("ARIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Model
	v.SetDefault("model.provider", d.Model.Provider)
	v.SetDefault("model.target", d.Model.Target)
	v.SetDefault("model.api_key", d.Model.APIKey)
	v.SetDefault("model.name", d.Model.Name)

	// Moderation
	v.SetDefault("moderation.fail_closed", d.Moderation.FailClosed)

	// Orchestrator
	v.SetDefault("orchestrator.max_tool_rounds", d.Orchestrator.MaxToolRounds)
	v.SetDefault("orchestrator.model_timeout_seconds", d.Orchestrator.ModelTimeoutSeconds)
	v.SetDefault("orchestrator.tool_timeout_seconds", d.Orchestrator.ToolTimeoutSeconds)

	// Jobs
	v.SetDefault("jobs.driver", d.Jobs.Driver)
	v.SetDefault("jobs.sqlite_path", d.Jobs.SQLitePath)
	v.SetDefault("jobs.postgres_dsn", d.Jobs.PostgresDSN)
	v.SetDefault("jobs.ceiling_seconds", d.Jobs.CeilingSeconds)
	v.SetDefault("jobs.ttl_seconds", d.Jobs.TTLSeconds)

	// Images
	v.SetDefault("images.provider", d.Images.Provider)
	v.SetDefault("images.target", d.Images.Target)
	v.SetDefault("images.api_key", d.Images.APIKey)
	v.SetDefault("images.model", d.Images.Model)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// MCP
	v.SetDefault("mcp.enabled", d.MCP.Enabled)

	// Policy
	v.SetDefault("policy.admins", d.Policy.Admins)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
}
