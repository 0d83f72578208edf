package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent aria configuration stored as config.toml
// in the .aria/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version      int                `toml:"version"`
	API          APIConfig          `toml:"api"`
	Model        ModelConfig        `toml:"model"`
	Moderation   ModerationConfig   `toml:"moderation"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Jobs         JobsConfig         `toml:"jobs"`
	Images       ImagesConfig       `toml:"images"`
	Events       EventsConfig       `toml:"events"`
	MCP          MCPConfig          `toml:"mcp"`
	Policy       PolicyConfig       `toml:"policy"`
	Client       ClientConfig       `toml:"client"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ModelConfig holds the upstream chat model settings.
type ModelConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	Name     string `toml:"name,omitempty"`
}

// ModerationConfig holds moderation gate settings.
type ModerationConfig struct {
	// FailClosed blocks turns when the gate itself errors instead of
	// letting them through.
	FailClosed bool `toml:"fail_closed,omitempty"`
}

// OrchestratorConfig holds turn execution settings.
type OrchestratorConfig struct {
	MaxToolRounds       int `toml:"max_tool_rounds,omitempty"`
	ModelTimeoutSeconds int `toml:"model_timeout_seconds,omitempty"`
	ToolTimeoutSeconds  int `toml:"tool_timeout_seconds,omitempty"`
}

// JobsConfig holds background job store settings.
type JobsConfig struct {
	// Driver selects the store backend: memory, sqlite, or postgres.
	Driver         string `toml:"driver,omitempty"`
	SQLitePath     string `toml:"sqlite_path,omitempty"`
	PostgresDSN    string `toml:"postgres_dsn,omitempty"`
	CeilingSeconds int    `toml:"ceiling_seconds,omitempty"`

	// TTLSeconds enables the terminal-record sweeper when positive.
	// Zero (the default) keeps records forever.
	TTLSeconds int `toml:"ttl_seconds,omitempty"`
}

// ImagesConfig holds the image generation provider settings.
type ImagesConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// EventsConfig holds lifecycle event publishing settings.
type EventsConfig struct {
	// Provider selects the publisher backend: nop or kafka.
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// MCPConfig holds the MCP tool surface settings.
type MCPConfig struct {
	Enabled bool `toml:"enabled,omitempty"`
}

// PolicyConfig holds capability policy settings.
type PolicyConfig struct {
	// Admins are requester ids granted the admin role.
	Admins []string `toml:"admins,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// aria server (e.g. aria chat). Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"model.provider": {
		get: func(c *Config) string { return c.Model.Provider },
		set: func(c *Config, v string) error { c.Model.Provider = v; return nil },
	},
	"model.target": {
		get: func(c *Config) string { return c.Model.Target },
		set: func(c *Config, v string) error { c.Model.Target = v; return nil },
	},
	"model.api_key": {
		get: func(c *Config) string { return c.Model.APIKey },
		set: func(c *Config, v string) error { c.Model.APIKey = v; return nil },
	},
	"model.name": {
		get: func(c *Config) string { return c.Model.Name },
		set: func(c *Config, v string) error { c.Model.Name = v; return nil },
	},
	"moderation.fail_closed": {
		get: func(c *Config) string { return strconv.FormatBool(c.Moderation.FailClosed) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for moderation.fail_closed: %w", err)
			}
			c.Moderation.FailClosed = b
			return nil
		},
	},
	"orchestrator.max_tool_rounds": {
		get: func(c *Config) string {
			if c.Orchestrator.MaxToolRounds == 0 {
				return ""
			}
			return strconv.Itoa(c.Orchestrator.MaxToolRounds)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for orchestrator.max_tool_rounds: %w", err)
			}
			c.Orchestrator.MaxToolRounds = n
			return nil
		},
	},
	"orchestrator.model_timeout_seconds": {
		get: func(c *Config) string {
			if c.Orchestrator.ModelTimeoutSeconds == 0 {
				return ""
			}
			return strconv.Itoa(c.Orchestrator.ModelTimeoutSeconds)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for orchestrator.model_timeout_seconds: %w", err)
			}
			c.Orchestrator.ModelTimeoutSeconds = n
			return nil
		},
	},
	"orchestrator.tool_timeout_seconds": {
		get: func(c *Config) string {
			if c.Orchestrator.ToolTimeoutSeconds == 0 {
				return ""
			}
			return strconv.Itoa(c.Orchestrator.ToolTimeoutSeconds)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for orchestrator.tool_timeout_seconds: %w", err)
			}
			c.Orchestrator.ToolTimeoutSeconds = n
			return nil
		},
	},
	"jobs.driver": {
		get: func(c *Config) string { return c.Jobs.Driver },
		set: func(c *Config, v string) error { c.Jobs.Driver = v; return nil },
	},
	"jobs.sqlite_path": {
		get: func(c *Config) string { return c.Jobs.SQLitePath },
		set: func(c *Config, v string) error { c.Jobs.SQLitePath = v; return nil },
	},
	"jobs.postgres_dsn": {
		get: func(c *Config) string { return c.Jobs.PostgresDSN },
		set: func(c *Config, v string) error { c.Jobs.PostgresDSN = v; return nil },
	},
	"jobs.ceiling_seconds": {
		get: func(c *Config) string {
			if c.Jobs.CeilingSeconds == 0 {
				return ""
			}
			return strconv.Itoa(c.Jobs.CeilingSeconds)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for jobs.ceiling_seconds: %w", err)
			}
			c.Jobs.CeilingSeconds = n
			return nil
		},
	},
	"jobs.ttl_seconds": {
		get: func(c *Config) string {
			if c.Jobs.TTLSeconds == 0 {
				return ""
			}
			return strconv.Itoa(c.Jobs.TTLSeconds)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for jobs.ttl_seconds: %w", err)
			}
			c.Jobs.TTLSeconds = n
			return nil
		},
	},
	"images.provider": {
		get: func(c *Config) string { return c.Images.Provider },
		set: func(c *Config, v string) error { c.Images.Provider = v; return nil },
	},
	"images.target": {
		get: func(c *Config) string { return c.Images.Target },
		set: func(c *Config, v string) error { c.Images.Target = v; return nil },
	},
	"images.api_key": {
		get: func(c *Config) string { return c.Images.APIKey },
		set: func(c *Config, v string) error { c.Images.APIKey = v; return nil },
	},
	"images.model": {
		get: func(c *Config) string { return c.Images.Model },
		set: func(c *Config, v string) error { c.Images.Model = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error { c.Events.Brokers = splitList(v); return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"mcp.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.MCP.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for mcp.enabled: %w", err)
			}
			c.MCP.Enabled = b
			return nil
		},
	},
	"policy.admins": {
		get: func(c *Config) string { return strings.Join(c.Policy.Admins, ",") },
		set: func(c *Config, v string) error { c.Policy.Admins = splitList(v); return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
}

// splitList parses a comma-separated value into a trimmed slice, dropping
// empty entries.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
