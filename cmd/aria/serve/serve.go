// Package servecmder provides the serve command for running the assistant server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/api"
	"github.com/lumonlabs/aria/api/mcp"
	"github.com/lumonlabs/aria/pkg/config"
	"github.com/lumonlabs/aria/pkg/eventstream"
	kafkaevents "github.com/lumonlabs/aria/pkg/eventstream/kafka"
	nopevents "github.com/lumonlabs/aria/pkg/eventstream/nop"
	"github.com/lumonlabs/aria/pkg/imagegen"
	"github.com/lumonlabs/aria/pkg/imagegen/hf"
	"github.com/lumonlabs/aria/pkg/jobs"
	"github.com/lumonlabs/aria/pkg/jobs/inmemory"
	"github.com/lumonlabs/aria/pkg/jobs/postgres"
	"github.com/lumonlabs/aria/pkg/jobs/sqlite"
	"github.com/lumonlabs/aria/pkg/llm/provider"
	"github.com/lumonlabs/aria/pkg/logger"
	"github.com/lumonlabs/aria/pkg/moderation"
	"github.com/lumonlabs/aria/pkg/orchestrator"
	"github.com/lumonlabs/aria/pkg/policy"
	"github.com/lumonlabs/aria/pkg/tools"
)

type ServeCommander struct {
	listen     string
	jobsDriver string
	jobsSQLite string
	jobsPG     string
	modelName  string
	configDir  string
	debug      bool
	viper      *viper.Viper
	logger     *zap.Logger
}

var serveFlags = config.FlagSet{
	config.FlagAPIListen: {
		Name: "listen", Shorthand: "l", ViperKey: "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagJobsDriver: {
		Name: "jobs-driver", ViperKey: "jobs.driver",
		Description: "Job store backend (memory, sqlite, postgres)",
	},
	config.FlagJobsSQLite: {
		Name: "jobs-sqlite", ViperKey: "jobs.sqlite_path",
		Description: "Path to the SQLite job database",
	},
	config.FlagJobsPostgres: {
		Name: "jobs-postgres", ViperKey: "jobs.postgres_dsn",
		Description: "Postgres DSN for the job store",
	},
	config.FlagModelName: {
		Name: "model", Shorthand: "m", ViperKey: "model.name",
		Description: "Model name to request from the provider",
	},
}

const serveLongDesc string = `Run the Aria assistant server.

Serves the streaming chat endpoint, background image jobs, the session
event stream, and (when enabled) the MCP tool surface.`

const serveShortDesc string = "Run the Aria assistant server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, []string{
				config.FlagAPIListen,
				config.FlagJobsDriver,
				config.FlagJobsSQLite,
				config.FlagJobsPostgres,
				config.FlagModelName,
			})
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagJobsDriver, &cmder.jobsDriver)
	config.AddStringFlag(cmd, serveFlags, config.FlagJobsSQLite, &cmder.jobsSQLite)
	config.AddStringFlag(cmd, serveFlags, config.FlagJobsPostgres, &cmder.jobsPG)
	config.AddStringFlag(cmd, serveFlags, config.FlagModelName, &cmder.modelName)
	cmd.Flags().StringVar(&cmder.configDir, "config-dir", "", "Override the .aria/ config directory")

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	v := c.viper

	// Job store
	store, err := c.createStore(v)
	if err != nil {
		return err
	}
	defer store.Close()

	// Image generation provider
	generator := c.createGenerator(v)

	// Lifecycle event publisher
	events := c.createPublisher(v)
	defer events.Close()

	// Session broker for proactive messages
	broker := eventstream.NewBroker()

	// Background job runner
	runner, err := jobs.NewRunner(jobs.RunnerConfig{
		Store:     store,
		Generator: generator,
		Ceiling:   time.Duration(v.GetInt("jobs.ceiling_seconds")) * time.Second,
		Events:    events,
		Notices:   broker,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating job runner: %w", err)
	}

	// Optional TTL sweep of terminal job records
	if ttl := v.GetInt("jobs.ttl_seconds"); ttl > 0 {
		sweeper, err := jobs.NewSweeper(jobs.SweeperConfig{
			Store:  store,
			TTL:    time.Duration(ttl) * time.Second,
			Logger: c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating job sweeper: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
		c.logger.Info("sweeping terminal jobs", zap.Int("ttl_seconds", ttl))
	}

	// Tool registry
	registry := tools.NewRegistry(c.logger)
	if err := registry.Register(tools.NewGenerateImageTool(runner)); err != nil {
		return fmt.Errorf("registering generate_image: %w", err)
	}
	if err := registry.Register(tools.NewUserStatsTool(defaultStats)); err != nil {
		return fmt.Errorf("registering get_user_stats: %w", err)
	}

	// Capability policy
	table := policy.NewAdminTable(v.GetStringSlice("policy.admins"))

	// Upstream model client
	client, err := provider.New(v.GetString("model.provider"), provider.Config{
		Target: v.GetString("model.target"),
		APIKey: v.GetString("model.api_key"),
	})
	if err != nil {
		return fmt.Errorf("creating model client: %w", err)
	}

	// Turn orchestrator
	orch, err := orchestrator.New(
		moderation.NewRuleGate(),
		client,
		registry,
		table,
		events,
		orchestrator.Config{
			Model:         v.GetString("model.name"),
			MaxToolRounds: v.GetInt("orchestrator.max_tool_rounds"),
			ModelTimeout:  time.Duration(v.GetInt("orchestrator.model_timeout_seconds")) * time.Second,
			ToolTimeout:   time.Duration(v.GetInt("orchestrator.tool_timeout_seconds")) * time.Second,
			FailClosed:    v.GetBool("moderation.fail_closed"),
		},
		c.logger,
	)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	// Optional MCP surface
	mcpServer, err := mcp.NewServer(mcp.Config{
		Registry: registry,
		Noop:     !v.GetBool("mcp.enabled"),
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer := api.NewServer(
		api.Config{ListenAddr: v.GetString("api.listen")},
		orch,
		runner,
		store,
		broker,
		mcpServer.Handler(),
		c.logger,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	if err := apiServer.Shutdown(); err != nil {
		c.logger.Warn("API server shutdown failed", zap.Error(err))
	}

	// Let in-flight jobs finalize before the store closes.
	runner.Wait()

	return nil
}

func (c *ServeCommander) createStore(v *viper.Viper) (jobs.Store, error) {
	switch driver := v.GetString("jobs.driver"); driver {
	case "sqlite":
		store, err := sqlite.NewStore(v.GetString("jobs.sqlite_path"))
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite job store: %w", err)
		}
		c.logger.Info("using SQLite job store", zap.String("path", v.GetString("jobs.sqlite_path")))
		return store, nil

	case "postgres":
		store, err := postgres.NewStore(context.Background(), v.GetString("jobs.postgres_dsn"))
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres job store: %w", err)
		}
		c.logger.Info("using Postgres job store")
		return store, nil

	case "memory", "":
		c.logger.Info("using in-memory job store")
		return inmemory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown jobs driver: %q", driver)
	}
}

func (c *ServeCommander) createGenerator(v *viper.Viper) imagegen.Generator {
	return hf.New(
		v.GetString("images.target"),
		v.GetString("images.model"),
		v.GetString("images.api_key"),
		nil,
	)
}

func (c *ServeCommander) createPublisher(v *viper.Viper) eventstream.Publisher {
	if v.GetString("events.provider") == "kafka" {
		brokers := v.GetStringSlice("events.brokers")
		if len(brokers) > 0 {
			c.logger.Info("publishing lifecycle events to kafka",
				zap.Strings("brokers", brokers),
				zap.String("topic", v.GetString("events.topic")),
			)
			return kafkaevents.NewPublisher(brokers, v.GetString("events.topic"), c.logger)
		}
		c.logger.Warn("events.provider is kafka but no brokers configured, events disabled")
	}
	return nopevents.NewPublisher()
}

// defaultStats serves until a real profile store backs the stats tool.
func defaultStats(_ context.Context, requesterID string) (map[string]any, error) {
	return map[string]any{
		"user_id": requesterID,
		"level":   1,
		"xp":      0,
		"coins":   0,
	}, nil
}
