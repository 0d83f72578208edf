package config

const (
	defaultAPIListen = ":8080"

	defaultModelProvider = "gemini"
	defaultModelTarget   = "https://generativelanguage.googleapis.com"
	defaultModelName     = "gemini-2.0-flash"

	defaultMaxToolRounds  = 1
	defaultModelTimeoutS  = 30
	defaultToolTimeoutS   = 30
	defaultJobCeilingS    = 120
	defaultJobsDriver     = "memory"
	defaultJobsSQLitePath = "aria-jobs.db"

	defaultImagesProvider = "hf"
	defaultImagesTarget   = "https://api-inference.huggingface.co"
	defaultImagesModel    = "stabilityai/stable-diffusion-xl-base-1.0"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "aria.events"

	defaultClientAPITarget = "http://localhost:8080"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Model: ModelConfig{
			Provider: defaultModelProvider,
			Target:   defaultModelTarget,
			Name:     defaultModelName,
		},
		Orchestrator: OrchestratorConfig{
			MaxToolRounds:       defaultMaxToolRounds,
			ModelTimeoutSeconds: defaultModelTimeoutS,
			ToolTimeoutSeconds:  defaultToolTimeoutS,
		},
		Jobs: JobsConfig{
			Driver:         defaultJobsDriver,
			SQLitePath:     defaultJobsSQLitePath,
			CeilingSeconds: defaultJobCeilingS,
		},
		Images: ImagesConfig{
			Provider: defaultImagesProvider,
			Target:   defaultImagesTarget,
			Model:    defaultImagesModel,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}
