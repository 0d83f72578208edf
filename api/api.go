package api

import (
	"net/http"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/pkg/eventstream"
	"github.com/lumonlabs/aria/pkg/jobs"
	"github.com/lumonlabs/aria/pkg/orchestrator"
)

const defaultKeepAliveInterval = 15 * time.Second

// Server is the assistant's HTTP surface. The orchestrator, job runner,
// and job store are injected so they can be shared with other components.
type Server struct {
	config Config
	orch   *orchestrator.Orchestrator
	runner *jobs.Runner
	store  jobs.Store
	broker *eventstream.Broker
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The mcpHandler is optional; when nil
// the /mcp route is not mounted.
func NewServer(
	config Config,
	orch *orchestrator.Orchestrator,
	runner *jobs.Runner,
	store jobs.Store,
	broker *eventstream.Broker,
	mcpHandler http.Handler,
	logger *zap.Logger,
) *Server {
	if config.KeepAliveInterval <= 0 {
		config.KeepAliveInterval = defaultKeepAliveInterval
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		orch:   orch,
		runner: runner,
		store:  store,
		broker: broker,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/v1/chat/stream", s.handleChatStream)
	app.Get("/v1/jobs/:id", s.handleGetJob)
	app.Post("/v1/images/generate", s.handleGenerateImage)
	app.Get("/v1/events/:session", s.handleSessionEvents)

	if mcpHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(mcpHandler))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}
