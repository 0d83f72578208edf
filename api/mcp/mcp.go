// Package mcp exposes the assistant's tool registry over the Model Context
// Protocol, so external MCP clients can call the same tools the model uses.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/pkg/tools"
	"github.com/lumonlabs/aria/pkg/utils"
)

type Config struct {
	// Registry supplies the tools to expose
	Registry *tools.Registry

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server mirroring the tool registry.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "aria",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	// Mirror every registered tool. The registry validates arguments and
	// owns execution; this layer only translates the wire shapes.
	for _, def := range c.Registry.Definitions() {
		tool, ok := c.Registry.Resolve(def.Name)
		if !ok {
			continue
		}
		mcpServer.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Schema,
		}, s.makeHandler(tool.Name))
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server, or nil when the
// server was built as a noop. Returning the untyped nil keeps the caller's
// nil check honest; wrapping the nil *StreamableHTTPHandler in an
// http.Handler would make it non-nil.
func (s *Server) Handler() http.Handler {
	if s.handler == nil {
		return nil
	}
	return s.handler
}

// makeHandler adapts one registry tool to the MCP call shape.
func (s *Server) makeHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{
						&mcp.TextContent{Text: "invalid arguments: " + err.Error()},
					},
				}, nil
			}
		}

		result := s.config.Registry.Dispatch(ctx, tools.Call{
			Name:      name,
			Arguments: args,
		})

		payload, err := json.Marshal(result.Payload)
		if err != nil {
			s.config.Logger.Warn("failed to serialize tool payload",
				zap.String("tool", name),
				zap.Error(err),
			)
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: "failed to serialize tool result"},
				},
			}, nil
		}

		return &mcp.CallToolResult{
			IsError: !result.Success,
			Content: []mcp.Content{
				&mcp.TextContent{Text: string(payload)},
			},
		}, nil
	}
}
