package api

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/pkg/llm"
	"github.com/lumonlabs/aria/pkg/orchestrator"
	"github.com/lumonlabs/aria/pkg/stream"
)

// ChatStreamRequest is the body of POST /v1/chat/stream.
type ChatStreamRequest struct {
	// SessionID groups turns into a conversation.
	SessionID string `json:"session_id"`

	// Messages is the full transcript, oldest first. The last entry must
	// be from the user.
	Messages []ChatMessage `json:"messages"`

	// ToolsEnabled opts the turn into the tool loop. Defaults to true.
	ToolsEnabled *bool `json:"tools_enabled,omitempty"`
}

// ChatMessage is one transcript entry in a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// handleChatStream runs one conversational turn, streaming the response as
// SSE frames over chunked transfer encoding.
func (s *Server) handleChatStream(c *fiber.Ctx) error {
	var req ChatStreamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	if len(req.Messages) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "messages required"})
	}
	if req.Messages[len(req.Messages)-1].Role != "user" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "last message must be from the user"})
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, llm.NewTextMessage(m.Role, m.Content))
	}

	turn := orchestrator.Turn{
		SessionID:    req.SessionID,
		RequesterID:  requesterID(c),
		Messages:     messages,
		ToolsEnabled: req.ToolsEnabled == nil || *req.ToolsEnabled,
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("Connection", "keep-alive")

	// Run the turn on a detached context: fasthttp recycles its RequestCtx
	// after the handler returns, but side effects started during the turn
	// (background jobs, lifecycle events) must outlive the connection.
	pr, pw := io.Pipe()
	go s.runTurn(turn, pw)

	// Unknown size (-1) triggers chunked transfer encoding; pw.Write blocks
	// until fasthttp flushes each chunk to the socket, giving true per-frame
	// streaming with backpressure.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (s *Server) runTurn(turn orchestrator.Turn, pw *io.PipeWriter) {
	defer pw.Close()

	emitter := stream.NewEmitter(pw)
	emitter.StartKeepAlive(s.config.KeepAliveInterval)

	state := s.orch.Run(context.Background(), turn, emitter)
	s.logger.Debug("chat stream finished",
		zap.String("session_id", turn.SessionID),
		zap.Stringer("state", state),
	)
}

// requesterID identifies the caller for policy checks. Header-based for
// now; replaced by the verified principal once auth lands in front.
func requesterID(c *fiber.Ctx) string {
	return c.Get("X-Requester-ID")
}
