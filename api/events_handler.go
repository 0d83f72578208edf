package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/pkg/eventstream"
	"github.com/lumonlabs/aria/pkg/llm"
)

// handleSessionEvents streams proactive messages for a session as SSE.
// The stream stays open until the client disconnects.
func (s *Server) handleSessionEvents(c *fiber.Ctx) error {
	session := c.Params("session")
	if session == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "session parameter required"})
	}

	messages, unsubscribe := s.broker.Subscribe(session)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("Connection", "keep-alive")

	pr, pw := io.Pipe()
	go s.pumpSessionEvents(session, messages, unsubscribe, pw)

	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// pumpSessionEvents forwards broker messages to the pipe until a write
// fails, which is the only disconnect signal the pipe gives us. Periodic
// comment pings force a write even when the session is quiet.
func (s *Server) pumpSessionEvents(session string, messages <-chan eventstream.ProactiveMessage, unsubscribe func(), pw *io.PipeWriter) {
	defer pw.Close()
	defer unsubscribe()

	ping := time.NewTicker(s.config.KeepAliveInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warn("failed to encode proactive message",
					zap.String("session_id", session),
					zap.Error(err),
				)
				continue
			}
			if _, err := fmt.Fprintf(pw, "data: %s\n\n", payload); err != nil {
				return
			}
		case <-ping.C:
			if _, err := io.WriteString(pw, ": ping\n\n"); err != nil {
				return
			}
		}
	}
}
