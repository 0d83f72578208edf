package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/lumonlabs/aria/pkg/jobs"
	"github.com/lumonlabs/aria/pkg/llm"
)

// GenerateImageRequest is the body of POST /v1/images/generate.
type GenerateImageRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateImageResponse acknowledges a spawned job.
type GenerateImageResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// handleGetJob returns the current snapshot of a job.
func (s *Server) handleGetJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "id parameter required"})
	}

	job, err := s.store.Get(c.Context(), id)
	if err != nil {
		var notFound jobs.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "job not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to load job"})
	}

	return c.JSON(job)
}

// handleGenerateImage spawns an image job directly, outside any turn.
func (s *Server) handleGenerateImage(c *fiber.Ctx) error {
	var req GenerateImageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "prompt required"})
	}

	id, err := s.runner.Spawn(c.Context(), req.Prompt)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to spawn job"})
	}

	return c.Status(fiber.StatusAccepted).JSON(GenerateImageResponse{
		JobID:  id,
		Status: string(jobs.StatusQueued),
	})
}
