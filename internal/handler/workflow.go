package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/cleanflow/api/internal/middleware"
	"github.com/cleanflow/api/internal/model"
	"github.com/cleanflow/api/internal/service"
	"github.com/cleanflow/api/internal/workflow"
	"github.com/cleanflow/api/pkg/response"
)

type WorkflowHandler struct {
	tracker   *workflow.Tracker
	queue     service.EventSink
	validator *validator.Validate
}

// NewWorkflowHandler creates the workflow handler. When queue is non-nil,
// ingested events are queued instead of applied inline.
func NewWorkflowHandler(tracker *workflow.Tracker, queue service.EventSink, v *validator.Validate) *WorkflowHandler {
	return &WorkflowHandler{
		tracker:   tracker,
		queue:     queue,
		validator: v,
	}
}

// Event handles POST /api/workflow/events
func (h *WorkflowHandler) Event(c *fiber.Ctx) error {
	var ev model.WorkflowEvent
	if err := c.BodyParser(&ev); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&ev); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	ev.ActorID = middleware.GetUserID(c)

	if h.queue != nil {
		if err := h.queue.Emit(c.Context(), ev); err != nil {
			return response.FromError(c, err)
		}
		return response.Accepted(c, fiber.Map{"jobId": ev.JobID, "status": "queued"})
	}

	result, err := h.tracker.Handle(c.Context(), ev)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"job": result.Job, "outcome": result.Outcome})
}

// List handles GET /api/workflow/jobs
func (h *WorkflowHandler) List(c *fiber.Ctx) error {
	jobs, err := h.tracker.List(c.Context())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"jobs": jobs})
}

// Get handles GET /api/workflow/jobs/:jobId
func (h *WorkflowHandler) Get(c *fiber.Ctx) error {
	job, err := h.tracker.Get(c.Context(), c.Params("jobId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, job)
}

// Cancel handles POST /api/workflow/jobs/:jobId/cancel
func (h *WorkflowHandler) Cancel(c *fiber.Ctx) error {
	var req model.CancelJobRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}
	ts := time.Now().UTC()
	if req.UpdatedAt != nil && !req.UpdatedAt.IsZero() {
		ts = req.UpdatedAt.UTC()
	}

	result, err := h.tracker.Cancel(c.Context(), c.Params("jobId"), ts)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"job": result.Job, "outcome": result.Outcome})
}
