package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/cleanflow/api/internal/middleware"
	"github.com/cleanflow/api/internal/model"
	"github.com/cleanflow/api/internal/service"
	"github.com/cleanflow/api/pkg/response"
)

type PropertyHandler struct {
	service   *service.PropertyService
	validator *validator.Validate
}

func NewPropertyHandler(svc *service.PropertyService, v *validator.Validate) *PropertyHandler {
	return &PropertyHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/properties
func (h *PropertyHandler) Create(c *fiber.Ctx) error {
	var req model.CreatePropertyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Create(c.Context(), &req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, result)
}

// List handles GET /api/properties?includeInactive=true
func (h *PropertyHandler) List(c *fiber.Ctx) error {
	result, err := h.service.List(c.Context(), c.QueryBool("includeInactive", false))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"properties": result})
}

// Get handles GET /api/properties/:propertyId
func (h *PropertyHandler) Get(c *fiber.Ctx) error {
	result, err := h.service.Get(c.Context(), c.Params("propertyId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// SetActive handles PATCH /api/properties/:propertyId/active
func (h *PropertyHandler) SetActive(c *fiber.Ctx) error {
	var req model.SetActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.SetActive(c.Context(), c.Params("propertyId"), *req.IsActive)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// Assign handles PUT /api/properties/:propertyId/assignment
func (h *PropertyHandler) Assign(c *fiber.Ctx) error {
	var req model.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Assign(c.Context(), c.Params("propertyId"), *req.AssignedTo)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// MyTasks handles GET /api/tasks: the properties assigned to the caller
func (h *PropertyHandler) MyTasks(c *fiber.Ctx) error {
	result, err := h.service.Assigned(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"properties": result})
}

// MyTaskStats handles GET /api/tasks/stats
func (h *PropertyHandler) MyTaskStats(c *fiber.Ctx) error {
	result, err := h.service.TaskStats(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// MyProperty handles GET /api/tasks/properties/:propertyId
func (h *PropertyHandler) MyProperty(c *fiber.Ctx) error {
	result, err := h.service.AssignedProperty(c.Context(), middleware.GetUserID(c), c.Params("propertyId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// Status handles GET /api/properties/:propertyId/status
func (h *PropertyHandler) Status(c *fiber.Ctx) error {
	result, err := h.service.GetPropertyStatus(c.Context(), c.Params("propertyId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// Dashboard handles GET /api/dashboard
func (h *PropertyHandler) Dashboard(c *fiber.Ctx) error {
	result, err := h.service.Dashboard(c.Context())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// Reports handles GET /api/reports
func (h *PropertyHandler) Reports(c *fiber.Ctx) error {
	result, err := h.service.Reports(c.Context())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"reports": result})
}
