package handler

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/cleanflow/api/internal/middleware"
	"github.com/cleanflow/api/internal/model"
	"github.com/cleanflow/api/internal/service"
	"github.com/cleanflow/api/pkg/response"
)

const maxPhotoSize = 15 * 1024 * 1024 // 15MB

// TaskHandler serves every mutation on a property's room/task tree
type TaskHandler struct {
	coordinator *service.Coordinator
	uploads     *service.UploadService
	validator   *validator.Validate
}

func NewTaskHandler(coordinator *service.Coordinator, uploads *service.UploadService, v *validator.Validate) *TaskHandler {
	return &TaskHandler{
		coordinator: coordinator,
		uploads:     uploads,
		validator:   v,
	}
}

// SetRoomCompletion handles PUT /api/properties/:propertyId/rooms/:roomIndex/completion
func (h *TaskHandler) SetRoomCompletion(c *fiber.Ctx) error {
	roomIndex, ok := indexParam(c, "roomIndex")
	if !ok {
		return response.ValidationError(c, "roomIndex must be a non-negative integer", nil)
	}

	var req model.SetCompletionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.coordinator.SetRoomCompletion(c.Context(), c.Params("propertyId"), roomIndex, &req, middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// SetCompletion handles PUT .../rooms/:roomIndex/tasks/:taskIndex/completion
func (h *TaskHandler) SetCompletion(c *fiber.Ctx) error {
	ref, ok := taskRef(c)
	if !ok {
		return response.ValidationError(c, invalidIndexMessage, nil)
	}

	var req model.SetCompletionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.coordinator.SetTaskCompletion(c.Context(), ref, &req, middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// SetNotes handles PUT .../rooms/:roomIndex/tasks/:taskIndex/notes
func (h *TaskHandler) SetNotes(c *fiber.Ctx) error {
	ref, ok := taskRef(c)
	if !ok {
		return response.ValidationError(c, invalidIndexMessage, nil)
	}

	var req model.SetNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.coordinator.SetTaskNote(c.Context(), ref, &req, middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}

// AddPhoto handles POST .../rooms/:roomIndex/tasks/:taskIndex/photos
func (h *TaskHandler) AddPhoto(c *fiber.Ctx) error {
	ref, ok := taskRef(c)
	if !ok {
		return response.ValidationError(c, invalidIndexMessage, nil)
	}

	var req model.AddPhotoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.coordinator.AppendPhoto(c.Context(), ref, &req, middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, result)
}

// UploadPhoto handles POST .../rooms/:roomIndex/tasks/:taskIndex/photos/upload
// as multipart form data with a file field plus type, tags, notes, jobId
// and updatedAt.
func (h *TaskHandler) UploadPhoto(c *fiber.Ctx) error {
	ref, ok := taskRef(c)
	if !ok {
		return response.ValidationError(c, invalidIndexMessage, nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}
	if file.Size > maxPhotoSize {
		return response.ValidationError(c, "File size exceeds 15MB limit", map[string]interface{}{
			"maxSize":  maxPhotoSize,
			"fileSize": file.Size,
		})
	}
	contentType := file.Header.Get("Content-Type")
	if !service.IsAllowedContentType(contentType) {
		return response.ValidationError(c, "Invalid file type. Supported: JPEG, PNG, WEBP, HEIC", map[string]interface{}{
			"contentType": contentType,
		})
	}

	req := model.AddPhotoRequest{
		Type:  model.PhotoType(c.FormValue("type")),
		Notes: c.FormValue("notes"),
	}
	req.JobID = c.FormValue("jobId")
	if tags := strings.TrimSpace(c.FormValue("tags")); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				req.Tags = append(req.Tags, tag)
			}
		}
	}
	if raw := c.FormValue("updatedAt"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return response.ValidationError(c, "updatedAt must be an RFC 3339 timestamp", nil)
		}
		req.UpdatedAt = &ts
	}
	if err := h.validator.StructExcept(&req, "URL"); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.uploads.UploadPhoto(c.Context(), ref, &req, f, contentType, middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, result)
}

// AddIssue handles POST .../rooms/:roomIndex/tasks/:taskIndex/issues
func (h *TaskHandler) AddIssue(c *fiber.Ctx) error {
	ref, ok := taskRef(c)
	if !ok {
		return response.ValidationError(c, invalidIndexMessage, nil)
	}

	var req model.AddIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.coordinator.AppendIssue(c.Context(), ref, &req, middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, result)
}

// ResolveIssue handles PUT .../rooms/:roomIndex/tasks/:taskIndex/issues/:issueId/resolution
func (h *TaskHandler) ResolveIssue(c *fiber.Ctx) error {
	ref, ok := taskRef(c)
	if !ok {
		return response.ValidationError(c, invalidIndexMessage, nil)
	}

	var req model.ResolveIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.coordinator.ResolveIssue(c.Context(), ref, c.Params("issueId"), &req, middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, result)
}
