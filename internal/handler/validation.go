package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/cleanflow/api/internal/service"
)

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

func indexParam(c *fiber.Ctx, name string) (int, bool) {
	idx, err := strconv.Atoi(c.Params(name))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// taskRef reads the property, room and task path parameters
func taskRef(c *fiber.Ctx) (service.TaskRef, bool) {
	room, ok := indexParam(c, "roomIndex")
	if !ok {
		return service.TaskRef{}, false
	}
	task, ok := indexParam(c, "taskIndex")
	if !ok {
		return service.TaskRef{}, false
	}
	return service.TaskRef{PropertyID: c.Params("propertyId"), RoomIndex: room, TaskIndex: task}, true
}

const invalidIndexMessage = "roomIndex and taskIndex must be non-negative integers"
