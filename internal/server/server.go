// Package server assembles the fiber application: global middleware,
// the HTTP query surface and the websocket observers.
package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/cleanflow/api/internal/config"
	"github.com/cleanflow/api/internal/handler"
	"github.com/cleanflow/api/internal/middleware"
	"github.com/cleanflow/api/internal/model"
	ws "github.com/cleanflow/api/internal/websocket"
)

// Handlers are the route handlers mounted by New
type Handlers struct {
	Property *handler.PropertyHandler
	Task     *handler.TaskHandler
	Workflow *handler.WorkflowHandler
	Auth     *handler.AuthHandler
}

// Options carries the cross-cutting pieces of the app
type Options struct {
	Auth        fiber.Handler
	RateLimiter *middleware.RateLimiter
	RateLimit   config.RateLimitConfig
	Hub         *ws.Hub
	Metrics     http.Handler
	Health      fiber.Map
	LogLevel    string
}

// New builds the fiber app with every route registered
func New(h Handlers, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    20 * 1024 * 1024, // 20MB
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(opts.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"services": opts.Health,
		})
	})
	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}
	if h.Auth != nil {
		app.Get("/auth/verify", h.Auth.Verify)
	}

	admin := middleware.RequireRole(model.RoleAdmin, model.RoleSystem)
	mutations := opts.RateLimiter.MutationLimit(opts.RateLimit.MutationsPerMin)

	api := app.Group("/api", opts.Auth)

	// Property routes
	props := api.Group("/properties")
	props.Post("/", admin, h.Property.Create)
	props.Get("/", h.Property.List)
	props.Get("/:propertyId", h.Property.Get)
	props.Patch("/:propertyId/active", admin, h.Property.SetActive)
	props.Put("/:propertyId/assignment", admin, h.Property.Assign)
	props.Get("/:propertyId/status", h.Property.Status)

	// Task routes
	rooms := props.Group("/:propertyId/rooms/:roomIndex", mutations)
	rooms.Put("/completion", admin, h.Task.SetRoomCompletion)
	tasks := rooms.Group("/tasks/:taskIndex")
	tasks.Put("/completion", h.Task.SetCompletion)
	tasks.Put("/notes", h.Task.SetNotes)
	tasks.Post("/photos", h.Task.AddPhoto)
	tasks.Post("/photos/upload", opts.RateLimiter.UploadLimit(opts.RateLimit.UploadsPerHour), h.Task.UploadPhoto)
	tasks.Post("/issues", h.Task.AddIssue)
	tasks.Put("/issues/:issueId/resolution", admin, h.Task.ResolveIssue)

	mine := api.Group("/tasks")
	mine.Get("/", h.Property.MyTasks)
	mine.Get("/stats", h.Property.MyTaskStats)
	mine.Get("/properties/:propertyId", h.Property.MyProperty)

	api.Get("/dashboard", h.Property.Dashboard)
	api.Get("/reports", h.Property.Reports)

	// Workflow routes
	wf := api.Group("/workflow")
	wf.Post("/events", opts.RateLimiter.EventLimit(opts.RateLimit.EventsPerMin), h.Workflow.Event)
	wf.Get("/jobs", h.Workflow.List)
	wf.Get("/jobs/:jobId", h.Workflow.Get)
	wf.Post("/jobs/:jobId/cancel", admin, h.Workflow.Cancel)

	// WebSocket routes
	if opts.Hub != nil {
		mountObservers(app, opts.Auth, opts.Hub)
	}

	return app
}

func mountObservers(app *fiber.App, authenticate fiber.Handler, hub *ws.Hub) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, authenticate, func(c *fiber.Ctx) error {
		c.Locals("observerId", middleware.GetUserID(c))
		return c.Next()
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, observer(c), ws.JobTopic(c.Params("jobId")))
	}))
	app.Get("/ws/properties/:propertyId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, observer(c), ws.PropertyTopic(c.Params("propertyId")))
	}))
	app.Get("/ws/dashboard/:observerId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("observerId"), ws.TopicAll)
	}))
}

func observer(c *websocket.Conn) string {
	if id, ok := c.Locals("observerId").(string); ok && id != "" {
		return id
	}
	return c.RemoteAddr().String()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	errCode := "SERVICE_ERROR"
	switch code {
	case fiber.StatusNotFound:
		errCode = "NOT_FOUND"
	case fiber.StatusUpgradeRequired, fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
		errCode = "VALIDATION_ERROR"
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    errCode,
			"message": message,
		},
	})
}
