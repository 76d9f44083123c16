package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cleanflow/api/internal/auth"
	"github.com/cleanflow/api/internal/config"
	"github.com/cleanflow/api/internal/handler"
	"github.com/cleanflow/api/internal/metrics"
	"github.com/cleanflow/api/internal/middleware"
	"github.com/cleanflow/api/internal/model"
	"github.com/cleanflow/api/internal/server"
	"github.com/cleanflow/api/internal/service"
	"github.com/cleanflow/api/internal/store"
	ws "github.com/cleanflow/api/internal/websocket"
	"github.com/cleanflow/api/internal/workflow"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	redis *miniredis.Miniredis
}

// setupApp wires the same components as cmd/server against miniredis and
// an in-memory sqlite store. Storage is unconfigured so uploads get mock URLs.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	st, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	validate := validator.New()
	recorder := metrics.NewRecorder(prom.NewRegistry())

	hub := ws.NewHub(recorder)
	go hub.Run()
	t.Cleanup(hub.Close)

	tracker := workflow.NewTracker(redisClient, hub, recorder)
	cache, err := service.NewStatusCache(64, recorder)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	coordinator := service.NewCoordinator(st, hub, service.NewTrackerSink(tracker), cache, recorder)
	propertyService := service.NewPropertyService(st, cache)
	uploadService := service.NewUploadService(nil, coordinator)

	app := server.New(server.Handlers{
		Property: handler.NewPropertyHandler(propertyService, validate),
		Task:     handler.NewTaskHandler(coordinator, uploadService, validate),
		Workflow: handler.NewWorkflowHandler(tracker, nil, validate),
		Auth:     handler.NewAuthHandler(nil, testJWTSecret),
	}, server.Options{
		Auth:        middleware.NewLegacyAuthMiddleware(testJWTSecret).Authenticate(),
		RateLimiter: middleware.NewRateLimiter(redisClient),
		// very high limits so tests don't get blocked
		RateLimit: config.RateLimitConfig{MutationsPerMin: 10000, UploadsPerHour: 10000, EventsPerMin: 10000},
		Hub:       hub,
		Metrics:   recorder.Handler(),
		Health:    fiber.Map{"store": "sqlite"},
	})

	return &testApp{app: app, redis: mr}
}

// generateToken creates a legacy HMAC JWT token for test requests
func generateToken(t *testing.T, userID, role string) string {
	t.Helper()
	signed, err := auth.SignLegacyToken(testJWTSecret, userID, role)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest performs an HTTP request against the test app
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAs performs a request authenticated as the given role
func doAs(t *testing.T, app *fiber.App, role, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, role+"-1", role),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func asAdmin(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	return doAs(t, app, model.RoleAdmin, method, path, body)
}

func asCleaner(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	return doAs(t, app, model.RoleCleaner, method, path, body)
}

// readBody reads and returns the response body as a string
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorCode checks the error envelope's code
func assertErrorCode(t *testing.T, resp *http.Response, code string) {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %s, got %v", code, errObj["code"])
	}
}

const harbourFlat = `{
	"propertyId": "harbour-1",
	"name": "Harbour Flat",
	"address": "12 Quay Rd",
	"type": "apartment",
	"roomTasks": [
		{"roomType": "bathroom", "tasks": [{"description": "scrub tub"}, {"description": "mop floor"}]},
		{"roomType": "kitchen", "tasks": [{"description": "wipe counters"}]}
	]
}`

// createProperty registers the harbour-1 fixture
func createProperty(t *testing.T, app *fiber.App) {
	t.Helper()
	resp := asAdmin(t, app, http.MethodPost, "/api/properties", harbourFlat)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("failed to create property: %d %s", resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()
}

func taskPath(room, task int, suffix string) string {
	return "/api/properties/harbour-1/rooms/" + strconv.Itoa(room) + "/tasks/" + strconv.Itoa(task) + "/" + suffix
}
