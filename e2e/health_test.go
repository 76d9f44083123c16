package e2e

import (
	"net/http"
	"strings"
	"testing"
)

func TestHealth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != "ok" {
		t.Errorf("expected status ok, got %v", result["status"])
	}
	services, ok := result["services"].(map[string]interface{})
	if !ok || services["store"] != "sqlite" {
		t.Errorf("expected services.store sqlite, got %v", result["services"])
	}
}

func TestMetrics(t *testing.T) {
	ta := setupApp(t)
	createProperty(t, ta.app)

	resp := asCleaner(t, ta.app, http.MethodPut, taskPath(0, 0, "completion"), `{"isCompleted": true}`)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp, err := doRequest(ta.app, http.MethodGet, "/metrics", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusOK)
	body := readBody(t, resp)
	if !strings.Contains(body, "cleanflow_mutations_total") {
		t.Errorf("expected mutation counter in metrics output")
	}
}

func TestNotFoundRoute(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/nope", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusNotFound)
	assertErrorCode(t, resp, "NOT_FOUND")
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/ws/jobs/job-1", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusUpgradeRequired)
	resp.Body.Close()
}
