package e2e

import (
	"net/http"
	"testing"
)

func TestTaskCompletion_PartialProperty(t *testing.T) {
	ta := setupApp(t)
	createProperty(t, ta.app)

	for i := 0; i < 2; i++ {
		resp := asCleaner(t, ta.app, http.MethodPut, taskPath(0, i, "completion"), `{"isCompleted": true}`)
		assertStatus(t, resp, http.StatusOK)
		result := parseJSON(t, resp)
		if result["isCompleted"] != true || result["completedAt"] == nil {
			t.Errorf("expected task %d completed with completedAt, got %v", i, result)
		}
	}

	resp := asCleaner(t, ta.app, http.MethodGet, "/api/properties/harbour-1/status", "")
	assertStatus(t, resp, http.StatusOK)
	status := parseJSON(t, resp)
	if status["bucket"] != "in_progress" {
		t.Errorf("expected in_progress, got %v", status["bucket"])
	}
	rooms, _ := status["roomStatuses"].([]interface{})
	if len(rooms) != 2 {
		t.Fatalf("expected 2 room statuses, got %d", len(rooms))
	}
	if rooms[0].(map[string]interface{})["completed"] != true {
		t.Errorf("expected bathroom completed")
	}
	if rooms[1].(map[string]interface{})["completed"] != false {
		t.Errorf("expected kitchen not completed")
	}

	resp = asCleaner(t, ta.app, http.MethodGet, "/api/dashboard", "")
	dash := parseJSON(t, resp)
	if dash["inProgress"] != float64(1) || dash["completedTasks"] != float64(2) {
		t.Errorf("unexpected dashboard %v", dash)
	}
}

func TestTaskCompletion_OlderWriteLoses(t *testing.T) {
	ta := setupApp(t)
	createProperty(t, ta.app)

	resp := asCleaner(t, ta.app, http.MethodPut, taskPath(0, 0, "completion"),
		`{"isCompleted": true, "updatedAt": "2026-05-04T09:00:10Z"}`)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = asCleaner(t, ta.app, http.MethodPut, taskPath(0, 0, "completion"),
		`{"isCompleted": false, "updatedAt": "2026-05-04T09:00:05Z"}`)
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["stale"] != true {
		t.Errorf("expected the older write to be reported stale")
	}
	if result["isCompleted"] != true {
		t.Errorf("expected the newer value to win, got %v", result["isCompleted"])
	}
}

func TestTaskNotes_SiblingFieldsSurvive(t *testing.T) {
	ta := setupApp(t)
	createProperty(t, ta.app)

	resp := asCleaner(t, ta.app, http.MethodPut, taskPath(1, 0, "completion"), `{"isCompleted": true}`)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = asCleaner(t, ta.app, http.MethodPut, taskPath(1, 0, "notes"), `{"notes": "grease behind the hob"}`)
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["notes"] != "grease behind the hob" {
		t.Errorf("expected note to be stored, got %v", result["notes"])
	}
	if result["isCompleted"] != true {
		t.Errorf("expected completion to survive a notes write")
	}
}

func TestRoomCompletion(t *testing.T) {
	ta := setupApp(t)
	createProperty(t, ta.app)

	resp := asCleaner(t, ta.app, http.MethodPut, "/api/properties/harbour-1/rooms/0/completion", `{"isCompleted": true}`)
	assertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = asAdmin(t, ta.app, http.MethodPut, "/api/properties/harbour-1/rooms/0/completion", `{"isCompleted": true}`)
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	status, _ := result["status"].(map[string]interface{})
	if status["completed"] != true || status["completedTasks"] != float64(2) {
		t.Errorf("expected every bathroom task completed, got %v", status)
	}
}

func TestTaskMutation_BadAddress(t *testing.T) {
	ta := setupApp(t)
	createProperty(t, ta.app)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"non-numeric room", "/api/properties/harbour-1/rooms/abc/tasks/0/completion", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative task", "/api/properties/harbour-1/rooms/0/tasks/-1/completion", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"room out of range", taskPath(9, 0, "completion"), http.StatusNotFound, "NOT_FOUND"},
		{"task out of range", taskPath(0, 5, "completion"), http.StatusNotFound, "NOT_FOUND"},
		{"unknown property", "/api/properties/nope/rooms/0/tasks/0/completion", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := asCleaner(t, ta.app, http.MethodPut, tt.path, `{"isCompleted": true}`)
			assertStatus(t, resp, tt.status)
			assertErrorCode(t, resp, tt.code)
		})
	}

	resp := asCleaner(t, ta.app, http.MethodPut, taskPath(0, 0, "completion"), `{}`)
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorCode(t, resp, "VALIDATION_ERROR")
}

func TestIssues(t *testing.T) {
	ta := setupApp(t)
	createProperty(t, ta.app)

	resp := asCleaner(t, ta.app, http.MethodPost, taskPath(0, 1, "issues"),
		`{"type": "damage", "description": "cracked tile"}`)
	assertStatus(t, resp, http.StatusCreated)
	issue := parseJSON(t, resp)
	issueID, _ := issue["id"].(string)
	if issueID == "" {
		t.Fatalf("expected issue id, got %v", issue)
	}
	if issue["severity"] != "medium" {
		t.Errorf("expected default severity medium, got %v", issue["severity"])
	}

	resolvePath := taskPath(0, 1, "issues/"+issueID+"/resolution")
	resp = asCleaner(t, ta.app, http.MethodPut, resolvePath, `{"isResolved": true}`)
	assertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = asAdmin(t, ta.app, http.MethodPut, taskPath(0, 1, "issues/missing/resolution"), `{"isResolved": true}`)
	assertStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	// before resolving, the report lists the issue
	resp = asAdmin(t, ta.app, http.MethodGet, "/api/reports", "")
	reports, _ := parseJSON(t, resp)["reports"].([]interface{})
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	open, _ := reports[0].(map[string]interface{})["unresolvedIssues"].([]interface{})
	if len(open) != 1 {
		t.Errorf("expected 1 unresolved issue, got %v", open)
	}

	resp = asAdmin(t, ta.app, http.MethodPut, resolvePath, `{"isResolved": true}`)
	assertStatus(t, resp, http.StatusOK)
	resolved := parseJSON(t, resp)
	if resolved["isResolved"] != true || resolved["resolvedAt"] == nil {
		t.Errorf("expected issue resolved with resolvedAt, got %v", resolved)
	}

	resp = asAdmin(t, ta.app, http.MethodGet, "/api/reports", "")
	reports, _ = parseJSON(t, resp)["reports"].([]interface{})
	open, _ = reports[0].(map[string]interface{})["unresolvedIssues"].([]interface{})
	if len(open) != 0 {
		t.Errorf("expected no unresolved issues, got %v", open)
	}
}
