package e2e

import (
	"net/http"
	"testing"
)

func TestProtectedRoutes_NoAuth(t *testing.T) {
	ta := setupApp(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/properties"},
		{http.MethodPost, "/api/properties"},
		{http.MethodGet, "/api/dashboard"},
		{http.MethodPut, "/api/properties/harbour-1/rooms/0/tasks/0/completion"},
		{http.MethodPost, "/api/workflow/events"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			resp, err := doRequest(ta.app, rt.method, rt.path, "", nil)
			if err != nil {
				t.Fatal(err)
			}
			assertStatus(t, resp, http.StatusUnauthorized)
			assertErrorCode(t, resp, "UNAUTHORIZED")
		})
	}
}

func TestCreateProperty(t *testing.T) {
	ta := setupApp(t)

	resp := asCleaner(t, ta.app, http.MethodPost, "/api/properties", harbourFlat)
	assertStatus(t, resp, http.StatusForbidden)
	assertErrorCode(t, resp, "FORBIDDEN")

	resp = asAdmin(t, ta.app, http.MethodPost, "/api/properties", harbourFlat)
	assertStatus(t, resp, http.StatusCreated)
	result := parseJSON(t, resp)
	if result["propertyId"] != "harbour-1" {
		t.Errorf("expected propertyId harbour-1, got %v", result["propertyId"])
	}
	if result["isActive"] != true {
		t.Errorf("expected new property to be active")
	}
	rooms, _ := result["roomTasks"].([]interface{})
	if len(rooms) != 2 {
		t.Errorf("expected 2 rooms, got %d", len(rooms))
	}

	// duplicate propertyId
	resp = asAdmin(t, ta.app, http.MethodPost, "/api/properties", harbourFlat)
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorCode(t, resp, "VALIDATION_ERROR")
}

func TestCreateProperty_Validation(t *testing.T) {
	ta := setupApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"propertyId":"p","address":"x"}`},
		{"bad type", `{"propertyId":"p","name":"n","address":"x","type":"castle"}`},
		{"room without type", `{"propertyId":"p","name":"n","address":"x","roomTasks":[{"tasks":[]}]}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := asAdmin(t, ta.app, http.MethodPost, "/api/properties", tt.body)
			assertStatus(t, resp, http.StatusBadRequest)
			assertErrorCode(t, resp, "VALIDATION_ERROR")
		})
	}
}

func TestGetProperty(t *testing.T) {
	ta := setupApp(t)
	createProperty(t, ta.app)

	resp := asCleaner(t, ta.app, http.MethodGet, "/api/properties/harbour-1", "")
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["name"] != "Harbour Flat" {
		t.Errorf("expected name Harbour Flat, got %v", result["name"])
	}

	resp = asCleaner(t, ta.app, http.MethodGet, "/api/properties/missing", "")
	assertStatus(t, resp, http.StatusNotFound)
	assertErrorCode(t, resp, "NOT_FOUND")
}

func TestSoftDelete(t *testing.T) {
	ta := setupApp(t)
	createProperty(t, ta.app)

	resp := asCleaner(t, ta.app, http.MethodPatch, "/api/properties/harbour-1/active", `{"isActive": false}`)
	assertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = asAdmin(t, ta.app, http.MethodPatch, "/api/properties/harbour-1/active", `{"isActive": false}`)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = asAdmin(t, ta.app, http.MethodGet, "/api/properties", "")
	assertStatus(t, resp, http.StatusOK)
	list, _ := parseJSON(t, resp)["properties"].([]interface{})
	if len(list) != 0 {
		t.Errorf("expected inactive property to be hidden, got %d", len(list))
	}

	resp = asAdmin(t, ta.app, http.MethodGet, "/api/properties?includeInactive=true", "")
	list, _ = parseJSON(t, resp)["properties"].([]interface{})
	if len(list) != 1 {
		t.Errorf("expected inactive property with includeInactive, got %d", len(list))
	}

	// inactive and untouched: excluded from every bucket
	resp = asAdmin(t, ta.app, http.MethodGet, "/api/properties/harbour-1/status", "")
	status := parseJSON(t, resp)
	if status["included"] != false {
		t.Errorf("expected inactive property to be excluded, got %v", status)
	}

	resp = asAdmin(t, ta.app, http.MethodGet, "/api/dashboard", "")
	dash := parseJSON(t, resp)
	if dash["excluded"] != float64(1) || dash["totalProperties"] != float64(1) {
		t.Errorf("unexpected dashboard %v", dash)
	}
}
