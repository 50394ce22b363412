package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"dispatch-service/internal/service"
	"dispatch-service/internal/storage"

	"github.com/gorilla/mux"
)

func newTestRouter(t *testing.T) (*mux.Router, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	engine := service.NewEngine(store, service.DefaultPricingConfig(), service.TransitionPolicy{}, nil)

	router := mux.NewRouter()
	NewHTTPHandler(engine, store).RegisterRoutes(router)
	return router, store
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func registerUnit(t *testing.T, router *mux.Router, name string, lat, lng float64) {
	t.Helper()

	recorder := doJSON(t, router, "POST", "/units", RegisterUnitRequest{ID: name, Name: name, Lat: lat, Lng: lng})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Expected 201 registering unit, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func bookJob(t *testing.T, router *mux.Router) *storage.Job {
	t.Helper()

	recorder := doJSON(t, router, "POST", "/jobs", JobRequest{
		CustomerName: "test customer",
		Lat:          32.08,
		Lng:          34.78,
		Level:        3,
		Services:     []string{"exterior"},
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var job storage.Job
	if err := json.Unmarshal(recorder.Body.Bytes(), &job); err != nil {
		t.Fatalf("Failed to decode job: %v", err)
	}
	return &job
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doJSON(t, router, "GET", "/health", nil)
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", recorder.Code)
	}
}

func TestCreateJobEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	registerUnit(t, router, "unit-a", 32.09, 34.79)

	job := bookJob(t, router)

	if job.Status != storage.StatusPending {
		t.Errorf("Expected pending, got %s", job.Status)
	}
	if job.AssignedUnitID == nil || *job.AssignedUnitID != "unit-a" {
		t.Errorf("Expected assignment to unit-a, got %v", job.AssignedUnitID)
	}
	if job.Price <= 0 {
		t.Errorf("Expected a price, got %f", job.Price)
	}
}

func TestCreateJobEndpoint_Validation(t *testing.T) {
	router, _ := newTestRouter(t)
	registerUnit(t, router, "unit-a", 32.09, 34.79)

	recorder := doJSON(t, router, "POST", "/jobs", JobRequest{Lat: 32.08, Lng: 34.78, Level: 3})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing customer name, got %d", recorder.Code)
	}

	recorder = doJSON(t, router, "POST", "/jobs", JobRequest{CustomerName: "x", Lat: 32.08, Lng: 34.78, Level: 7})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad level, got %d", recorder.Code)
	}

	req := httptest.NewRequest("POST", "/jobs", bytes.NewBufferString("{not json"))
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid JSON, got %d", recorder.Code)
	}
}

func TestCreateJobEndpoint_NoUnits(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doJSON(t, router, "POST", "/jobs", JobRequest{
		CustomerName: "test customer",
		Lat:          32.08,
		Lng:          34.78,
		Level:        3,
	})
	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected 409 with no units, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestEstimateEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	registerUnit(t, router, "unit-a", 32.09, 34.79)

	recorder := doJSON(t, router, "POST", "/estimate", JobRequest{
		CustomerName: "test customer",
		Lat:          32.08,
		Lng:          34.78,
		Level:        3,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var quote service.Quote
	if err := json.Unmarshal(recorder.Body.Bytes(), &quote); err != nil {
		t.Fatalf("Failed to decode quote: %v", err)
	}
	if quote.UnitName != "unit-a" {
		t.Errorf("Expected unit-a, got %s", quote.UnitName)
	}
	if quote.Price <= 0 || quote.DurationMinutes <= 0 {
		t.Errorf("Expected price and duration, got %f / %d", quote.Price, quote.DurationMinutes)
	}

	jobs, _ := store.GetAllJobs(context.Background())
	if len(jobs) != 0 {
		t.Errorf("Expected estimate to persist nothing, got %d jobs", len(jobs))
	}
}

func TestSetJobStatusEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	registerUnit(t, router, "unit-a", 32.09, 34.79)
	job := bookJob(t, router)

	recorder := doJSON(t, router, "POST", "/jobs/"+job.ID+"/status", StatusRequest{Status: storage.StatusEnRoute})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["status"] != storage.StatusEnRoute {
		t.Errorf("Expected en_route, got %s", body["status"])
	}

	recorder = doJSON(t, router, "POST", "/jobs/"+job.ID+"/status", StatusRequest{Status: "paused"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", recorder.Code)
	}

	recorder = doJSON(t, router, "POST", "/jobs/missing/status", StatusRequest{Status: storage.StatusCompleted})
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown job, got %d", recorder.Code)
	}
}

func TestGetJobEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	registerUnit(t, router, "unit-a", 32.09, 34.79)
	job := bookJob(t, router)

	recorder := doJSON(t, router, "GET", "/jobs/"+job.ID, nil)
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", recorder.Code)
	}

	recorder = doJSON(t, router, "GET", "/jobs/missing", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", recorder.Code)
	}

	recorder = doJSON(t, router, "GET", fmt.Sprintf("/jobs/status/%s", storage.StatusPending), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	var jobs []*storage.Job
	if err := json.Unmarshal(recorder.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("Failed to decode jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("Expected 1 pending job, got %d", len(jobs))
	}

	recorder = doJSON(t, router, "GET", "/jobs/"+job.ID+"/log", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	var entries []*storage.ActivityLogEntry
	if err := json.Unmarshal(recorder.Body.Bytes(), &entries); err != nil {
		t.Fatalf("Failed to decode log: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 log entry, got %d", len(entries))
	}
}

func TestUnitEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	registerUnit(t, router, "unit-b", 32.30, 34.90)
	registerUnit(t, router, "unit-a", 32.09, 34.79)

	recorder := doJSON(t, router, "POST", "/units", RegisterUnitRequest{Lat: 1, Lng: 2})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing name, got %d", recorder.Code)
	}

	bookJob(t, router)

	recorder = doJSON(t, router, "GET", "/units", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var units []*storage.Unit
	if err := json.Unmarshal(recorder.Body.Bytes(), &units); err != nil {
		t.Fatalf("Failed to decode units: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("Expected 2 units, got %d", len(units))
	}

	// free unit-b sorts before busy unit-a
	if !units[0].Available || units[0].ID != "unit-b" {
		t.Errorf("Expected free unit-b first, got %s (available=%v)", units[0].ID, units[0].Available)
	}
}
