package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"dispatch-service/internal/service"
	"dispatch-service/internal/storage"

	"github.com/gorilla/mux"
)

// HTTPHandler handles HTTP requests for the dispatch service
type HTTPHandler struct {
	engine *service.Engine
	store  storage.Store
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(engine *service.Engine, store storage.Store) *HTTPHandler {
	return &HTTPHandler{
		engine: engine,
		store:  store,
	}
}

// RegisterRoutes sets up HTTP routes
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/estimate", h.Estimate).Methods("POST")
	router.HandleFunc("/jobs", h.GetAllJobs).Methods("GET")
	router.HandleFunc("/jobs", h.CreateJob).Methods("POST")
	router.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	router.HandleFunc("/jobs/{id}/status", h.SetJobStatus).Methods("POST")
	router.HandleFunc("/jobs/{id}/log", h.GetActivityLog).Methods("GET")
	router.HandleFunc("/jobs/status/{status}", h.GetJobsByStatus).Methods("GET")
	router.HandleFunc("/units", h.GetAllUnits).Methods("GET")
	router.HandleFunc("/units", h.RegisterUnit).Methods("POST")
}

// Health returns service health status
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// JobRequest represents an estimate or booking request
type JobRequest struct {
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	Level         int       `json:"level"`
	Services      []string  `json:"services"`
	RequestedAt   time.Time `json:"requested_at"`
}

// StatusRequest represents a status transition request
type StatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// RegisterUnitRequest represents an out-of-band unit registration
type RegisterUnitRequest struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Estimate prices a request without committing anything
func (h *HTTPHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	quote, err := h.engine.Estimate(r.Context(), toServiceRequest(req))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// CreateJob books a job onto a unit
func (h *HTTPHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.CustomerName == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing customer name")
		return
	}

	job, err := h.engine.CreateJob(r.Context(), toServiceRequest(req))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// GetJob retrieves a specific job
func (h *HTTPHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.engine.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// SetJobStatus applies a status transition to a job
func (h *HTTPHandler) SetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	job, err := h.engine.SetJobStatus(r.Context(), jobID, req.Status, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": job.Status})
}

// GetActivityLog returns a job's transition history
func (h *HTTPHandler) GetActivityLog(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	entries, err := h.engine.GetActivityLog(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// GetAllJobs returns all jobs
func (h *HTTPHandler) GetAllJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.GetAllJobs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

// GetJobsByStatus returns jobs with a specific status
func (h *HTTPHandler) GetJobsByStatus(w http.ResponseWriter, r *http.Request) {
	status := mux.Vars(r)["status"]

	jobs, err := h.store.GetJobsByStatus(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

// GetAllUnits returns all units, free units first
func (h *HTTPHandler) GetAllUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.store.GetAllUnits(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	sort.Slice(units, func(i, j int) bool {
		if units[i].Available != units[j].Available {
			return units[i].Available
		}
		return units[i].ID < units[j].ID
	})

	writeJSON(w, http.StatusOK, units)
}

// RegisterUnit adds a new unit to the pool
func (h *HTTPHandler) RegisterUnit(w http.ResponseWriter, r *http.Request) {
	var req RegisterUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing unit name")
		return
	}

	unit := &storage.Unit{
		ID:        req.ID,
		Name:      req.Name,
		Lat:       req.Lat,
		Lng:       req.Lng,
		Available: true,
	}
	if err := h.store.CreateUnit(r.Context(), unit); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, unit)
}

func toServiceRequest(req JobRequest) service.JobRequest {
	return service.JobRequest{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Lat:           req.Lat,
		Lng:           req.Lng,
		Level:         req.Level,
		Services:      req.Services,
		RequestedAt:   req.RequestedAt,
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidStatus):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrJobNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNoUnitAvailable):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrConflict):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
