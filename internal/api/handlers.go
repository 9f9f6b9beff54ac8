// Package api provides HTTP handlers for CarePipe endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AudienHealth/CarePipe/internal/models"
	"github.com/AudienHealth/CarePipe/internal/schedule"
)

// DefaultEventFeedLimit caps the activity feed when no limit is requested.
const DefaultEventFeedLimit = 50

// patientsHandler handles GET /patients and POST /patients.
func (s *Server) patientsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.patientsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		patients, err := s.st.ListPatients()
		if err != nil {
			slog.Error("Server.patientsHandler: failed to list patients", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch patients"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(patients))
	case http.MethodPost:
		s.savePatient(w, r, http.StatusCreated)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// patientHandler handles GET/PUT/DELETE /patients/{id}.
func (s *Server) patientHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := strings.TrimPrefix(r.URL.Path, "/patients/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown patient endpoint"))
		return
	}
	slog.Debug("Server.patientHandler: processing request", "method", r.Method, "patientID", id)

	switch r.Method {
	case http.MethodGet:
		patient, err := s.st.GetPatient(id)
		if err != nil {
			slog.Error("Server.patientHandler: failed to get patient", "error", err, "patientID", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch patient"))
			return
		}
		if patient == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Patient not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(patient))
	case http.MethodPut:
		s.savePatient(w, r, http.StatusOK)
	case http.MethodDelete:
		if err := s.st.DeletePatient(id); err != nil {
			slog.Error("Server.patientHandler: failed to delete patient", "error", err, "patientID", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete patient"))
			return
		}
		// Reconciliation drops the deleted patient's future check-ins.
		if err := s.recalculate(s.clock.Now()); err != nil {
			slog.Error("Server.patientHandler: recalculation after delete failed", "error", err)
		}
		slog.Info("Server.patientHandler: patient deleted", "patientID", id)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Patient deleted", nil))
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

func (s *Server) savePatient(w http.ResponseWriter, r *http.Request, okStatus int) {
	var p models.Patient
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		slog.Warn("Server.savePatient: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if p.ID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyPatientID.Error()))
		return
	}
	if p.Phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyPhone.Error()))
		return
	}
	if err := s.st.SavePatient(p); err != nil {
		slog.Error("Server.savePatient: failed to save patient", "error", err, "patientID", p.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save patient"))
		return
	}
	// A patient mutation can change tags, fitting date, or sequence selection,
	// all of which feed the schedule.
	if err := s.recalculate(s.clock.Now()); err != nil {
		slog.Error("Server.savePatient: recalculation failed", "error", err)
	}
	slog.Info("Server.savePatient: patient saved", "patientID", p.ID)
	writeJSONResponse(w, okStatus, models.Success(p))
}

// sequencesHandler handles GET /sequences and POST /sequences.
func (s *Server) sequencesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.sequencesHandler: processing request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		sequences, err := s.st.ListSequences()
		if err != nil {
			slog.Error("Server.sequencesHandler: failed to list sequences", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch sequences"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(sequences))
	case http.MethodPost:
		var seq models.ProactiveSequence
		if err := json.NewDecoder(r.Body).Decode(&seq); err != nil {
			slog.Warn("Server.sequencesHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := seq.Validate(); err != nil {
			slog.Warn("Server.sequencesHandler: validation failed", "error", err, "sequenceID", seq.ID)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		if err := s.st.SaveSequence(seq); err != nil {
			slog.Error("Server.sequencesHandler: failed to save sequence", "error", err, "sequenceID", seq.ID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save sequence"))
			return
		}
		if err := s.recalculate(s.clock.Now()); err != nil {
			slog.Error("Server.sequencesHandler: recalculation failed", "error", err)
		}
		slog.Info("Server.sequencesHandler: sequence saved", "sequenceID", seq.ID)
		writeJSONResponse(w, http.StatusCreated, models.Success(seq))
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// sequenceHandler handles DELETE /sequences/{id}.
func (s *Server) sequenceHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/sequences/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown sequence endpoint"))
		return
	}
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", http.MethodDelete)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if err := s.st.DeleteSequence(id); err != nil {
		slog.Error("Server.sequenceHandler: failed to delete sequence", "error", err, "sequenceID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete sequence"))
		return
	}
	if err := s.recalculate(s.clock.Now()); err != nil {
		slog.Error("Server.sequenceHandler: recalculation after delete failed", "error", err)
	}
	slog.Info("Server.sequenceHandler: sequence deleted", "sequenceID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Sequence deleted", nil))
}

// checkInsHandler handles GET /checkins.
func (s *Server) checkInsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.checkInsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	checkIns, err := s.st.ListCheckIns()
	if err != nil {
		slog.Error("Server.checkInsHandler: failed to list check-ins", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch check-ins"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(checkIns))
}

// recalculateHandler handles POST /checkins/recalculate.
func (s *Server) recalculateHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.recalculateHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if err := s.recalculate(s.clock.Now()); err != nil {
		slog.Error("Server.recalculateHandler: recalculation failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to recalculate schedule"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Schedule recalculated", nil))
}

// clearFutureHandler handles POST /checkins/clear-future. It drops every
// scheduled check-in whose time has not yet arrived and keeps the rest.
func (s *Server) clearFutureHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.clearFutureHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	existing, err := s.st.ListCheckIns()
	if err != nil {
		slog.Error("Server.clearFutureHandler: failed to list check-ins", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch check-ins"))
		return
	}
	kept := schedule.ClearFutureCheckIns(existing, s.clock.Now())
	if err := s.st.ReplaceCheckIns(kept); err != nil {
		slog.Error("Server.clearFutureHandler: failed to persist cleared schedule", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to clear schedule"))
		return
	}
	slog.Info("Server.clearFutureHandler: future check-ins cleared", "before", len(existing), "after", len(kept))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Future check-ins cleared", map[string]int{
		"removed": len(existing) - len(kept),
	}))
}

// eventsHandler handles GET /events. The optional limit query parameter caps
// the feed length.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.eventsHandler: processing request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	limit := DefaultEventFeedLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = n
	}
	events, err := s.st.ListActivityEvents(limit)
	if err != nil {
		slog.Error("Server.eventsHandler: failed to list events", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch events"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(events))
}

// configHandler handles GET /config and PUT /config.
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.configHandler: processing request", "method", r.Method)
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.st.GetAgentConfig()
		if err != nil {
			slog.Error("Server.configHandler: failed to load config", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch configuration"))
			return
		}
		if cfg == nil {
			defaults := models.DefaultAgentConfig()
			cfg = &defaults
		}
		writeJSONResponse(w, http.StatusOK, models.Success(cfg))
	case http.MethodPut:
		var cfg models.AgentConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			slog.Warn("Server.configHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := cfg.Validate(); err != nil {
			slog.Warn("Server.configHandler: validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		if err := s.st.SaveAgentConfig(cfg); err != nil {
			slog.Error("Server.configHandler: failed to save config", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save configuration"))
			return
		}
		slog.Info("Server.configHandler: configuration saved", "outboundConfigured", cfg.OutboundConfigured())
		writeJSONResponse(w, http.StatusOK, models.Success(cfg))
	default:
		w.Header().Set("Allow", "GET, PUT")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := s.st.ListPatients(); err != nil {
		slog.Warn("Health check: store unavailable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Store unavailable"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
