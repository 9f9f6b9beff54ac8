// Package api provides HTTP handlers for callback task endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/AudienHealth/CarePipe/internal/callback"
	"github.com/AudienHealth/CarePipe/internal/models"
)

// callbackTaskView is the wire shape of a callback task. The derived status is
// computed at serialization time; it is never read from storage.
type callbackTaskView struct {
	models.CallbackTask
	Status models.CallbackTaskStatus `json:"status"`
}

func taskView(t models.CallbackTask) callbackTaskView {
	return callbackTaskView{CallbackTask: t, Status: t.Status()}
}

func taskViews(tasks []models.CallbackTask) []callbackTaskView {
	views := make([]callbackTaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView(t))
	}
	return views
}

// callbackSettings loads the clinic's callback settings, falling back to
// defaults when no configuration has been saved yet.
func (s *Server) callbackSettings() models.CallbackSettings {
	cfg, err := s.st.GetAgentConfig()
	if err != nil || cfg == nil {
		if err != nil {
			slog.Warn("Server.callbackSettings: failed to load config, using defaults", "error", err)
		}
		return models.DefaultAgentConfig().CallbackSettings
	}
	return cfg.CallbackSettings
}

// createTaskRequest is the payload for POST /tasks.
type createTaskRequest struct {
	PatientID  string                  `json:"patient_id"`
	CallReason string                  `json:"call_reason"`
	CallGoal   string                  `json:"call_goal"`
	Priority   models.CallbackPriority `json:"priority,omitempty"`
}

// tasksHandler handles GET /tasks and POST /tasks.
func (s *Server) tasksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.tasksHandler: processing request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		tasks, err := s.st.ListCallbackTasks()
		if err != nil {
			slog.Error("Server.tasksHandler: failed to list tasks", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch callback tasks"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(taskViews(tasks)))
	case http.MethodPost:
		s.createTask(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createTask: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	patient, err := s.st.GetPatient(req.PatientID)
	if err != nil {
		slog.Error("Server.createTask: failed to load patient", "error", err, "patientID", req.PatientID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load patient"))
		return
	}
	if patient == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Patient not found"))
		return
	}

	task, err := callback.NewTask(*patient, req.CallReason, req.CallGoal, req.Priority, s.clock.Now(), s.callbackSettings())
	if err != nil {
		slog.Warn("Server.createTask: validation failed", "error", err, "patientID", req.PatientID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.SaveCallbackTask(task); err != nil {
		slog.Error("Server.createTask: failed to save task", "error", err, "taskID", task.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save callback task"))
		return
	}
	slog.Info("Server.createTask: callback task created", "taskID", task.ID, "patientID", patient.ID, "priority", task.Priority)
	writeJSONResponse(w, http.StatusCreated, models.Success(taskView(task)))
}

// taskHandler routes /tasks/{id}, /tasks/{id}/attempts, and /tasks/{id}/reopen.
func (s *Server) taskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	path := strings.TrimPrefix(r.URL.Path, "/tasks/")
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown task endpoint"))
		return
	}
	taskID := segments[0]

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getTask(w, taskID)
		case http.MethodDelete:
			s.deleteTask(w, taskID)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 {
		switch segments[1] {
		case "attempts":
			if r.Method != http.MethodPost {
				w.Header().Set("Allow", http.MethodPost)
				writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
				return
			}
			s.logAttempt(w, r, taskID)
			return
		case "reopen":
			if r.Method != http.MethodPost {
				w.Header().Set("Allow", http.MethodPost)
				writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
				return
			}
			s.reopenTask(w, taskID)
			return
		}
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown task endpoint"))
}

func (s *Server) getTask(w http.ResponseWriter, taskID string) {
	task, err := s.st.GetCallbackTask(taskID)
	if err != nil {
		slog.Error("Server.getTask: failed to load task", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch callback task"))
		return
	}
	if task == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Callback task not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(taskView(*task)))
}

func (s *Server) deleteTask(w http.ResponseWriter, taskID string) {
	if err := s.st.DeleteCallbackTask(taskID); err != nil {
		slog.Error("Server.deleteTask: failed to delete task", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete callback task"))
		return
	}
	slog.Info("Server.deleteTask: callback task deleted", "taskID", taskID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Callback task deleted", nil))
}

// logAttemptRequest is the payload for POST /tasks/{id}/attempts.
type logAttemptRequest struct {
	Outcome     models.AttemptOutcome `json:"outcome"`
	Notes       string                `json:"notes,omitempty"`
	DurationSec int                   `json:"duration_sec,omitempty"`
}

func (s *Server) logAttempt(w http.ResponseWriter, r *http.Request, taskID string) {
	var req logAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.logAttempt: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	task, err := s.st.GetCallbackTask(taskID)
	if err != nil {
		slog.Error("Server.logAttempt: failed to load task", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch callback task"))
		return
	}
	if task == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Callback task not found"))
		return
	}

	if err := callback.LogAttempt(task, req.Outcome, req.Notes, req.DurationSec, s.clock.Now(), s.callbackSettings()); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, models.ErrTaskTerminal) {
			status = http.StatusConflict
		}
		slog.Warn("Server.logAttempt: rejected", "error", err, "taskID", taskID)
		writeJSONResponse(w, status, models.Error(err.Error()))
		return
	}

	newAttempt := task.Attempts[len(task.Attempts)-1]
	if err := s.st.AddCallbackAttempt(taskID, newAttempt); err != nil {
		slog.Error("Server.logAttempt: failed to persist attempt", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record attempt"))
		return
	}
	if err := s.st.SaveCallbackTask(*task); err != nil {
		slog.Error("Server.logAttempt: failed to persist redial schedule", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update callback task"))
		return
	}

	slog.Info("Server.logAttempt: attempt recorded", "taskID", taskID, "attempt", newAttempt.AttemptNumber, "outcome", newAttempt.Outcome, "status", task.Status())
	writeJSONResponse(w, http.StatusCreated, models.Success(taskView(*task)))
}

func (s *Server) reopenTask(w http.ResponseWriter, taskID string) {
	task, err := s.st.GetCallbackTask(taskID)
	if err != nil {
		slog.Error("Server.reopenTask: failed to load task", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch callback task"))
		return
	}
	if task == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Callback task not found"))
		return
	}

	if err := callback.Reopen(task); err != nil {
		slog.Warn("Server.reopenTask: rejected", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		return
	}

	if err := s.st.ReplaceCallbackAttempts(taskID, task.Attempts); err != nil {
		slog.Error("Server.reopenTask: failed to persist attempts", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update callback task"))
		return
	}
	if err := s.st.SaveCallbackTask(*task); err != nil {
		slog.Error("Server.reopenTask: failed to persist task", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update callback task"))
		return
	}

	slog.Info("Server.reopenTask: task reopened", "taskID", taskID, "status", task.Status())
	writeJSONResponse(w, http.StatusOK, models.Success(taskView(*task)))
}
