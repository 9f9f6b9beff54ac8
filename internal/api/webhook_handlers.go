// Package api provides the provider webhook that reports call outcomes.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/AudienHealth/CarePipe/internal/callback"
	"github.com/AudienHealth/CarePipe/internal/models"
)

// callCompletedRequest is the payload for POST /webhooks/call-completed. The
// conversation id correlates the result with the check-in or callback task
// that triggered the call.
type callCompletedRequest struct {
	ConversationID string                `json:"conversation_id"`
	Outcome        models.AttemptOutcome `json:"outcome"`
	CallID         string                `json:"call_id,omitempty"`
	DurationSec    int                   `json:"duration_sec,omitempty"`
	Summary        string                `json:"summary,omitempty"`
	Escalated      bool                  `json:"escalated,omitempty"`
}

// callCompletedHandler ingests a provider call result and routes it to the
// matching check-in or callback task.
func (s *Server) callCompletedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.callCompletedHandler: processing webhook", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req callCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.callCompletedHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.ConversationID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: conversation_id"))
		return
	}
	if !models.IsValidAttemptOutcome(req.Outcome) {
		slog.Warn("Server.callCompletedHandler: rejected unknown outcome", "outcome", req.Outcome)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(fmt.Sprintf("%s: %q", models.ErrInvalidOutcome.Error(), req.Outcome)))
		return
	}

	checkIn, err := s.st.GetCheckInByConversationID(req.ConversationID)
	if err != nil {
		slog.Error("Server.callCompletedHandler: check-in lookup failed", "error", err, "conversationID", req.ConversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve conversation"))
		return
	}
	if checkIn != nil {
		s.completeCheckIn(w, req, *checkIn)
		return
	}

	task, err := s.st.GetCallbackTaskByConversationID(req.ConversationID)
	if err != nil {
		slog.Error("Server.callCompletedHandler: task lookup failed", "error", err, "conversationID", req.ConversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve conversation"))
		return
	}
	if task != nil {
		s.completeCallbackCall(w, req, task)
		return
	}

	slog.Warn("Server.callCompletedHandler: unknown conversation", "conversationID", req.ConversationID)
	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown conversation id"))
}

// completeCheckIn finishes a triggered check-in and, depending on the outcome
// and the auto-create settings, opens a callback task for the patient.
func (s *Server) completeCheckIn(w http.ResponseWriter, req callCompletedRequest, ci models.ScheduledCheckIn) {
	now := s.clock.Now()
	completed := now
	ci.Status = models.CheckInStatusCompleted
	ci.CompletedAt = &completed
	ci.CompletedCallID = req.CallID
	if err := s.st.UpdateCheckIn(ci); err != nil {
		slog.Error("Server.completeCheckIn: failed to persist check-in", "error", err, "checkInID", ci.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update check-in"))
		return
	}

	description := fmt.Sprintf("Check-in call finished (%s): %s day %d", req.Outcome, ci.SequenceName, ci.StepDay)
	if req.Summary != "" {
		description = fmt.Sprintf("%s. %s", description, req.Summary)
	}
	s.recordEvent(models.ActivityEvent{
		ID:          "evt-" + uuid.NewString(),
		Type:        models.ActivityEventCall,
		Description: description,
		Timestamp:   now,
		PatientName: ci.PatientName,
		PatientID:   ci.PatientID,
	})

	// An unreached or escalated patient may warrant a follow-up callback.
	patient, err := s.st.GetPatient(ci.PatientID)
	if err != nil {
		slog.Error("Server.completeCheckIn: failed to load patient for follow-up", "error", err, "patientID", ci.PatientID)
	}
	if patient != nil {
		reason := fmt.Sprintf("Follow-up after %s day %d check-in", ci.SequenceName, ci.StepDay)
		task, ok, err := callback.TaskFromCallOutcome(*patient, reason, req.Escalated, req.Outcome, now, s.callbackSettings())
		if err != nil {
			slog.Error("Server.completeCheckIn: failed to build follow-up task", "error", err, "patientID", patient.ID)
		} else if ok {
			if err := s.st.SaveCallbackTask(task); err != nil {
				slog.Error("Server.completeCheckIn: failed to save follow-up task", "error", err, "taskID", task.ID)
			} else {
				s.recordEvent(models.ActivityEvent{
					ID:          "evt-" + uuid.NewString(),
					Type:        models.ActivityEventEscalation,
					Description: fmt.Sprintf("Callback task opened: %s", task.CallReason),
					Timestamp:   now,
					PatientName: patient.Name,
					PatientID:   patient.ID,
				})
				slog.Info("Server.completeCheckIn: follow-up task created", "taskID", task.ID, "patientID", patient.ID)
			}
		}
	}

	slog.Info("Server.completeCheckIn: check-in completed", "checkInID", ci.ID, "outcome", req.Outcome)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Check-in completed", nil))
}

// completeCallbackCall records the outcome of a dispatched callback call as an
// attempt on its task.
func (s *Server) completeCallbackCall(w http.ResponseWriter, req callCompletedRequest, task *models.CallbackTask) {
	now := s.clock.Now()
	if err := callback.LogAttempt(task, req.Outcome, req.Summary, req.DurationSec, now, s.callbackSettings()); err != nil {
		slog.Warn("Server.completeCallbackCall: rejected", "error", err, "taskID", task.ID)
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		return
	}

	newAttempt := task.Attempts[len(task.Attempts)-1]
	if err := s.st.AddCallbackAttempt(task.ID, newAttempt); err != nil {
		slog.Error("Server.completeCallbackCall: failed to persist attempt", "error", err, "taskID", task.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record attempt"))
		return
	}
	task.CallID = req.CallID
	if err := s.st.SaveCallbackTask(*task); err != nil {
		slog.Error("Server.completeCallbackCall: failed to persist task", "error", err, "taskID", task.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update callback task"))
		return
	}

	s.recordEvent(models.ActivityEvent{
		ID:          "evt-" + uuid.NewString(),
		Type:        models.ActivityEventCall,
		Description: fmt.Sprintf("Callback call finished (%s): %s", req.Outcome, task.CallReason),
		Timestamp:   now,
		PatientName: task.PatientName,
		PatientID:   task.PatientID,
	})

	slog.Info("Server.completeCallbackCall: attempt recorded", "taskID", task.ID, "outcome", req.Outcome, "status", task.Status())
	writeJSONResponse(w, http.StatusOK, models.Success(taskView(*task)))
}

// recordEvent appends to the activity feed; feed failures never fail the
// request that produced them.
func (s *Server) recordEvent(e models.ActivityEvent) {
	if err := s.st.AddActivityEvent(e); err != nil {
		slog.Error("Server.recordEvent: failed to record activity event", "type", e.Type, "error", err)
	}
}
