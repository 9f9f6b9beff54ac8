// Package callback implements the bounded-retry state machine for callback
// tasks: creation with priority-based due times, append-only attempt
// recording, and the redial arithmetic between attempts.
package callback

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/AudienHealth/CarePipe/internal/models"
	"github.com/google/uuid"
)

// NewTask creates a callback task for a patient. The due time follows the
// priority: 1h for high, 24h for medium, 48h for low.
func NewTask(patient models.Patient, callReason, callGoal string, priority models.CallbackPriority, now time.Time, settings models.CallbackSettings) (models.CallbackTask, error) {
	if patient.ID == "" {
		return models.CallbackTask{}, models.ErrEmptyPatientID
	}
	if patient.Phone == "" {
		return models.CallbackTask{}, models.ErrEmptyPhone
	}
	if callReason == "" {
		return models.CallbackTask{}, models.ErrEmptyCallReason
	}
	if len(callReason) > models.MaxCallReasonLength {
		return models.CallbackTask{}, models.ErrCallReasonTooLong
	}
	if callGoal == "" {
		return models.CallbackTask{}, models.ErrEmptyCallGoal
	}
	if len(callGoal) > models.MaxCallGoalLength {
		return models.CallbackTask{}, models.ErrCallGoalTooLong
	}
	if priority == "" {
		priority = settings.DefaultPriority
	}
	if !models.IsValidCallbackPriority(priority) {
		return models.CallbackTask{}, models.ErrInvalidPriority
	}

	task := models.CallbackTask{
		ID:          "task-" + uuid.NewString(),
		PatientID:   patient.ID,
		PatientName: patient.Name,
		Phone:       patient.Phone,
		CallReason:  callReason,
		CallGoal:    callGoal,
		Priority:    priority,
		CreatedAt:   now,
		DueAt:       now.Add(models.DueDelayForPriority(priority)),
		MaxAttempts: settings.MaxAttempts,
	}
	slog.Debug("callback.NewTask created", "taskID", task.ID, "patientID", patient.ID, "priority", priority, "dueAt", task.DueAt)
	return task, nil
}

// LogAttempt appends one attempt outcome to the task and updates the redial
// schedule. Outcomes outside the closed taxonomy are rejected and leave the
// task unchanged, as are attempts against a task already in a terminal state.
//
// Redial rules: answered and wrong_number are terminal and clear the redial
// time. Any other outcome schedules the next attempt at now + the configured
// redial interval while budget remains; once the budget is exhausted the
// redial time stays unset and the derived status resolves to
// max_attempts_reached.
func LogAttempt(task *models.CallbackTask, outcome models.AttemptOutcome, notes string, durationSec int, now time.Time, settings models.CallbackSettings) error {
	if !models.IsValidAttemptOutcome(outcome) {
		return fmt.Errorf("%w: %q", models.ErrInvalidOutcome, outcome)
	}
	if task.IsTerminal() {
		return fmt.Errorf("%w: %s", models.ErrTaskTerminal, task.Status())
	}

	attempt := models.CallbackAttempt{
		AttemptNumber: len(task.Attempts) + 1,
		Timestamp:     now,
		Outcome:       outcome,
		Notes:         notes,
		DurationSec:   durationSec,
	}
	task.Attempts = append(task.Attempts, attempt)
	task.NextAttemptAt = nil

	maxAttempts := task.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = settings.MaxAttempts
	}

	switch outcome {
	case models.AttemptOutcomeAnswered, models.AttemptOutcomeWrongNumber:
		// Terminal; the derivation resolves to completed or cancelled.
	default:
		if len(task.Attempts) < maxAttempts {
			next := now.Add(time.Duration(settings.RedialIntervalMinutes) * time.Minute)
			task.NextAttemptAt = &next
		}
	}

	slog.Info("callback.LogAttempt recorded", "taskID", task.ID, "attempt", attempt.AttemptNumber, "outcome", outcome, "status", task.Status())
	return nil
}

// Reopen removes the answered attempt from a completed task so the status
// derivation returns it to the retry pool. This is a destructive admin
// operation: it is the only path that ever removes an attempt.
func Reopen(task *models.CallbackTask) error {
	if task.Status() != models.CallbackStatusCompleted {
		return fmt.Errorf("can only reopen a completed task, status is %s", task.Status())
	}
	kept := task.Attempts[:0]
	for _, a := range task.Attempts {
		if a.Outcome == models.AttemptOutcomeAnswered {
			continue
		}
		kept = append(kept, a)
	}
	task.Attempts = kept
	task.NextAttemptAt = nil
	slog.Warn("callback.Reopen truncated answered attempt", "taskID", task.ID, "remainingAttempts", len(task.Attempts))
	return nil
}

// TaskFromCallOutcome creates a callback task in reaction to an inbound call
// result, honoring the auto-create settings. It returns ok=false when the
// outcome does not warrant a task under the current settings.
func TaskFromCallOutcome(patient models.Patient, reason string, escalated bool, outcome models.AttemptOutcome, now time.Time, settings models.CallbackSettings) (models.CallbackTask, bool, error) {
	create := false
	priority := settings.DefaultPriority
	switch {
	case escalated && settings.AutoCreateOnEscalation:
		create = true
		priority = models.CallbackPriorityHigh
	case outcome == models.AttemptOutcomeVoicemail && settings.AutoCreateOnVoicemail:
		create = true
	case outcome == models.AttemptOutcomeNoAnswer && settings.AutoCreateOnNoAnswer:
		create = true
	}
	if !create {
		return models.CallbackTask{}, false, nil
	}

	goal := "Follow up with the patient and resolve their request"
	task, err := NewTask(patient, reason, goal, priority, now, settings)
	if err != nil {
		return models.CallbackTask{}, false, err
	}
	return task, true, nil
}
