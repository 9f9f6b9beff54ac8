// Package models defines the core data structures for CarePipe.
//
// This file defines callback tasks and their attempt history. A task's status
// is never stored: it is always derived from the attempt list and the attempt
// ceiling, so it can never desynchronize from the recorded history.
package models

import "time"

// AttemptOutcome is the closed set of results for one callback attempt.
type AttemptOutcome string

const (
	// AttemptOutcomeAnswered indicates the patient was reached.
	AttemptOutcomeAnswered AttemptOutcome = "answered"
	// AttemptOutcomeVoicemail indicates a voicemail was left.
	AttemptOutcomeVoicemail AttemptOutcome = "voicemail"
	// AttemptOutcomeNoAnswer indicates the call rang out.
	AttemptOutcomeNoAnswer AttemptOutcome = "no_answer"
	// AttemptOutcomeBusy indicates the line was busy.
	AttemptOutcomeBusy AttemptOutcome = "busy"
	// AttemptOutcomeWrongNumber indicates the number does not belong to the
	// patient. Terminal: no redial is scheduled regardless of budget.
	AttemptOutcomeWrongNumber AttemptOutcome = "wrong_number"
)

// IsValidAttemptOutcome checks if the given outcome is one of the five
// supported values. Unrecognized outcomes must be rejected at the boundary,
// never coerced.
func IsValidAttemptOutcome(o AttemptOutcome) bool {
	switch o {
	case AttemptOutcomeAnswered, AttemptOutcomeVoicemail, AttemptOutcomeNoAnswer, AttemptOutcomeBusy, AttemptOutcomeWrongNumber:
		return true
	default:
		return false
	}
}

// CallbackPriority controls how soon a callback task comes due.
type CallbackPriority string

const (
	CallbackPriorityHigh   CallbackPriority = "high"
	CallbackPriorityMedium CallbackPriority = "medium"
	CallbackPriorityLow    CallbackPriority = "low"
)

// IsValidCallbackPriority checks if the given priority is supported.
func IsValidCallbackPriority(p CallbackPriority) bool {
	switch p {
	case CallbackPriorityHigh, CallbackPriorityMedium, CallbackPriorityLow:
		return true
	default:
		return false
	}
}

// DueDelayForPriority returns how long after creation a callback task of the
// given priority comes due: 1h for high, 24h for medium, 48h for low.
func DueDelayForPriority(p CallbackPriority) time.Duration {
	switch p {
	case CallbackPriorityHigh:
		return time.Hour
	case CallbackPriorityLow:
		return 48 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// CallbackTaskStatus is the derived lifecycle state of a callback task.
type CallbackTaskStatus string

const (
	// CallbackStatusPending indicates no attempt has been made yet.
	CallbackStatusPending CallbackTaskStatus = "pending"
	// CallbackStatusInProgress indicates attempts were made but the patient
	// has not been reached and budget remains.
	CallbackStatusInProgress CallbackTaskStatus = "in_progress"
	// CallbackStatusCompleted indicates the patient answered.
	CallbackStatusCompleted CallbackTaskStatus = "completed"
	// CallbackStatusCancelled indicates the task was terminated early
	// (wrong number).
	CallbackStatusCancelled CallbackTaskStatus = "cancelled"
	// CallbackStatusMaxAttemptsReached indicates the attempt budget was
	// exhausted without reaching the patient.
	CallbackStatusMaxAttemptsReached CallbackTaskStatus = "max_attempts_reached"
)

// CallbackAttempt is one recorded outcome of trying to reach a patient.
// Attempts are append-only; they are never edited or removed, except by the
// explicit Reopen admin operation which truncates the answered attempt.
type CallbackAttempt struct {
	AttemptNumber int            `json:"attempt_number"`
	Timestamp     time.Time      `json:"timestamp"`
	Outcome       AttemptOutcome `json:"outcome"`
	Notes         string         `json:"notes,omitempty"`
	DurationSec   int            `json:"duration_sec,omitempty"`
}

// CallbackTask is a bounded-retry outbound-call obligation, distinct from
// automatic sequence check-ins. Its status is not a field; call Status().
type CallbackTask struct {
	ID          string            `json:"id"`
	PatientID   string            `json:"patient_id"`
	PatientName string            `json:"patient_name"`
	Phone       string            `json:"phone"`
	CallReason  string            `json:"call_reason"`
	CallGoal    string            `json:"call_goal"`
	Priority    CallbackPriority  `json:"priority"`
	CreatedAt   time.Time         `json:"created_at"`
	DueAt       time.Time         `json:"due_at"`
	CallID      string            `json:"call_id,omitempty"`
	Attempts    []CallbackAttempt `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
	// NextAttemptAt is set after a non-terminal attempt while budget remains.
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	// ConversationID correlates the most recent triggered call with the
	// provider webhook that reports its result.
	ConversationID string `json:"conversation_id,omitempty"`
}

// Status derives the task lifecycle state purely from the attempt history and
// the attempt ceiling. It is evaluated on every read and never cached.
func (t *CallbackTask) Status() CallbackTaskStatus {
	hasAnswered := false
	hasWrongNumber := false
	for _, a := range t.Attempts {
		switch a.Outcome {
		case AttemptOutcomeAnswered:
			hasAnswered = true
		case AttemptOutcomeWrongNumber:
			hasWrongNumber = true
		}
	}
	if hasAnswered {
		return CallbackStatusCompleted
	}
	if hasWrongNumber {
		return CallbackStatusCancelled
	}
	if len(t.Attempts) > 0 && len(t.Attempts) >= t.MaxAttempts {
		return CallbackStatusMaxAttemptsReached
	}
	if len(t.Attempts) > 0 {
		return CallbackStatusInProgress
	}
	return CallbackStatusPending
}

// IsTerminal reports whether the task can accept further attempts.
func (t *CallbackTask) IsTerminal() bool {
	switch t.Status() {
	case CallbackStatusCompleted, CallbackStatusCancelled, CallbackStatusMaxAttemptsReached:
		return true
	default:
		return false
	}
}

// HasAnsweredAttempt reports whether any attempt reached the patient.
func (t *CallbackTask) HasAnsweredAttempt() bool {
	for _, a := range t.Attempts {
		if a.Outcome == AttemptOutcomeAnswered {
			return true
		}
	}
	return false
}
