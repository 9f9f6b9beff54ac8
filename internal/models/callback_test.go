package models

import (
	"testing"
	"time"
)

func attempts(outcomes ...AttemptOutcome) []CallbackAttempt {
	result := make([]CallbackAttempt, 0, len(outcomes))
	for i, o := range outcomes {
		result = append(result, CallbackAttempt{
			AttemptNumber: i + 1,
			Timestamp:     time.Date(2024, 1, 1, 10, i, 0, 0, time.UTC),
			Outcome:       o,
		})
	}
	return result
}

func TestCallbackTaskStatusDerivation(t *testing.T) {
	tests := []struct {
		name        string
		attempts    []CallbackAttempt
		maxAttempts int
		want        CallbackTaskStatus
	}{
		{
			name:        "no attempts is pending",
			attempts:    nil,
			maxAttempts: 3,
			want:        CallbackStatusPending,
		},
		{
			name:        "one failed attempt with budget left is in progress",
			attempts:    attempts(AttemptOutcomeNoAnswer),
			maxAttempts: 3,
			want:        CallbackStatusInProgress,
		},
		{
			name:        "answered attempt completes the task",
			attempts:    attempts(AttemptOutcomeVoicemail, AttemptOutcomeAnswered),
			maxAttempts: 3,
			want:        CallbackStatusCompleted,
		},
		{
			name:        "answered wins even past the ceiling",
			attempts:    attempts(AttemptOutcomeNoAnswer, AttemptOutcomeBusy, AttemptOutcomeAnswered),
			maxAttempts: 3,
			want:        CallbackStatusCompleted,
		},
		{
			name:        "exhausted budget without answer",
			attempts:    attempts(AttemptOutcomeNoAnswer, AttemptOutcomeNoAnswer),
			maxAttempts: 2,
			want:        CallbackStatusMaxAttemptsReached,
		},
		{
			name:        "single wrong number cancels despite remaining budget",
			attempts:    attempts(AttemptOutcomeWrongNumber),
			maxAttempts: 5,
			want:        CallbackStatusCancelled,
		},
		{
			name:        "wrong number after earlier failures still cancels",
			attempts:    attempts(AttemptOutcomeVoicemail, AttemptOutcomeWrongNumber),
			maxAttempts: 5,
			want:        CallbackStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := CallbackTask{
				ID:          "task-1",
				Attempts:    tt.attempts,
				MaxAttempts: tt.maxAttempts,
			}
			if got := task.Status(); got != tt.want {
				t.Errorf("Status() = %v; want %v", got, tt.want)
			}
		})
	}
}

// Status must depend only on the attempt list and the ceiling; mutating any
// other task field must never change the derived value.
func TestCallbackTaskStatusPurity(t *testing.T) {
	task := CallbackTask{
		ID:          "task-1",
		Attempts:    attempts(AttemptOutcomeNoAnswer),
		MaxAttempts: 3,
	}
	before := task.Status()

	next := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	task.Priority = CallbackPriorityHigh
	task.DueAt = next
	task.NextAttemptAt = &next
	task.ConversationID = "conv-999"
	task.CallReason = "changed"
	task.PatientName = "Someone Else"

	if got := task.Status(); got != before {
		t.Errorf("Status() changed from %v to %v after mutating unrelated fields", before, got)
	}
}

func TestDueDelayForPriority(t *testing.T) {
	tests := []struct {
		priority CallbackPriority
		want     time.Duration
	}{
		{CallbackPriorityHigh, time.Hour},
		{CallbackPriorityMedium, 24 * time.Hour},
		{CallbackPriorityLow, 48 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			if got := DueDelayForPriority(tt.priority); got != tt.want {
				t.Errorf("DueDelayForPriority(%v) = %v; want %v", tt.priority, got, tt.want)
			}
		})
	}
}

func TestIsValidAttemptOutcome(t *testing.T) {
	tests := []struct {
		outcome  AttemptOutcome
		expected bool
	}{
		{AttemptOutcomeAnswered, true},
		{AttemptOutcomeVoicemail, true},
		{AttemptOutcomeNoAnswer, true},
		{AttemptOutcomeBusy, true},
		{AttemptOutcomeWrongNumber, true},
		{AttemptOutcome("hung_up"), false},
		{AttemptOutcome(""), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			if got := IsValidAttemptOutcome(tt.outcome); got != tt.expected {
				t.Errorf("IsValidAttemptOutcome(%v) = %v; want %v", tt.outcome, got, tt.expected)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := CallbackTask{Attempts: attempts(AttemptOutcomeAnswered), MaxAttempts: 3}
	if !terminal.IsTerminal() {
		t.Error("expected answered task to be terminal")
	}
	open := CallbackTask{Attempts: attempts(AttemptOutcomeBusy), MaxAttempts: 3}
	if open.IsTerminal() {
		t.Error("expected task with remaining budget to be non-terminal")
	}
}
