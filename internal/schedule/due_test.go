package schedule

import (
	"testing"
	"time"

	"github.com/AudienHealth/CarePipe/internal/models"
)

func TestDueCallbackTasksByDueAt(t *testing.T) {
	created := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	task := models.CallbackTask{
		ID:          "task-1",
		Priority:    models.CallbackPriorityHigh,
		CreatedAt:   created,
		DueAt:       created.Add(models.DueDelayForPriority(models.CallbackPriorityHigh)),
		MaxAttempts: 3,
	}

	at30min := created.Add(30 * time.Minute)
	if due := DueCallbackTasks([]models.CallbackTask{task}, at30min); len(due) != 0 {
		t.Errorf("high-priority task due at T+30min; want not due before T+1h")
	}

	at61min := created.Add(61 * time.Minute)
	if due := DueCallbackTasks([]models.CallbackTask{task}, at61min); len(due) != 1 {
		t.Errorf("high-priority task not due at T+1h01min")
	}
}

func TestDueCallbackTasksByNextAttempt(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	redial := now.Add(-time.Minute)
	task := models.CallbackTask{
		ID:            "task-1",
		DueAt:         now.Add(24 * time.Hour),
		NextAttemptAt: &redial,
		MaxAttempts:   3,
	}

	if due := DueCallbackTasks([]models.CallbackTask{task}, now); len(due) != 1 {
		t.Error("task with elapsed next attempt time should be due")
	}
}

func TestDueCallbackTasksSkipsNonPending(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	overdue := now.Add(-time.Hour)

	inProgress := models.CallbackTask{
		ID:          "task-started",
		DueAt:       overdue,
		MaxAttempts: 3,
		Attempts:    []models.CallbackAttempt{{AttemptNumber: 1, Timestamp: overdue, Outcome: models.AttemptOutcomeNoAnswer}},
	}
	completed := models.CallbackTask{
		ID:          "task-done",
		DueAt:       overdue,
		MaxAttempts: 3,
		Attempts:    []models.CallbackAttempt{{AttemptNumber: 1, Timestamp: overdue, Outcome: models.AttemptOutcomeAnswered}},
	}
	exhausted := models.CallbackTask{
		ID:          "task-exhausted",
		DueAt:       overdue,
		MaxAttempts: 1,
		Attempts:    []models.CallbackAttempt{{AttemptNumber: 1, Timestamp: overdue, Outcome: models.AttemptOutcomeBusy}},
	}

	due := DueCallbackTasks([]models.CallbackTask{inProgress, completed, exhausted}, now)
	if len(due) != 0 {
		t.Errorf("non-pending tasks selected as due: %d", len(due))
	}
}

func TestDueCheckInsDebounce(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	scheduled := now.Add(-time.Hour)

	recent := now.Add(-2 * time.Minute)
	stale := now.Add(-6 * time.Minute)

	recentlyTriggered := models.ScheduledCheckIn{
		ID: "ci-recent", Status: models.CheckInStatusScheduled, ScheduledFor: scheduled, TriggeredAt: &recent,
	}
	staleTriggered := models.ScheduledCheckIn{
		ID: "ci-stale", Status: models.CheckInStatusScheduled, ScheduledFor: scheduled, TriggeredAt: &stale,
	}

	due := DueCheckIns([]models.ScheduledCheckIn{recentlyTriggered, staleTriggered}, now)
	if len(due) != 1 {
		t.Fatalf("expected exactly one due check-in, got %d", len(due))
	}
	if due[0].ID != "ci-stale" {
		t.Errorf("debounce selected %q; a trigger 2 minutes old must suppress re-selection", due[0].ID)
	}
}

func TestDueCheckInsSelection(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		checkIn models.ScheduledCheckIn
		wantDue bool
	}{
		{
			name:    "scheduled and past due",
			checkIn: models.ScheduledCheckIn{Status: models.CheckInStatusScheduled, ScheduledFor: now.Add(-time.Minute)},
			wantDue: true,
		},
		{
			name:    "scheduled exactly now",
			checkIn: models.ScheduledCheckIn{Status: models.CheckInStatusScheduled, ScheduledFor: now},
			wantDue: true,
		},
		{
			name:    "scheduled in the future",
			checkIn: models.ScheduledCheckIn{Status: models.CheckInStatusScheduled, ScheduledFor: now.Add(time.Minute)},
			wantDue: false,
		},
		{
			name:    "in progress never selected",
			checkIn: models.ScheduledCheckIn{Status: models.CheckInStatusInProgress, ScheduledFor: now.Add(-time.Hour)},
			wantDue: false,
		},
		{
			name:    "completed never selected",
			checkIn: models.ScheduledCheckIn{Status: models.CheckInStatusCompleted, ScheduledFor: now.Add(-time.Hour)},
			wantDue: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			due := DueCheckIns([]models.ScheduledCheckIn{tt.checkIn}, now)
			if got := len(due) == 1; got != tt.wantDue {
				t.Errorf("due = %v; want %v", got, tt.wantDue)
			}
		})
	}
}
