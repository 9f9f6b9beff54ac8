package callback

import (
	"errors"
	"testing"
	"time"

	"github.com/AudienHealth/CarePipe/internal/models"
)

func testSettings() models.CallbackSettings {
	return models.CallbackSettings{
		MaxAttempts:           3,
		RedialIntervalMinutes: 30,
		DefaultPriority:       models.CallbackPriorityMedium,
	}
}

func testPatient() models.Patient {
	return models.Patient{ID: "pat-1", Name: "Margaret Holt", Phone: "+15551230001"}
}

func TestNewTaskDueAtArithmetic(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		priority models.CallbackPriority
		want     time.Time
	}{
		{models.CallbackPriorityHigh, now.Add(time.Hour)},
		{models.CallbackPriorityMedium, now.Add(24 * time.Hour)},
		{models.CallbackPriorityLow, now.Add(48 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			task, err := NewTask(testPatient(), "device feedback", "check battery issue", tt.priority, now, testSettings())
			if err != nil {
				t.Fatalf("NewTask failed: %v", err)
			}
			if !task.DueAt.Equal(tt.want) {
				t.Errorf("DueAt = %v; want %v", task.DueAt, tt.want)
			}
			if task.Status() != models.CallbackStatusPending {
				t.Errorf("new task status = %v; want pending", task.Status())
			}
		})
	}
}

func TestNewTaskValidation(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	settings := testSettings()

	tests := []struct {
		name    string
		mutate  func(*models.Patient, *string, *string)
		wantErr error
	}{
		{"missing patient id", func(p *models.Patient, _, _ *string) { p.ID = "" }, models.ErrEmptyPatientID},
		{"missing phone", func(p *models.Patient, _, _ *string) { p.Phone = "" }, models.ErrEmptyPhone},
		{"missing reason", func(_ *models.Patient, r, _ *string) { *r = "" }, models.ErrEmptyCallReason},
		{"missing goal", func(_ *models.Patient, _, g *string) { *g = "" }, models.ErrEmptyCallGoal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patient := testPatient()
			reason, goal := "reason", "goal"
			tt.mutate(&patient, &reason, &goal)
			if _, err := NewTask(patient, reason, goal, models.CallbackPriorityHigh, now, settings); !errors.Is(err, tt.wantErr) {
				t.Errorf("NewTask error = %v; want %v", err, tt.wantErr)
			}
		})
	}

	// Empty priority falls back to the configured default.
	task, err := NewTask(testPatient(), "reason", "goal", "", now, settings)
	if err != nil {
		t.Fatalf("NewTask with default priority failed: %v", err)
	}
	if task.Priority != models.CallbackPriorityMedium {
		t.Errorf("priority = %v; want configured default", task.Priority)
	}
}

func TestLogAttemptRedialThenExhaustion(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	settings := testSettings()
	settings.MaxAttempts = 2

	task, err := NewTask(testPatient(), "reason", "goal", models.CallbackPriorityHigh, now, settings)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	if err := LogAttempt(&task, models.AttemptOutcomeNoAnswer, "", 0, now, settings); err != nil {
		t.Fatalf("attempt 1 failed: %v", err)
	}
	if task.Status() != models.CallbackStatusInProgress {
		t.Errorf("after attempt 1 status = %v; want in_progress", task.Status())
	}
	if task.NextAttemptAt == nil {
		t.Fatal("after attempt 1 NextAttemptAt should be set")
	}
	wantNext := now.Add(30 * time.Minute)
	if !task.NextAttemptAt.Equal(wantNext) {
		t.Errorf("NextAttemptAt = %v; want %v", task.NextAttemptAt, wantNext)
	}

	later := now.Add(time.Hour)
	if err := LogAttempt(&task, models.AttemptOutcomeNoAnswer, "", 0, later, settings); err != nil {
		t.Fatalf("attempt 2 failed: %v", err)
	}
	if task.Status() != models.CallbackStatusMaxAttemptsReached {
		t.Errorf("after attempt 2 status = %v; want max_attempts_reached", task.Status())
	}
	if task.NextAttemptAt != nil {
		t.Error("exhausted task must not have NextAttemptAt set")
	}
}

func TestLogAttemptAnsweredIsTerminal(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	settings := testSettings()
	task, _ := NewTask(testPatient(), "reason", "goal", models.CallbackPriorityHigh, now, settings)

	if err := LogAttempt(&task, models.AttemptOutcomeAnswered, "spoke with patient", 300, now, settings); err != nil {
		t.Fatalf("LogAttempt failed: %v", err)
	}
	if task.Status() != models.CallbackStatusCompleted {
		t.Errorf("status = %v; want completed", task.Status())
	}
	if task.NextAttemptAt != nil {
		t.Error("completed task must not schedule a redial")
	}

	if err := LogAttempt(&task, models.AttemptOutcomeBusy, "", 0, now, settings); !errors.Is(err, models.ErrTaskTerminal) {
		t.Errorf("logging against terminal task: error = %v; want ErrTaskTerminal", err)
	}
	if len(task.Attempts) != 1 {
		t.Errorf("terminal task state changed: %d attempts", len(task.Attempts))
	}
}

func TestLogAttemptWrongNumberOverridesBudget(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	settings := testSettings()
	settings.MaxAttempts = 5
	task, _ := NewTask(testPatient(), "reason", "goal", models.CallbackPriorityHigh, now, settings)

	if err := LogAttempt(&task, models.AttemptOutcomeWrongNumber, "", 0, now, settings); err != nil {
		t.Fatalf("LogAttempt failed: %v", err)
	}
	if task.Status() != models.CallbackStatusCancelled {
		t.Errorf("status = %v; want cancelled despite 1 < 5 attempts", task.Status())
	}
	if task.NextAttemptAt != nil {
		t.Error("wrong number must not schedule a redial")
	}
}

func TestLogAttemptRejectsUnknownOutcome(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	settings := testSettings()
	task, _ := NewTask(testPatient(), "reason", "goal", models.CallbackPriorityHigh, now, settings)

	if err := LogAttempt(&task, models.AttemptOutcome("hung_up"), "", 0, now, settings); !errors.Is(err, models.ErrInvalidOutcome) {
		t.Errorf("error = %v; want ErrInvalidOutcome", err)
	}
	if len(task.Attempts) != 0 {
		t.Error("rejected outcome must leave the task unchanged")
	}
}

func TestLogAttemptNumbersAreMonotonic(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	settings := testSettings()
	settings.MaxAttempts = 4
	task, _ := NewTask(testPatient(), "reason", "goal", models.CallbackPriorityHigh, now, settings)

	outcomes := []models.AttemptOutcome{models.AttemptOutcomeVoicemail, models.AttemptOutcomeBusy, models.AttemptOutcomeNoAnswer}
	for i, o := range outcomes {
		if err := LogAttempt(&task, o, "", 0, now.Add(time.Duration(i)*time.Hour), settings); err != nil {
			t.Fatalf("attempt %d failed: %v", i+1, err)
		}
	}
	for i, a := range task.Attempts {
		if a.AttemptNumber != i+1 {
			t.Errorf("attempt %d has number %d", i, a.AttemptNumber)
		}
	}
}

func TestReopen(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	settings := testSettings()
	task, _ := NewTask(testPatient(), "reason", "goal", models.CallbackPriorityHigh, now, settings)

	if err := Reopen(&task); err == nil {
		t.Error("reopening a pending task should fail")
	}

	_ = LogAttempt(&task, models.AttemptOutcomeVoicemail, "", 0, now, settings)
	_ = LogAttempt(&task, models.AttemptOutcomeAnswered, "", 120, now.Add(time.Hour), settings)
	if task.Status() != models.CallbackStatusCompleted {
		t.Fatalf("setup: status = %v", task.Status())
	}

	if err := Reopen(&task); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if task.Status() != models.CallbackStatusInProgress {
		t.Errorf("reopened status = %v; want in_progress with the voicemail attempt kept", task.Status())
	}
	if len(task.Attempts) != 1 || task.Attempts[0].Outcome != models.AttemptOutcomeVoicemail {
		t.Error("reopen must remove only the answered attempt")
	}
}

func TestTaskFromCallOutcome(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	settings := testSettings()
	settings.AutoCreateOnEscalation = true
	settings.AutoCreateOnVoicemail = true

	task, ok, err := TaskFromCallOutcome(testPatient(), "patient upset about billing", true, "", now, settings)
	if err != nil || !ok {
		t.Fatalf("escalation should auto-create a task (ok=%v err=%v)", ok, err)
	}
	if task.Priority != models.CallbackPriorityHigh {
		t.Errorf("escalation priority = %v; want high", task.Priority)
	}

	_, ok, err = TaskFromCallOutcome(testPatient(), "left voicemail", false, models.AttemptOutcomeVoicemail, now, settings)
	if err != nil || !ok {
		t.Fatalf("voicemail should auto-create with flag enabled (ok=%v err=%v)", ok, err)
	}

	_, ok, err = TaskFromCallOutcome(testPatient(), "no answer", false, models.AttemptOutcomeNoAnswer, now, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("no_answer must not auto-create when the flag is disabled")
	}
}
