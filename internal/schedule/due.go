package schedule

import (
	"time"

	"github.com/AudienHealth/CarePipe/internal/models"
)

// TriggerDebounce is the grace period after a check-in is triggered during
// which it is not re-selected as due. It absorbs the race where the provider
// webhook confirming a just-triggered call has not arrived by the next
// dispatcher tick. A named constant, not configuration, like CheckInHour.
const TriggerDebounce = 5 * time.Minute

// DueCallbackTasks returns the tasks eligible for dispatch: derived status
// pending, and either the due time or the scheduled redial time has arrived.
// Tasks with attempts in flight (in_progress) or in a terminal state are
// never selected, which prevents re-dispatch while a prior attempt's outcome
// has not yet been logged.
func DueCallbackTasks(tasks []models.CallbackTask, now time.Time) []models.CallbackTask {
	var due []models.CallbackTask
	for _, task := range tasks {
		if task.Status() != models.CallbackStatusPending {
			continue
		}
		if !task.DueAt.IsZero() && !task.DueAt.After(now) {
			due = append(due, task)
			continue
		}
		if task.NextAttemptAt != nil && !task.NextAttemptAt.After(now) {
			due = append(due, task)
		}
	}
	return due
}

// DueCheckIns returns the scheduled check-ins whose time has arrived and that
// are outside the trigger debounce window.
func DueCheckIns(checkIns []models.ScheduledCheckIn, now time.Time) []models.ScheduledCheckIn {
	var due []models.ScheduledCheckIn
	for _, ci := range checkIns {
		if ci.Status != models.CheckInStatusScheduled {
			continue
		}
		if ci.ScheduledFor.After(now) {
			continue
		}
		if ci.TriggeredAt != nil && now.Sub(*ci.TriggeredAt) < TriggerDebounce {
			continue
		}
		due = append(due, ci)
	}
	return due
}
