package schedule

import (
	"log/slog"
	"time"

	"github.com/AudienHealth/CarePipe/internal/models"
)

// ScheduleHorizonDays is the rolling horizon for materialized check-ins.
// Items scheduled further out are dropped and re-created by a later
// reconciliation, which keeps the persisted set bounded.
const ScheduleHorizonDays = 90

// ReconcileCheckIns merges the freshly expanded projection for all patients
// with the previously persisted check-in set and returns the set that should
// be persisted. It is a pure function; reconciling the same inputs twice
// yields the same result.
//
// Existing records win over freshly computed stubs: a live item keeps its
// status, triggeredAt, and conversation id. New items are materialized only
// when their scheduled time is still in the future, so a recomputation never
// causes a storm of immediately-due triggers for past steps.
func ReconcileCheckIns(patients []models.Patient, sequences []models.ProactiveSequence, existing []models.ScheduledCheckIn, now time.Time) []models.ScheduledCheckIn {
	existingByID := make(map[string]models.ScheduledCheckIn, len(existing))
	for _, ci := range existing {
		switch ci.Status {
		case models.CheckInStatusScheduled, models.CheckInStatusInProgress, models.CheckInStatusCompleted:
			existingByID[ci.ID] = ci
		}
	}

	patientIDs := make(map[string]bool, len(patients))
	var result []models.ScheduledCheckIn
	for _, patient := range patients {
		patientIDs[patient.ID] = true
		for _, computed := range ExpandCheckIns(patient, sequences, now) {
			if kept, ok := existingByID[computed.ID]; ok {
				result = append(result, kept)
				continue
			}
			if computed.ScheduledFor.After(now) {
				result = append(result, computed)
			}
		}
	}

	horizon := now.AddDate(0, 0, ScheduleHorizonDays)
	pruned := result[:0]
	for _, ci := range result {
		if !patientIDs[ci.PatientID] {
			continue
		}
		if ci.ScheduledFor.After(horizon) {
			continue
		}
		pruned = append(pruned, ci)
	}

	slog.Debug("ReconcileCheckIns succeeded", "patients", len(patients), "existing", len(existing), "result", len(pruned))
	return pruned
}

// ClearFutureCheckIns drops every scheduled item whose time has not yet
// arrived, while keeping completed, cancelled, in-progress, and past-due
// scheduled items. This is the staff-facing cancellation primitive: it stops
// all not-yet-fired automatic outreach without disturbing history or
// in-flight calls. It must be applied to the persisted set before the next
// reconciliation, or the merge-by-id step would resurrect the cleared items.
func ClearFutureCheckIns(existing []models.ScheduledCheckIn, now time.Time) []models.ScheduledCheckIn {
	var kept []models.ScheduledCheckIn
	for _, ci := range existing {
		if ci.Status == models.CheckInStatusScheduled && ci.ScheduledFor.After(now) {
			continue
		}
		kept = append(kept, ci)
	}
	slog.Debug("ClearFutureCheckIns succeeded", "before", len(existing), "after", len(kept))
	return kept
}
