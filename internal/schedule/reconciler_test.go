package schedule

import (
	"testing"
	"time"

	"github.com/AudienHealth/CarePipe/internal/models"
)

func TestReconcileNoPastMaterialization(t *testing.T) {
	fitting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC) // day-1 step is already past

	patients := []models.Patient{testPatient(fitting)}
	seqs := []models.ProactiveSequence{testSequence()}

	result := ReconcileCheckIns(patients, seqs, nil, now)
	if len(result) != 1 {
		t.Fatalf("expected only the future day-7 check-in, got %d items", len(result))
	}
	if result[0].StepDay != 7 {
		t.Errorf("materialized step day %d; the past day-1 step must not be created", result[0].StepDay)
	}
}

func TestReconcileKeepsPersistedPastDueItem(t *testing.T) {
	fitting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

	patients := []models.Patient{testPatient(fitting)}
	seqs := []models.ProactiveSequence{testSequence()}

	triggered := time.Date(2024, 1, 2, 9, 1, 0, 0, time.UTC)
	persisted := models.ScheduledCheckIn{
		ID:             models.CheckInID("pat-1", "seq-1", 1),
		PatientID:      "pat-1",
		SequenceID:     "seq-1",
		StepDay:        1,
		ScheduledFor:   time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		Status:         models.CheckInStatusInProgress,
		TriggeredAt:    &triggered,
		ConversationID: "conv-42",
	}

	result := ReconcileCheckIns(patients, seqs, []models.ScheduledCheckIn{persisted}, now)
	if len(result) != 2 {
		t.Fatalf("expected persisted day-1 item plus day-7 item, got %d", len(result))
	}

	var kept *models.ScheduledCheckIn
	for i := range result {
		if result[i].StepDay == 1 {
			kept = &result[i]
		}
	}
	if kept == nil {
		t.Fatal("persisted past-due item was dropped")
	}
	if kept.Status != models.CheckInStatusInProgress || kept.ConversationID != "conv-42" || kept.TriggeredAt == nil {
		t.Error("existing record was overwritten by a freshly computed stub")
	}
}

func TestReconcileIdempotence(t *testing.T) {
	fitting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	patients := []models.Patient{testPatient(fitting)}
	seqs := []models.ProactiveSequence{testSequence()}

	first := ReconcileCheckIns(patients, seqs, nil, now)
	second := ReconcileCheckIns(patients, seqs, first, now)

	if len(first) != len(second) {
		t.Fatalf("reconcile not idempotent: %d then %d items", len(first), len(second))
	}
	byID := make(map[string]models.ScheduledCheckIn, len(first))
	for _, ci := range first {
		byID[ci.ID] = ci
	}
	for _, ci := range second {
		prev, ok := byID[ci.ID]
		if !ok {
			t.Fatalf("second reconcile introduced new item %s", ci.ID)
		}
		if !prev.ScheduledFor.Equal(ci.ScheduledFor) || prev.Status != ci.Status {
			t.Errorf("item %s changed between identical reconciles", ci.ID)
		}
	}
}

func TestReconcileDropsRemovedPatients(t *testing.T) {
	fitting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	orphan := models.ScheduledCheckIn{
		ID:           models.CheckInID("pat-gone", "seq-1", 1),
		PatientID:    "pat-gone",
		SequenceID:   "seq-1",
		StepDay:      1,
		ScheduledFor: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		Status:       models.CheckInStatusScheduled,
	}

	result := ReconcileCheckIns([]models.Patient{testPatient(fitting)}, []models.ProactiveSequence{testSequence()}, []models.ScheduledCheckIn{orphan}, now)
	for _, ci := range result {
		if ci.PatientID == "pat-gone" {
			t.Error("check-in for deleted patient survived reconciliation")
		}
	}
}

func TestReconcileDropsBeyondHorizon(t *testing.T) {
	fitting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	seq := testSequence()
	seq.Steps = append(seq.Steps, models.SequenceStep{Day: 120, Channel: models.ChannelCall, Goal: "Long term review"})

	result := ReconcileCheckIns([]models.Patient{testPatient(fitting)}, []models.ProactiveSequence{seq}, nil, now)
	for _, ci := range result {
		if ci.StepDay == 120 {
			t.Error("check-in beyond the 90-day horizon was materialized")
		}
	}
	if len(result) != 2 {
		t.Errorf("expected the two near-term check-ins, got %d", len(result))
	}
}

func TestClearFutureCheckIns(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	past := time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC)
	future := time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)

	items := []models.ScheduledCheckIn{
		{ID: "a", Status: models.CheckInStatusScheduled, ScheduledFor: future},
		{ID: "b", Status: models.CheckInStatusScheduled, ScheduledFor: past},
		{ID: "c", Status: models.CheckInStatusInProgress, ScheduledFor: future},
		{ID: "d", Status: models.CheckInStatusCompleted, ScheduledFor: past},
		{ID: "e", Status: models.CheckInStatusCancelled, ScheduledFor: future},
	}

	kept := ClearFutureCheckIns(items, now)
	ids := make(map[string]bool, len(kept))
	for _, ci := range kept {
		ids[ci.ID] = true
	}
	if ids["a"] {
		t.Error("future scheduled item should have been cleared")
	}
	for _, id := range []string{"b", "c", "d", "e"} {
		if !ids[id] {
			t.Errorf("item %s should have been kept", id)
		}
	}
}
