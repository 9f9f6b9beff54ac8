package schedule

import (
	"testing"
	"time"

	"github.com/AudienHealth/CarePipe/internal/models"
)

func testPatient(fitting time.Time) models.Patient {
	return models.Patient{
		ID:                       "pat-1",
		Name:                     "Margaret Holt",
		Phone:                    "+15551230001",
		Tags:                     []string{models.TagNewFit},
		ProactiveCheckInsEnabled: true,
		FittingDate:              &fitting,
	}
}

func testSequence() models.ProactiveSequence {
	return models.ProactiveSequence{
		ID:          "seq-1",
		Name:        "New Fit Follow-up",
		AudienceTag: models.TagNewFit,
		Active:      true,
		Steps: []models.SequenceStep{
			{Day: 1, Channel: models.ChannelCall, Goal: "First day comfort check"},
			{Day: 7, Channel: models.ChannelCall, Goal: "One week adjustment"},
		},
	}
}

func TestExpandCheckInsScenario(t *testing.T) {
	fitting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	checkIns := ExpandCheckIns(testPatient(fitting), []models.ProactiveSequence{testSequence()}, now)
	if len(checkIns) != 2 {
		t.Fatalf("expected 2 check-ins, got %d", len(checkIns))
	}

	want1 := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	want7 := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	if !checkIns[0].ScheduledFor.Equal(want1) {
		t.Errorf("day 1 scheduled for %v; want %v", checkIns[0].ScheduledFor, want1)
	}
	if !checkIns[1].ScheduledFor.Equal(want7) {
		t.Errorf("day 7 scheduled for %v; want %v", checkIns[1].ScheduledFor, want7)
	}
	if checkIns[0].ID != models.CheckInID("pat-1", "seq-1", 1) {
		t.Errorf("unexpected deterministic id %q", checkIns[0].ID)
	}
	if checkIns[0].Status != models.CheckInStatusScheduled {
		t.Errorf("new check-in status = %v; want scheduled", checkIns[0].Status)
	}
}

func TestExpandCheckInsDisabledOrUnfitted(t *testing.T) {
	fitting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	seqs := []models.ProactiveSequence{testSequence()}

	disabled := testPatient(fitting)
	disabled.ProactiveCheckInsEnabled = false
	if got := ExpandCheckIns(disabled, seqs, now); len(got) != 0 {
		t.Errorf("expected no check-ins for disabled patient, got %d", len(got))
	}

	unfitted := testPatient(fitting)
	unfitted.FittingDate = nil
	if got := ExpandCheckIns(unfitted, seqs, now); len(got) != 0 {
		t.Errorf("expected no check-ins without fitting date, got %d", len(got))
	}
}

func TestExpandCheckInsExplicitSelectionOverridesTags(t *testing.T) {
	fitting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	tagMatched := testSequence()
	selected := models.ProactiveSequence{
		ID:          "seq-2",
		Name:        "High Touch",
		AudienceTag: models.TagHighRisk, // does not match the patient's tags
		Active:      true,
		Steps:       []models.SequenceStep{{Day: 3, Channel: models.ChannelCall, Goal: "Early intervention"}},
	}

	patient := testPatient(fitting)
	patient.SelectedSequenceIDs = []string{"seq-2"}

	checkIns := ExpandCheckIns(patient, []models.ProactiveSequence{tagMatched, selected}, now)
	if len(checkIns) != 1 {
		t.Fatalf("expected 1 check-in from explicit selection, got %d", len(checkIns))
	}
	if checkIns[0].SequenceID != "seq-2" {
		t.Errorf("expanded sequence %q; explicit selection must override tag matching", checkIns[0].SequenceID)
	}
}

func TestExpandCheckInsSkipsInactiveSequences(t *testing.T) {
	fitting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	inactive := testSequence()
	inactive.Active = false
	if got := ExpandCheckIns(testPatient(fitting), []models.ProactiveSequence{inactive}, now); len(got) != 0 {
		t.Errorf("expected no check-ins from inactive sequence, got %d", len(got))
	}
}

// The expander emits past steps; pruning them is the reconciler's concern.
func TestExpandCheckInsEmitsPastSteps(t *testing.T) {
	fitting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	checkIns := ExpandCheckIns(testPatient(fitting), []models.ProactiveSequence{testSequence()}, now)
	if len(checkIns) != 2 {
		t.Fatalf("expected 2 check-ins including past steps, got %d", len(checkIns))
	}
	for _, ci := range checkIns {
		if !ci.ScheduledFor.Before(now) {
			t.Errorf("expected past scheduled time, got %v", ci.ScheduledFor)
		}
	}
}
