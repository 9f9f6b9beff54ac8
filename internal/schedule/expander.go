package schedule

import (
	"log/slog"
	"time"

	"github.com/AudienHealth/CarePipe/internal/models"
)

// CheckInHour is the fixed local wall-clock hour at which every check-in is
// scheduled, regardless of step day. Deliberately a named constant rather
// than configuration; making it per-clinic is a product decision.
const CheckInHour = 9

// ExpandCheckIns computes the set of check-ins that should exist for one
// patient right now, given the sequence library.
//
// Explicit sequence selection on the patient overrides tag-based matching:
// staff can re-target a patient without retagging them. Past steps are
// emitted as well; pruning items that never existed is the reconciler's job,
// so the two concerns stay separable.
func ExpandCheckIns(patient models.Patient, sequences []models.ProactiveSequence, now time.Time) []models.ScheduledCheckIn {
	if !patient.ProactiveCheckInsEnabled || patient.FittingDate == nil {
		return nil
	}

	applicable := applicableSequences(patient, sequences)
	if len(applicable) == 0 {
		return nil
	}

	fitting := *patient.FittingDate
	var checkIns []models.ScheduledCheckIn
	for _, seq := range applicable {
		for _, step := range seq.Steps {
			scheduledFor := checkInTime(fitting, step.Day)
			checkIns = append(checkIns, models.ScheduledCheckIn{
				ID:           models.CheckInID(patient.ID, seq.ID, step.Day),
				PatientID:    patient.ID,
				PatientName:  patient.Name,
				Phone:        patient.Phone,
				SequenceID:   seq.ID,
				SequenceName: seq.Name,
				StepDay:      step.Day,
				ScheduledFor: scheduledFor,
				Channel:      step.Channel,
				Goal:         step.Goal,
				Script:       step.Script,
				Questions:    step.Questions,
				Status:       models.CheckInStatusScheduled,
			})
		}
	}

	slog.Debug("ExpandCheckIns succeeded", "patientID", patient.ID, "sequences", len(applicable), "checkIns", len(checkIns))
	return checkIns
}

// applicableSequences resolves which active sequences apply to the patient.
// Explicit selection wins; otherwise the sequence audience tag is matched
// against the patient's tags.
func applicableSequences(patient models.Patient, sequences []models.ProactiveSequence) []models.ProactiveSequence {
	var result []models.ProactiveSequence
	if len(patient.SelectedSequenceIDs) > 0 {
		selected := make(map[string]bool, len(patient.SelectedSequenceIDs))
		for _, id := range patient.SelectedSequenceIDs {
			selected[id] = true
		}
		for _, seq := range sequences {
			if seq.Active && selected[seq.ID] {
				result = append(result, seq)
			}
		}
		return result
	}
	for _, seq := range sequences {
		if seq.Active && patient.HasTag(seq.AudienceTag) {
			result = append(result, seq)
		}
	}
	return result
}

// checkInTime places a step's check-in at fittingDate + day days, normalized
// to the fixed local check-in hour.
func checkInTime(fitting time.Time, day int) time.Time {
	d := fitting.AddDate(0, 0, day)
	return time.Date(d.Year(), d.Month(), d.Day(), CheckInHour, 0, 0, 0, d.Location())
}
