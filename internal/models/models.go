// Package models defines the core data structures for CarePipe.
//
// It includes types for patients, proactive outreach sequences, scheduled
// check-ins, and callback tasks, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Channel defines the delivery channel for an outreach step.
type Channel string

const (
	// ChannelCall delivers the step as an outbound phone call.
	ChannelCall Channel = "call"
	// ChannelSMS delivers the step as a text message.
	ChannelSMS Channel = "sms"
)

// IsValidChannel checks if the given channel is supported.
func IsValidChannel(c Channel) bool {
	switch c {
	case ChannelCall, ChannelSMS:
		return true
	default:
		return false
	}
}

// Patient tag constants used for audience matching. Tags are free-form
// strings; these are the values the clinic dashboard assigns.
const (
	TagNewFit   = "New Fit"
	TagExisting = "Existing"
	TagHighRisk = "High Risk"
)

// Validation constants for input validation
const (
	// MinSequenceStepDay is the earliest day offset a sequence step may use,
	// relative to the patient's fitting date.
	MinSequenceStepDay = 1
	// MaxCallReasonLength defines the maximum allowed length for a callback reason.
	MaxCallReasonLength = 500
	// MaxCallGoalLength defines the maximum allowed length for a callback goal.
	MaxCallGoalLength = 500
)

// Error variables for better error handling and testability
var (
	ErrEmptyPatientID   = errors.New("patient id cannot be empty")
	ErrEmptyPhone       = errors.New("patient phone cannot be empty")
	ErrEmptyCallReason  = errors.New("call reason is required")
	ErrEmptyCallGoal    = errors.New("call goal is required")
	ErrCallReasonTooLong = errors.New("call reason exceeds maximum length")
	ErrCallGoalTooLong  = errors.New("call goal exceeds maximum length")
	ErrInvalidOutcome   = errors.New("invalid attempt outcome")
	ErrInvalidPriority  = errors.New("invalid callback priority")
	ErrInvalidChannel   = errors.New("invalid channel")
	ErrTaskTerminal     = errors.New("callback task is in a terminal state")
	ErrInvalidStepDay   = errors.New("sequence step day must be at least 1")
)

// AdoptionSignals captures device usage indicators reported for a patient.
type AdoptionSignals struct {
	WoreToday           *bool `json:"wore_today"`
	EstimatedHoursWorn  *int  `json:"estimated_hours_worn"`
	ComfortIssues       bool  `json:"comfort_issues"`
	SoundClarityIssues  bool  `json:"sound_clarity_issues"`
	BluetoothAppIssues  bool  `json:"bluetooth_app_issues"`
}

// Patient represents a clinic patient. The scheduler only reads patients;
// they are mutated by clinic staff through the hosting application.
type Patient struct {
	ID                       string          `json:"id"`
	Name                     string          `json:"name"`
	Phone                    string          `json:"phone"`
	Email                    string          `json:"email,omitempty"`
	Tags                     []string        `json:"tags"`
	RiskScore                int             `json:"risk_score"`
	RiskReasons              []string        `json:"risk_reasons,omitempty"`
	LastContactAt            time.Time       `json:"last_contact_at"`
	AdoptionSignals          AdoptionSignals `json:"adoption_signals"`
	ProactiveCheckInsEnabled bool            `json:"proactive_check_ins_enabled"`
	// SelectedSequenceIDs, when non-empty, overrides tag-based sequence
	// matching for this patient.
	SelectedSequenceIDs []string   `json:"selected_sequence_ids,omitempty"`
	DeviceBrand         string     `json:"device_brand,omitempty"`
	DeviceModel         string     `json:"device_model,omitempty"`
	FittingDate         *time.Time `json:"fitting_date,omitempty"`
}

// HasTag reports whether the patient carries the given tag.
func (p *Patient) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SequenceStep is one outreach touchpoint in a proactive sequence, offset in
// days from the patient's fitting date.
type SequenceStep struct {
	Day       int      `json:"day"`
	Channel   Channel  `json:"channel"`
	Goal      string   `json:"goal"`
	Script    string   `json:"script"`
	Questions []string `json:"questions,omitempty"`
	Triggers  []string `json:"triggers,omitempty"`
}

// Validate checks that a sequence step is well-formed.
func (s *SequenceStep) Validate() error {
	if s.Day < MinSequenceStepDay {
		return ErrInvalidStepDay
	}
	if !IsValidChannel(s.Channel) {
		return ErrInvalidChannel
	}
	return nil
}

// ProactiveSequence is an ordered template of outreach steps applied to
// patients that match its audience tag (or that select it explicitly).
type ProactiveSequence struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AudienceTag string         `json:"audience_tag"`
	Steps       []SequenceStep `json:"steps"`
	Active      bool           `json:"active"`
}

// Validate checks that the sequence and all of its steps are well-formed.
func (s *ProactiveSequence) Validate() error {
	if s.ID == "" {
		return errors.New("sequence id cannot be empty")
	}
	for i := range s.Steps {
		if err := s.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// CheckInStatus represents the lifecycle state of a scheduled check-in.
type CheckInStatus string

const (
	// CheckInStatusScheduled indicates the check-in is waiting for its time.
	CheckInStatusScheduled CheckInStatus = "scheduled"
	// CheckInStatusInProgress indicates a call has been triggered and its
	// outcome has not yet been reported.
	CheckInStatusInProgress CheckInStatus = "in_progress"
	// CheckInStatusCompleted indicates the check-in finished.
	CheckInStatusCompleted CheckInStatus = "completed"
	// CheckInStatusCancelled indicates the check-in was cancelled.
	CheckInStatusCancelled CheckInStatus = "cancelled"
	// CheckInStatusSkipped indicates the check-in was skipped by staff.
	CheckInStatusSkipped CheckInStatus = "skipped"
)

// IsValidCheckInStatus checks if the given check-in status is supported.
func IsValidCheckInStatus(s CheckInStatus) bool {
	switch s {
	case CheckInStatusScheduled, CheckInStatusInProgress, CheckInStatusCompleted, CheckInStatusCancelled, CheckInStatusSkipped:
		return true
	default:
		return false
	}
}

// CheckInID builds the deterministic identifier for a check-in derived from a
// sequence step. Recomputing the schedule for the same inputs always produces
// the same id set, which is what makes reconciliation idempotent.
func CheckInID(patientID, sequenceID string, stepDay int) string {
	return fmt.Sprintf("checkin-%s-%s-%d", patientID, sequenceID, stepDay)
}

// ScheduledCheckIn is a single proactive outreach touchpoint materialized from
// a sequence step for a concrete patient.
type ScheduledCheckIn struct {
	ID           string        `json:"id"`
	PatientID    string        `json:"patient_id"`
	PatientName  string        `json:"patient_name"`
	Phone        string        `json:"phone"`
	SequenceID   string        `json:"sequence_id"`
	SequenceName string        `json:"sequence_name"`
	StepDay      int           `json:"step_day"`
	ScheduledFor time.Time     `json:"scheduled_for"`
	Channel      Channel       `json:"channel"`
	Goal         string        `json:"goal"`
	Script       string        `json:"script,omitempty"`
	Questions    []string      `json:"questions,omitempty"`
	Status       CheckInStatus `json:"status"`
	// TriggeredAt is stamped when the dispatcher hands the check-in to the
	// outbound caller; it feeds the due-selection debounce window.
	TriggeredAt     *time.Time `json:"triggered_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CompletedCallID string     `json:"completed_call_id,omitempty"`
	// ConversationID is the correlation id returned by the outbound call
	// provider, stored for later outcome reconciliation.
	ConversationID string `json:"conversation_id,omitempty"`
}

// ActivityEventType classifies entries in the clinic activity feed.
type ActivityEventType string

const (
	ActivityEventCall        ActivityEventType = "call"
	ActivityEventCheckIn     ActivityEventType = "checkin"
	ActivityEventEscalation  ActivityEventType = "escalation"
	ActivityEventCallback    ActivityEventType = "callback"
	ActivityEventAppointment ActivityEventType = "appointment"
	ActivityEventNewPatient  ActivityEventType = "new_patient"
)

// ActivityEvent is a single entry in the clinic activity feed.
type ActivityEvent struct {
	ID          string            `json:"id"`
	Type        ActivityEventType `json:"type"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
	PatientName string            `json:"patient_name,omitempty"`
	PatientID   string            `json:"patient_id,omitempty"`
}
