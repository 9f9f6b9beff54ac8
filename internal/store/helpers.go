package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AudienHealth/CarePipe/internal/models"
)

// marshalJSON serializes a value for storage in a TEXT column. Empty slices
// marshal as "[]" rather than null so round-trips stay symmetric.
func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalJSON deserializes a TEXT column into dst, treating empty strings
// as the zero value.
func unmarshalJSON(data string, dst any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullTime converts an optional time into its SQL representation.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// timePtr converts a SQL nullable time back into an optional time.
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// scanner abstracts *sql.Row and *sql.Rows so scan helpers can serve both.
type scanner interface {
	Scan(dest ...any) error
}

// execer abstracts *sql.DB and *sql.Tx for write helpers.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Check-in upsert statements per backend. Column order must match the
// argument order in upsertCheckIn.
const (
	checkInUpsertSQLite = `INSERT INTO scheduled_checkins (id, patient_id, patient_name, phone, sequence_id, sequence_name, step_day, scheduled_for, channel, goal, script, questions, status, triggered_at, completed_at, completed_call_id, conversation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET patient_name = excluded.patient_name, phone = excluded.phone, sequence_name = excluded.sequence_name, scheduled_for = excluded.scheduled_for, channel = excluded.channel, goal = excluded.goal, script = excluded.script, questions = excluded.questions, status = excluded.status, triggered_at = excluded.triggered_at, completed_at = excluded.completed_at, completed_call_id = excluded.completed_call_id, conversation_id = excluded.conversation_id`
	checkInUpsertPostgres = `INSERT INTO scheduled_checkins (id, patient_id, patient_name, phone, sequence_id, sequence_name, step_day, scheduled_for, channel, goal, script, questions, status, triggered_at, completed_at, completed_call_id, conversation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT(id) DO UPDATE SET patient_name = EXCLUDED.patient_name, phone = EXCLUDED.phone, sequence_name = EXCLUDED.sequence_name, scheduled_for = EXCLUDED.scheduled_for, channel = EXCLUDED.channel, goal = EXCLUDED.goal, script = EXCLUDED.script, questions = EXCLUDED.questions, status = EXCLUDED.status, triggered_at = EXCLUDED.triggered_at, completed_at = EXCLUDED.completed_at, completed_call_id = EXCLUDED.completed_call_id, conversation_id = EXCLUDED.conversation_id`
)

// upsertCheckIn writes one scheduled check-in using the given backend upsert
// statement.
func upsertCheckIn(e execer, ci models.ScheduledCheckIn, query string) error {
	questionsJSON, err := marshalJSON(ci.Questions)
	if err != nil {
		return err
	}
	_, err = e.Exec(query,
		ci.ID, ci.PatientID, ci.PatientName, ci.Phone, ci.SequenceID, ci.SequenceName,
		ci.StepDay, ci.ScheduledFor, ci.Channel, ci.Goal, nilIfEmpty(ci.Script),
		questionsJSON, ci.Status, nullTime(ci.TriggeredAt), nullTime(ci.CompletedAt),
		nilIfEmpty(ci.CompletedCallID), nilIfEmpty(ci.ConversationID))
	if err != nil {
		return fmt.Errorf("failed to upsert check-in %s: %w", ci.ID, err)
	}
	return nil
}

// scanPatient scans a patient row in column order
// (id, name, phone, email, tags, risk_score, risk_reasons, last_contact_at,
// adoption_signals, proactive_check_ins_enabled, selected_sequence_ids,
// device_brand, device_model, fitting_date).
func scanPatient(row scanner) (models.Patient, error) {
	var p models.Patient
	var email, tagsJSON, reasonsJSON, signalsJSON, selectedJSON, brand, model sql.NullString
	var fittingDate sql.NullTime
	err := row.Scan(
		&p.ID, &p.Name, &p.Phone, &email, &tagsJSON, &p.RiskScore, &reasonsJSON,
		&p.LastContactAt, &signalsJSON, &p.ProactiveCheckInsEnabled, &selectedJSON,
		&brand, &model, &fittingDate,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan patient row: %w", err)
	}
	p.Email = email.String
	p.DeviceBrand = brand.String
	p.DeviceModel = model.String
	p.FittingDate = timePtr(fittingDate)
	if err := unmarshalJSON(tagsJSON.String, &p.Tags); err != nil {
		return p, err
	}
	if err := unmarshalJSON(reasonsJSON.String, &p.RiskReasons); err != nil {
		return p, err
	}
	if err := unmarshalJSON(signalsJSON.String, &p.AdoptionSignals); err != nil {
		return p, err
	}
	if err := unmarshalJSON(selectedJSON.String, &p.SelectedSequenceIDs); err != nil {
		return p, err
	}
	return p, nil
}

// scanSequence scans a sequence row in column order
// (id, name, audience_tag, steps, active).
func scanSequence(row scanner) (models.ProactiveSequence, error) {
	var seq models.ProactiveSequence
	var stepsJSON sql.NullString
	if err := row.Scan(&seq.ID, &seq.Name, &seq.AudienceTag, &stepsJSON, &seq.Active); err != nil {
		return seq, fmt.Errorf("failed to scan sequence row: %w", err)
	}
	if err := unmarshalJSON(stepsJSON.String, &seq.Steps); err != nil {
		return seq, err
	}
	return seq, nil
}

// scanCheckIn scans a scheduled check-in row in column order
// (id, patient_id, patient_name, phone, sequence_id, sequence_name, step_day,
// scheduled_for, channel, goal, script, questions, status, triggered_at,
// completed_at, completed_call_id, conversation_id).
func scanCheckIn(row scanner) (models.ScheduledCheckIn, error) {
	var ci models.ScheduledCheckIn
	var script, questionsJSON, completedCallID, conversationID sql.NullString
	var triggeredAt, completedAt sql.NullTime
	err := row.Scan(
		&ci.ID, &ci.PatientID, &ci.PatientName, &ci.Phone, &ci.SequenceID,
		&ci.SequenceName, &ci.StepDay, &ci.ScheduledFor, &ci.Channel, &ci.Goal,
		&script, &questionsJSON, &ci.Status, &triggeredAt, &completedAt,
		&completedCallID, &conversationID,
	)
	if err != nil {
		return ci, fmt.Errorf("failed to scan check-in row: %w", err)
	}
	ci.Script = script.String
	ci.CompletedCallID = completedCallID.String
	ci.ConversationID = conversationID.String
	ci.TriggeredAt = timePtr(triggeredAt)
	ci.CompletedAt = timePtr(completedAt)
	if err := unmarshalJSON(questionsJSON.String, &ci.Questions); err != nil {
		return ci, err
	}
	return ci, nil
}

// scanCallbackTask scans a callback task row in column order
// (id, patient_id, patient_name, phone, call_reason, call_goal, priority,
// created_at, due_at, call_id, max_attempts, next_attempt_at,
// conversation_id). Attempts are loaded separately.
func scanCallbackTask(row scanner) (models.CallbackTask, error) {
	var t models.CallbackTask
	var callID, conversationID sql.NullString
	var nextAttemptAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.PatientID, &t.PatientName, &t.Phone, &t.CallReason, &t.CallGoal,
		&t.Priority, &t.CreatedAt, &t.DueAt, &callID, &t.MaxAttempts,
		&nextAttemptAt, &conversationID,
	)
	if err != nil {
		return t, fmt.Errorf("failed to scan callback task row: %w", err)
	}
	t.CallID = callID.String
	t.ConversationID = conversationID.String
	t.NextAttemptAt = timePtr(nextAttemptAt)
	return t, nil
}

// scanAttempt scans a callback attempt row in column order
// (attempt_number, timestamp, outcome, notes, duration_sec).
func scanAttempt(row scanner) (models.CallbackAttempt, error) {
	var a models.CallbackAttempt
	var notes sql.NullString
	if err := row.Scan(&a.AttemptNumber, &a.Timestamp, &a.Outcome, &notes, &a.DurationSec); err != nil {
		return a, fmt.Errorf("failed to scan callback attempt row: %w", err)
	}
	a.Notes = notes.String
	return a, nil
}

// scanActivityEvent scans an activity event row in column order
// (id, type, description, timestamp, patient_name, patient_id).
func scanActivityEvent(row scanner) (models.ActivityEvent, error) {
	var e models.ActivityEvent
	var patientName, patientID sql.NullString
	if err := row.Scan(&e.ID, &e.Type, &e.Description, &e.Timestamp, &patientName, &patientID); err != nil {
		return e, fmt.Errorf("failed to scan activity event row: %w", err)
	}
	e.PatientName = patientName.String
	e.PatientID = patientID.String
	return e, nil
}
