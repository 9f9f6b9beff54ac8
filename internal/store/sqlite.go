// Package store provides storage backends for CarePipe.
//
// This file implements an SQLite-backed store for single-clinic deployments.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/AudienHealth/CarePipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SavePatient(p models.Patient) error {
	tagsJSON, err := marshalJSON(p.Tags)
	if err != nil {
		return err
	}
	reasonsJSON, err := marshalJSON(p.RiskReasons)
	if err != nil {
		return err
	}
	signalsJSON, err := marshalJSON(p.AdoptionSignals)
	if err != nil {
		return err
	}
	selectedJSON, err := marshalJSON(p.SelectedSequenceIDs)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO patients (id, name, phone, email, tags, risk_score, risk_reasons, last_contact_at, adoption_signals, proactive_check_ins_enabled, selected_sequence_ids, device_brand, device_model, fitting_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, phone = excluded.phone, email = excluded.email, tags = excluded.tags, risk_score = excluded.risk_score, risk_reasons = excluded.risk_reasons, last_contact_at = excluded.last_contact_at, adoption_signals = excluded.adoption_signals, proactive_check_ins_enabled = excluded.proactive_check_ins_enabled, selected_sequence_ids = excluded.selected_sequence_ids, device_brand = excluded.device_brand, device_model = excluded.device_model, fitting_date = excluded.fitting_date`,
		p.ID, p.Name, p.Phone, nilIfEmpty(p.Email), tagsJSON, p.RiskScore, reasonsJSON,
		p.LastContactAt, signalsJSON, p.ProactiveCheckInsEnabled, selectedJSON,
		nilIfEmpty(p.DeviceBrand), nilIfEmpty(p.DeviceModel), nullTime(p.FittingDate))
	if err != nil {
		slog.Error("SQLiteStore SavePatient failed", "error", err, "patientID", p.ID)
		return fmt.Errorf("failed to save patient %s: %w", p.ID, err)
	}
	slog.Debug("SQLiteStore SavePatient succeeded", "patientID", p.ID)
	return nil
}

const patientColumns = `id, name, phone, email, tags, risk_score, risk_reasons, last_contact_at, adoption_signals, proactive_check_ins_enabled, selected_sequence_ids, device_brand, device_model, fitting_date`

func (s *SQLiteStore) GetPatient(id string) (*models.Patient, error) {
	row := s.db.QueryRow(`SELECT `+patientColumns+` FROM patients WHERE id = ?`, id)
	p, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPatient failed", "error", err, "patientID", id)
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) ListPatients() ([]models.Patient, error) {
	rows, err := s.db.Query(`SELECT ` + patientColumns + ` FROM patients ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListPatients query failed", "error", err)
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			slog.Error("SQLiteStore ListPatients scan failed", "error", err)
			return nil, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patient rows: %w", err)
	}
	slog.Debug("SQLiteStore ListPatients succeeded", "count", len(patients))
	return patients, nil
}

func (s *SQLiteStore) DeletePatient(id string) error {
	_, err := s.db.Exec(`DELETE FROM patients WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeletePatient failed", "error", err, "patientID", id)
		return fmt.Errorf("failed to delete patient %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) SaveSequence(seq models.ProactiveSequence) error {
	stepsJSON, err := marshalJSON(seq.Steps)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sequences (id, name, audience_tag, steps, active) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, audience_tag = excluded.audience_tag, steps = excluded.steps, active = excluded.active`,
		seq.ID, seq.Name, seq.AudienceTag, stepsJSON, seq.Active)
	if err != nil {
		slog.Error("SQLiteStore SaveSequence failed", "error", err, "sequenceID", seq.ID)
		return fmt.Errorf("failed to save sequence %s: %w", seq.ID, err)
	}
	slog.Debug("SQLiteStore SaveSequence succeeded", "sequenceID", seq.ID)
	return nil
}

func (s *SQLiteStore) ListSequences() ([]models.ProactiveSequence, error) {
	rows, err := s.db.Query(`SELECT id, name, audience_tag, steps, active FROM sequences ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListSequences query failed", "error", err)
		return nil, fmt.Errorf("failed to query sequences: %w", err)
	}
	defer rows.Close()

	var sequences []models.ProactiveSequence
	for rows.Next() {
		seq, err := scanSequence(rows)
		if err != nil {
			slog.Error("SQLiteStore ListSequences scan failed", "error", err)
			return nil, err
		}
		sequences = append(sequences, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sequence rows: %w", err)
	}
	return sequences, nil
}

func (s *SQLiteStore) DeleteSequence(id string) error {
	_, err := s.db.Exec(`DELETE FROM sequences WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteSequence failed", "error", err, "sequenceID", id)
		return fmt.Errorf("failed to delete sequence %s: %w", id, err)
	}
	return nil
}

const checkInColumns = `id, patient_id, patient_name, phone, sequence_id, sequence_name, step_day, scheduled_for, channel, goal, script, questions, status, triggered_at, completed_at, completed_call_id, conversation_id`

func (s *SQLiteStore) ReplaceCheckIns(checkIns []models.ScheduledCheckIn) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM scheduled_checkins`); err != nil {
		slog.Error("SQLiteStore ReplaceCheckIns clear failed", "error", err)
		return fmt.Errorf("failed to clear check-ins: %w", err)
	}
	for _, ci := range checkIns {
		if err := upsertCheckIn(tx, ci, checkInUpsertSQLite); err != nil {
			slog.Error("SQLiteStore ReplaceCheckIns insert failed", "error", err, "checkInID", ci.ID)
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit check-in replacement: %w", err)
	}
	slog.Debug("SQLiteStore ReplaceCheckIns succeeded", "count", len(checkIns))
	return nil
}

func (s *SQLiteStore) ListCheckIns() ([]models.ScheduledCheckIn, error) {
	rows, err := s.db.Query(`SELECT ` + checkInColumns + ` FROM scheduled_checkins ORDER BY scheduled_for, id`)
	if err != nil {
		slog.Error("SQLiteStore ListCheckIns query failed", "error", err)
		return nil, fmt.Errorf("failed to query check-ins: %w", err)
	}
	defer rows.Close()

	var checkIns []models.ScheduledCheckIn
	for rows.Next() {
		ci, err := scanCheckIn(rows)
		if err != nil {
			slog.Error("SQLiteStore ListCheckIns scan failed", "error", err)
			return nil, err
		}
		checkIns = append(checkIns, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate check-in rows: %w", err)
	}
	return checkIns, nil
}

func (s *SQLiteStore) UpdateCheckIn(ci models.ScheduledCheckIn) error {
	if err := upsertCheckIn(s.db, ci, checkInUpsertSQLite); err != nil {
		slog.Error("SQLiteStore UpdateCheckIn failed", "error", err, "checkInID", ci.ID)
		return err
	}
	slog.Debug("SQLiteStore UpdateCheckIn succeeded", "checkInID", ci.ID, "status", ci.Status)
	return nil
}

func (s *SQLiteStore) GetCheckInByConversationID(conversationID string) (*models.ScheduledCheckIn, error) {
	if conversationID == "" {
		return nil, nil
	}
	row := s.db.QueryRow(`SELECT `+checkInColumns+` FROM scheduled_checkins WHERE conversation_id = ?`, conversationID)
	ci, err := scanCheckIn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetCheckInByConversationID failed", "error", err, "conversationID", conversationID)
		return nil, err
	}
	return &ci, nil
}

const taskColumns = `id, patient_id, patient_name, phone, call_reason, call_goal, priority, created_at, due_at, call_id, max_attempts, next_attempt_at, conversation_id`

func (s *SQLiteStore) SaveCallbackTask(t models.CallbackTask) error {
	_, err := s.db.Exec(`INSERT INTO callback_tasks (id, patient_id, patient_name, phone, call_reason, call_goal, priority, created_at, due_at, call_id, max_attempts, next_attempt_at, conversation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET patient_name = excluded.patient_name, phone = excluded.phone, call_reason = excluded.call_reason, call_goal = excluded.call_goal, priority = excluded.priority, due_at = excluded.due_at, call_id = excluded.call_id, max_attempts = excluded.max_attempts, next_attempt_at = excluded.next_attempt_at, conversation_id = excluded.conversation_id`,
		t.ID, t.PatientID, t.PatientName, t.Phone, t.CallReason, t.CallGoal, t.Priority,
		t.CreatedAt, t.DueAt, nilIfEmpty(t.CallID), t.MaxAttempts,
		nullTime(t.NextAttemptAt), nilIfEmpty(t.ConversationID))
	if err != nil {
		slog.Error("SQLiteStore SaveCallbackTask failed", "error", err, "taskID", t.ID)
		return fmt.Errorf("failed to save callback task %s: %w", t.ID, err)
	}
	slog.Debug("SQLiteStore SaveCallbackTask succeeded", "taskID", t.ID)
	return nil
}

func (s *SQLiteStore) GetCallbackTask(id string) (*models.CallbackTask, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM callback_tasks WHERE id = ?`, id)
	t, err := scanCallbackTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetCallbackTask failed", "error", err, "taskID", id)
		return nil, err
	}
	if t.Attempts, err = s.loadAttempts(t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) GetCallbackTaskByConversationID(conversationID string) (*models.CallbackTask, error) {
	if conversationID == "" {
		return nil, nil
	}
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM callback_tasks WHERE conversation_id = ?`, conversationID)
	t, err := scanCallbackTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetCallbackTaskByConversationID failed", "error", err, "conversationID", conversationID)
		return nil, err
	}
	if t.Attempts, err = s.loadAttempts(t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) ListCallbackTasks() ([]models.CallbackTask, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM callback_tasks ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListCallbackTasks query failed", "error", err)
		return nil, fmt.Errorf("failed to query callback tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.CallbackTask
	for rows.Next() {
		t, err := scanCallbackTask(rows)
		if err != nil {
			slog.Error("SQLiteStore ListCallbackTasks scan failed", "error", err)
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate callback task rows: %w", err)
	}
	for i := range tasks {
		if tasks[i].Attempts, err = s.loadAttempts(tasks[i].ID); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (s *SQLiteStore) loadAttempts(taskID string) ([]models.CallbackAttempt, error) {
	rows, err := s.db.Query(`SELECT attempt_number, timestamp, outcome, notes, duration_sec FROM callback_attempts WHERE task_id = ? ORDER BY attempt_number`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var attempts []models.CallbackAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attempt rows: %w", err)
	}
	return attempts, nil
}

func (s *SQLiteStore) AddCallbackAttempt(taskID string, attempt models.CallbackAttempt) error {
	_, err := s.db.Exec(`INSERT INTO callback_attempts (task_id, attempt_number, timestamp, outcome, notes, duration_sec) VALUES (?, ?, ?, ?, ?, ?)`,
		taskID, attempt.AttemptNumber, attempt.Timestamp, attempt.Outcome, nilIfEmpty(attempt.Notes), attempt.DurationSec)
	if err != nil {
		slog.Error("SQLiteStore AddCallbackAttempt failed", "error", err, "taskID", taskID)
		return fmt.Errorf("failed to insert attempt for task %s: %w", taskID, err)
	}
	slog.Debug("SQLiteStore AddCallbackAttempt succeeded", "taskID", taskID, "attempt", attempt.AttemptNumber, "outcome", attempt.Outcome)
	return nil
}

func (s *SQLiteStore) ReplaceCallbackAttempts(taskID string, attempts []models.CallbackAttempt) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM callback_attempts WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to clear attempts for task %s: %w", taskID, err)
	}
	for _, a := range attempts {
		if _, err := tx.Exec(`INSERT INTO callback_attempts (task_id, attempt_number, timestamp, outcome, notes, duration_sec) VALUES (?, ?, ?, ?, ?, ?)`,
			taskID, a.AttemptNumber, a.Timestamp, a.Outcome, nilIfEmpty(a.Notes), a.DurationSec); err != nil {
			return fmt.Errorf("failed to insert attempt for task %s: %w", taskID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attempt replacement: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteCallbackTask(id string) error {
	_, err := s.db.Exec(`DELETE FROM callback_tasks WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteCallbackTask failed", "error", err, "taskID", id)
		return fmt.Errorf("failed to delete callback task %s: %w", id, err)
	}
	// Foreign key enforcement is off by default in SQLite; clear explicitly.
	if _, err := s.db.Exec(`DELETE FROM callback_attempts WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete attempts for task %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) AddActivityEvent(e models.ActivityEvent) error {
	_, err := s.db.Exec(`INSERT INTO activity_events (id, type, description, timestamp, patient_name, patient_id) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Description, e.Timestamp, nilIfEmpty(e.PatientName), nilIfEmpty(e.PatientID))
	if err != nil {
		slog.Error("SQLiteStore AddActivityEvent failed", "error", err, "type", e.Type)
		return fmt.Errorf("failed to insert activity event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActivityEvents(limit int) ([]models.ActivityEvent, error) {
	query := `SELECT id, type, description, timestamp, patient_name, patient_id FROM activity_events ORDER BY timestamp DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(query+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		slog.Error("SQLiteStore ListActivityEvents query failed", "error", err)
		return nil, fmt.Errorf("failed to query activity events: %w", err)
	}
	defer rows.Close()

	var events []models.ActivityEvent
	for rows.Next() {
		e, err := scanActivityEvent(rows)
		if err != nil {
			slog.Error("SQLiteStore ListActivityEvents scan failed", "error", err)
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity event rows: %w", err)
	}
	return events, nil
}

func (s *SQLiteStore) SaveAgentConfig(cfg models.AgentConfig) error {
	configJSON, err := marshalJSON(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO agent_config (id, config) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET config = excluded.config`, configJSON)
	if err != nil {
		slog.Error("SQLiteStore SaveAgentConfig failed", "error", err)
		return fmt.Errorf("failed to save agent config: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAgentConfig() (*models.AgentConfig, error) {
	var configJSON string
	err := s.db.QueryRow(`SELECT config FROM agent_config WHERE id = 1`).Scan(&configJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetAgentConfig failed", "error", err)
		return nil, fmt.Errorf("failed to load agent config: %w", err)
	}
	var cfg models.AgentConfig
	if err := unmarshalJSON(configJSON, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite store")
	return s.db.Close()
}
