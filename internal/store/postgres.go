// Package store provides storage backends for CarePipe.
//
// This file implements a PostgreSQL-backed store for multi-instance
// deployments.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/AudienHealth/CarePipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SavePatient(p models.Patient) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT(id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, email = EXCLUDED.email, tags = EXCLUDED.tags, risk_score = EXCLUDED.risk_score, risk_reasons = EXCLUDED.risk_reasons, last_contact_at = EXCLUDED.last_contact_at, adoption_signals = EXCLUDED.adoption_signals, proactive_check_ins_enabled = EXCLUDED.proactive_check_ins_enabled, selected_sequence_ids = EXCLUDED.selected_sequence_ids, device_brand = EXCLUDED.device_brand, device_model = EXCLUDED.device_model, fitting_date = EXCLUDED.fitting_date`,
		p.ID, p.Name, p.Phone, nilIfEmpty(p.Email), tagsJSON, p.RiskScore, reasonsJSON,
		p.LastContactAt, signalsJSON, p.ProactiveCheckInsEnabled, selectedJSON,
		nilIfEmpty(p.DeviceBrand), nilIfEmpty(p.DeviceModel), nullTime(p.FittingDate))
	if err != nil {
		slog.Error("PostgresStore SavePatient failed", "error", err, "patientID", p.ID)
		return fmt.Errorf("failed to save patient %s: %w", p.ID, err)
	}
	slog.Debug("PostgresStore SavePatient succeeded", "patientID", p.ID)
	return nil
}

func (s *PostgresStore) GetPatient(id string) (*models.Patient, error) {
	row := s.db.QueryRow(`SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPatient failed", "error", err, "patientID", id)
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ListPatients() ([]models.Patient, error) {
	rows, err := s.db.Query(`SELECT ` + patientColumns + ` FROM patients ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListPatients query failed", "error", err)
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			slog.Error("PostgresStore ListPatients scan failed", "error", err)
			return nil, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patient rows: %w", err)
	}
	return patients, nil
}

func (s *PostgresStore) DeletePatient(id string) error {
	_, err := s.db.Exec(`DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeletePatient failed", "error", err, "patientID", id)
		return fmt.Errorf("failed to delete patient %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) SaveSequence(seq models.ProactiveSequence) error {
	stepsJSON, err := marshalJSON(seq.Steps)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sequences (id, name, audience_tag, steps, active) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(id) DO UPDATE SET name = EXCLUDED.name, audience_tag = EXCLUDED.audience_tag, steps = EXCLUDED.steps, active = EXCLUDED.active`,
		seq.ID, seq.Name, seq.AudienceTag, stepsJSON, seq.Active)
	if err != nil {
		slog.Error("PostgresStore SaveSequence failed", "error", err, "sequenceID", seq.ID)
		return fmt.Errorf("failed to save sequence %s: %w", seq.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListSequences() ([]models.ProactiveSequence, error) {
	rows, err := s.db.Query(`SELECT id, name, audience_tag, steps, active FROM sequences ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListSequences query failed", "error", err)
		return nil, fmt.Errorf("failed to query sequences: %w", err)
	}
	defer rows.Close()

	var sequences []models.ProactiveSequence
	for rows.Next() {
		seq, err := scanSequence(rows)
		if err != nil {
			slog.Error("PostgresStore ListSequences scan failed", "error", err)
			return nil, err
		}
		sequences = append(sequences, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sequence rows: %w", err)
	}
	return sequences, nil
}

func (s *PostgresStore) DeleteSequence(id string) error {
	_, err := s.db.Exec(`DELETE FROM sequences WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteSequence failed", "error", err, "sequenceID", id)
		return fmt.Errorf("failed to delete sequence %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) ReplaceCheckIns(checkIns []models.ScheduledCheckIn) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM scheduled_checkins`); err != nil {
		slog.Error("PostgresStore ReplaceCheckIns clear failed", "error", err)
		return fmt.Errorf("failed to clear check-ins: %w", err)
	}
	for _, ci := range checkIns {
		if err := upsertCheckIn(tx, ci, checkInUpsertPostgres); err != nil {
			slog.Error("PostgresStore ReplaceCheckIns insert failed", "error", err, "checkInID", ci.ID)
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit check-in replacement: %w", err)
	}
	slog.Debug("PostgresStore ReplaceCheckIns succeeded", "count", len(checkIns))
	return nil
}

func (s *PostgresStore) ListCheckIns() ([]models.ScheduledCheckIn, error) {
	rows, err := s.db.Query(`SELECT ` + checkInColumns + ` FROM scheduled_checkins ORDER BY scheduled_for, id`)
	if err != nil {
		slog.Error("PostgresStore ListCheckIns query failed", "error", err)
		return nil, fmt.Errorf("failed to query check-ins: %w", err)
	}
	defer rows.Close()

	var checkIns []models.ScheduledCheckIn
	for rows.Next() {
		ci, err := scanCheckIn(rows)
		if err != nil {
			slog.Error("PostgresStore ListCheckIns scan failed", "error", err)
			return nil, err
		}
		checkIns = append(checkIns, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate check-in rows: %w", err)
	}
	return checkIns, nil
}

func (s *PostgresStore) UpdateCheckIn(ci models.ScheduledCheckIn) error {
	if err := upsertCheckIn(s.db, ci, checkInUpsertPostgres); err != nil {
		slog.Error("PostgresStore UpdateCheckIn failed", "error", err, "checkInID", ci.ID)
		return err
	}
	return nil
}

func (s *PostgresStore) GetCheckInByConversationID(conversationID string) (*models.ScheduledCheckIn, error) {
	if conversationID == "" {
		return nil, nil
	}
	row := s.db.QueryRow(`SELECT `+checkInColumns+` FROM scheduled_checkins WHERE conversation_id = $1`, conversationID)
	ci, err := scanCheckIn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetCheckInByConversationID failed", "error", err, "conversationID", conversationID)
		return nil, err
	}
	return &ci, nil
}

func (s *PostgresStore) SaveCallbackTask(t models.CallbackTask) error {
	_, err := s.db.Exec(`INSERT INTO callback_tasks (id, patient_id, patient_name, phone, call_reason, call_goal, priority, created_at, due_at, call_id, max_attempts, next_attempt_at, conversation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT(id) DO UPDATE SET patient_name = EXCLUDED.patient_name, phone = EXCLUDED.phone, call_reason = EXCLUDED.call_reason, call_goal = EXCLUDED.call_goal, priority = EXCLUDED.priority, due_at = EXCLUDED.due_at, call_id = EXCLUDED.call_id, max_attempts = EXCLUDED.max_attempts, next_attempt_at = EXCLUDED.next_attempt_at, conversation_id = EXCLUDED.conversation_id`,
		t.ID, t.PatientID, t.PatientName, t.Phone, t.CallReason, t.CallGoal, t.Priority,
		t.CreatedAt, t.DueAt, nilIfEmpty(t.CallID), t.MaxAttempts,
		nullTime(t.NextAttemptAt), nilIfEmpty(t.ConversationID))
	if err != nil {
		slog.Error("PostgresStore SaveCallbackTask failed", "error", err, "taskID", t.ID)
		return fmt.Errorf("failed to save callback task %s: %w", t.ID, err)
	}
	slog.Debug("PostgresStore SaveCallbackTask succeeded", "taskID", t.ID)
	return nil
}

func (s *PostgresStore) GetCallbackTask(id string) (*models.CallbackTask, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM callback_tasks WHERE id = $1`, id)
	t, err := scanCallbackTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetCallbackTask failed", "error", err, "taskID", id)
		return nil, err
	}
	if t.Attempts, err = s.loadAttempts(t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) GetCallbackTaskByConversationID(conversationID string) (*models.CallbackTask, error) {
	if conversationID == "" {
		return nil, nil
	}
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM callback_tasks WHERE conversation_id = $1`, conversationID)
	t, err := scanCallbackTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetCallbackTaskByConversationID failed", "error", err, "conversationID", conversationID)
		return nil, err
	}
	if t.Attempts, err = s.loadAttempts(t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) ListCallbackTasks() ([]models.CallbackTask, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM callback_tasks ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListCallbackTasks query failed", "error", err)
		return nil, fmt.Errorf("failed to query callback tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.CallbackTask
	for rows.Next() {
		t, err := scanCallbackTask(rows)
		if err != nil {
			slog.Error("PostgresStore ListCallbackTasks scan failed", "error", err)
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

func (s *PostgresStore) loadAttempts(taskID string) ([]models.CallbackAttempt, error) {
	rows, err := s.db.Query(`SELECT attempt_number, timestamp, outcome, notes, duration_sec FROM callback_attempts WHERE task_id = $1 ORDER BY attempt_number`, taskID)
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

func (s *PostgresStore) AddCallbackAttempt(taskID string, attempt models.CallbackAttempt) error {
	_, err := s.db.Exec(`INSERT INTO callback_attempts (task_id, attempt_number, timestamp, outcome, notes, duration_sec) VALUES ($1, $2, $3, $4, $5, $6)`,
		taskID, attempt.AttemptNumber, attempt.Timestamp, attempt.Outcome, nilIfEmpty(attempt.Notes), attempt.DurationSec)
	if err != nil {
		slog.Error("PostgresStore AddCallbackAttempt failed", "error", err, "taskID", taskID)
		return fmt.Errorf("failed to insert attempt for task %s: %w", taskID, err)
	}
	slog.Debug("PostgresStore AddCallbackAttempt succeeded", "taskID", taskID, "attempt", attempt.AttemptNumber, "outcome", attempt.Outcome)
	return nil
}

func (s *PostgresStore) ReplaceCallbackAttempts(taskID string, attempts []models.CallbackAttempt) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM callback_attempts WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("failed to clear attempts for task %s: %w", taskID, err)
	}
	for _, a := range attempts {
		if _, err := tx.Exec(`INSERT INTO callback_attempts (task_id, attempt_number, timestamp, outcome, notes, duration_sec) VALUES ($1, $2, $3, $4, $5, $6)`,
			taskID, a.AttemptNumber, a.Timestamp, a.Outcome, nilIfEmpty(a.Notes), a.DurationSec); err != nil {
			return fmt.Errorf("failed to insert attempt for task %s: %w", taskID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attempt replacement: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCallbackTask(id string) error {
	_, err := s.db.Exec(`DELETE FROM callback_tasks WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteCallbackTask failed", "error", err, "taskID", id)
		return fmt.Errorf("failed to delete callback task %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) AddActivityEvent(e models.ActivityEvent) error {
	_, err := s.db.Exec(`INSERT INTO activity_events (id, type, description, timestamp, patient_name, patient_id) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Type, e.Description, e.Timestamp, nilIfEmpty(e.PatientName), nilIfEmpty(e.PatientID))
	if err != nil {
		slog.Error("PostgresStore AddActivityEvent failed", "error", err, "type", e.Type)
		return fmt.Errorf("failed to insert activity event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivityEvents(limit int) ([]models.ActivityEvent, error) {
	query := `SELECT id, type, description, timestamp, patient_name, patient_id FROM activity_events ORDER BY timestamp DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(query+` LIMIT $1`, limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		slog.Error("PostgresStore ListActivityEvents query failed", "error", err)
		return nil, fmt.Errorf("failed to query activity events: %w", err)
	}
	defer rows.Close()

	var events []models.ActivityEvent
	for rows.Next() {
		e, err := scanActivityEvent(rows)
		if err != nil {
			slog.Error("PostgresStore ListActivityEvents scan failed", "error", err)
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity event rows: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) SaveAgentConfig(cfg models.AgentConfig) error {
	configJSON, err := marshalJSON(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO agent_config (id, config) VALUES (1, $1)
		ON CONFLICT(id) DO UPDATE SET config = EXCLUDED.config`, configJSON)
	if err != nil {
		slog.Error("PostgresStore SaveAgentConfig failed", "error", err)
		return fmt.Errorf("failed to save agent config: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAgentConfig() (*models.AgentConfig, error) {
	var configJSON string
	err := s.db.QueryRow(`SELECT config FROM agent_config WHERE id = 1`).Scan(&configJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetAgentConfig failed", "error", err)
		return nil, fmt.Errorf("failed to load agent config: %w", err)
	}
	var cfg models.AgentConfig
	if err := unmarshalJSON(configJSON, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres store")
	return s.db.Close()
}
