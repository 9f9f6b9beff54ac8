// Package store provides storage backends for CarePipe.
//
// It defines the Store interface over patients, sequences, scheduled
// check-ins, callback tasks with their attempt history, the activity feed,
// and the agent configuration, with in-memory, SQLite, and PostgreSQL
// implementations. The scheduling core never assumes a particular backend;
// it works on collections loaded from and written back to a Store.
package store

import "github.com/AudienHealth/CarePipe/internal/models"

// Store is the persistence interface shared by all backends.
//
// Callback task status is never persisted: backends store the task row and
// its attempts, and status is re-derived on every read.
type Store interface {
	// Patients
	SavePatient(p models.Patient) error
	GetPatient(id string) (*models.Patient, error)
	ListPatients() ([]models.Patient, error)
	DeletePatient(id string) error

	// Sequences
	SaveSequence(s models.ProactiveSequence) error
	ListSequences() ([]models.ProactiveSequence, error)
	DeleteSequence(id string) error

	// Scheduled check-ins. ReplaceCheckIns writes back a reconciled set
	// atomically; UpdateCheckIn upserts a single item (dispatch/webhook
	// transitions).
	ReplaceCheckIns(checkIns []models.ScheduledCheckIn) error
	ListCheckIns() ([]models.ScheduledCheckIn, error)
	UpdateCheckIn(ci models.ScheduledCheckIn) error
	GetCheckInByConversationID(conversationID string) (*models.ScheduledCheckIn, error)

	// Callback tasks. SaveCallbackTask upserts the task row only; attempts
	// are append-only via AddCallbackAttempt. ReplaceCallbackAttempts exists
	// solely for the destructive reopen admin operation.
	SaveCallbackTask(t models.CallbackTask) error
	GetCallbackTask(id string) (*models.CallbackTask, error)
	GetCallbackTaskByConversationID(conversationID string) (*models.CallbackTask, error)
	ListCallbackTasks() ([]models.CallbackTask, error)
	AddCallbackAttempt(taskID string, attempt models.CallbackAttempt) error
	ReplaceCallbackAttempts(taskID string, attempts []models.CallbackAttempt) error
	DeleteCallbackTask(id string) error

	// Activity feed
	AddActivityEvent(e models.ActivityEvent) error
	ListActivityEvents(limit int) ([]models.ActivityEvent, error)

	// Agent configuration (single clinic-wide record)
	SaveAgentConfig(cfg models.AgentConfig) error
	GetAgentConfig() (*models.AgentConfig, error)

	Close() error
}
