// Package store provides storage backends for CarePipe.
//
// This file implements an in-memory store used for tests and for running
// without a database DSN.
package store

import (
	"sort"
	"sync"

	"github.com/AudienHealth/CarePipe/internal/models"
)

// InMemoryStore is a mutex-guarded in-memory Store implementation.
type InMemoryStore struct {
	mu        sync.RWMutex
	patients  map[string]models.Patient
	sequences map[string]models.ProactiveSequence
	checkIns  map[string]models.ScheduledCheckIn
	tasks     map[string]models.CallbackTask
	events    []models.ActivityEvent
	config    *models.AgentConfig
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		patients:  make(map[string]models.Patient),
		sequences: make(map[string]models.ProactiveSequence),
		checkIns:  make(map[string]models.ScheduledCheckIn),
		tasks:     make(map[string]models.CallbackTask),
	}
}

func (s *InMemoryStore) SavePatient(p models.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
	return nil
}

func (s *InMemoryStore) GetPatient(id string) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) ListPatients() ([]models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *InMemoryStore) DeletePatient(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patients, id)
	return nil
}

func (s *InMemoryStore) SaveSequence(seq models.ProactiveSequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[seq.ID] = seq
	return nil
}

func (s *InMemoryStore) ListSequences() ([]models.ProactiveSequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.ProactiveSequence, 0, len(s.sequences))
	for _, seq := range s.sequences {
		result = append(result, seq)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *InMemoryStore) DeleteSequence(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sequences, id)
	return nil
}

func (s *InMemoryStore) ReplaceCheckIns(checkIns []models.ScheduledCheckIn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkIns = make(map[string]models.ScheduledCheckIn, len(checkIns))
	for _, ci := range checkIns {
		s.checkIns[ci.ID] = ci
	}
	return nil
}

func (s *InMemoryStore) ListCheckIns() ([]models.ScheduledCheckIn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.ScheduledCheckIn, 0, len(s.checkIns))
	for _, ci := range s.checkIns {
		result = append(result, ci)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ScheduledFor.Equal(result[j].ScheduledFor) {
			return result[i].ID < result[j].ID
		}
		return result[i].ScheduledFor.Before(result[j].ScheduledFor)
	})
	return result, nil
}

func (s *InMemoryStore) UpdateCheckIn(ci models.ScheduledCheckIn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkIns[ci.ID] = ci
	return nil
}

func (s *InMemoryStore) GetCheckInByConversationID(conversationID string) (*models.ScheduledCheckIn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conversationID == "" {
		return nil, nil
	}
	for _, ci := range s.checkIns {
		if ci.ConversationID == conversationID {
			found := ci
			return &found, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) SaveCallbackTask(t models.CallbackTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tasks[t.ID]; ok {
		// Attempts are managed through AddCallbackAttempt and
		// ReplaceCallbackAttempts only.
		t.Attempts = existing.Attempts
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *InMemoryStore) GetCallbackTask(id string) (*models.CallbackTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *InMemoryStore) GetCallbackTaskByConversationID(conversationID string) (*models.CallbackTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conversationID == "" {
		return nil, nil
	}
	for _, t := range s.tasks {
		if t.ConversationID == conversationID {
			found := t
			return &found, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ListCallbackTasks() ([]models.CallbackTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.CallbackTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *InMemoryStore) AddCallbackAttempt(taskID string, attempt models.CallbackAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	t.Attempts = append(t.Attempts, attempt)
	s.tasks[taskID] = t
	return nil
}

func (s *InMemoryStore) ReplaceCallbackAttempts(taskID string, attempts []models.CallbackAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	t.Attempts = attempts
	s.tasks[taskID] = t
	return nil
}

func (s *InMemoryStore) DeleteCallbackTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *InMemoryStore) AddActivityEvent(e models.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *InMemoryStore) ListActivityEvents(limit int) ([]models.ActivityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.ActivityEvent, len(s.events))
	copy(result, s.events)
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *InMemoryStore) SaveAgentConfig(cfg models.AgentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = &cfg
	return nil
}

func (s *InMemoryStore) GetAgentConfig() (*models.AgentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return nil, nil
	}
	cfg := *s.config
	return &cfg, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
