// Package testutil provides common test utilities and helpers for CarePipe tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AudienHealth/CarePipe/internal/api"
	"github.com/AudienHealth/CarePipe/internal/models"
	"github.com/AudienHealth/CarePipe/internal/store"
)

// FixedClock returns the same instant on every read, so schedules and due
// windows can be tested deterministically.
type FixedClock struct {
	Time time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.Time }

// NewTestServer creates a test API server with an in-memory store and a fixed
// clock. This centralizes the test server creation logic used across multiple
// test files.
func NewTestServer(now time.Time) (*api.Server, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	server := api.NewServer(st, nil, nil, api.WithClock(FixedClock{Time: now}))
	return server, st
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// NewFittedPatient builds a patient with a fitting date and proactive
// check-ins enabled, the common scheduling fixture.
func NewFittedPatient(id string, fitting time.Time) models.Patient {
	return models.Patient{
		ID:                       id,
		Name:                     "Margaret Holt",
		Phone:                    "+15551230001",
		Tags:                     []string{models.TagNewFit},
		LastContactAt:            fitting,
		ProactiveCheckInsEnabled: true,
		FittingDate:              &fitting,
	}
}

// NewCallSequence builds an active call sequence with one step per given day.
func NewCallSequence(id, tag string, days ...int) models.ProactiveSequence {
	steps := make([]models.SequenceStep, 0, len(days))
	for _, day := range days {
		steps = append(steps, models.SequenceStep{
			Day:     day,
			Channel: models.ChannelCall,
			Goal:    "Check device comfort and wear time",
		})
	}
	return models.ProactiveSequence{
		ID:          id,
		Name:        "Sequence " + id,
		AudienceTag: tag,
		Steps:       steps,
		Active:      true,
	}
}

// SeedConfiguredAgent saves an agent configuration with provider ids set.
func SeedConfiguredAgent(t *testing.T, st store.Store) models.AgentConfig {
	t.Helper()
	cfg := models.DefaultAgentConfig()
	cfg.ClinicName = "Audien Hearing"
	cfg.AgentID = "agent-1"
	cfg.PhoneNumberID = "phone-1"
	if err := st.SaveAgentConfig(cfg); err != nil {
		t.Fatalf("failed to seed agent config: %v", err)
	}
	return cfg
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
