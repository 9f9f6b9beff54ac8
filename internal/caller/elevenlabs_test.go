package caller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestElevenLabsTriggerSuccess(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("failed to decode request payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":         true,
			"message":         "Call triggered",
			"conversation_id": "conv-123",
			"callSid":         "CA123",
		})
	}))
	defer server.Close()

	c, err := NewElevenLabsCaller(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewElevenLabsCaller failed: %v", err)
	}

	convID, err := c.Trigger(context.Background(), "+15551230001", "agent-1", "phone-1", Variables{
		PatientName: "Margaret Holt",
		ClinicName:  "Hearing Clinic",
		CallReason:  "Check in",
		CallGoal:    "Verify comfort",
	})
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if convID != "conv-123" {
		t.Errorf("conversation id = %q; want conv-123", convID)
	}
	if gotPath != "/v1/convai/twilio/outbound-call" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotPayload["agent_id"] != "agent-1" || gotPayload["to_number"] != "+15551230001" {
		t.Errorf("unexpected payload: %v", gotPayload)
	}
	if _, ok := gotPayload["conversation_initiation_client_data"]; !ok {
		t.Error("dynamic variables missing from payload")
	}
}

func TestElevenLabsTriggerProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent not found", http.StatusNotFound)
	}))
	defer server.Close()

	c, err := NewElevenLabsCaller(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewElevenLabsCaller failed: %v", err)
	}

	if _, err := c.Trigger(context.Background(), "+15551230001", "agent-1", "phone-1", Variables{}); err == nil {
		t.Error("expected error from provider failure")
	}
}

func TestElevenLabsTriggerValidation(t *testing.T) {
	c, err := NewElevenLabsCaller(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewElevenLabsCaller failed: %v", err)
	}

	if _, err := c.Trigger(context.Background(), "", "agent-1", "phone-1", Variables{}); err != ErrEmptyToNumber {
		t.Errorf("error = %v; want ErrEmptyToNumber", err)
	}
	if _, err := c.Trigger(context.Background(), "+15551230001", "", "phone-1", Variables{}); err != ErrMissingAgentID {
		t.Errorf("error = %v; want ErrMissingAgentID", err)
	}
	if _, err := c.Trigger(context.Background(), "+15551230001", "agent-1", "", Variables{}); err != ErrMissingPhoneNumberID {
		t.Errorf("error = %v; want ErrMissingPhoneNumberID", err)
	}
}

func TestNewElevenLabsCallerRequiresAPIKey(t *testing.T) {
	if _, err := NewElevenLabsCaller(); err == nil {
		t.Error("expected error without API key")
	}
}
