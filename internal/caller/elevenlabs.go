package caller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Defaults for the ElevenLabs backend.
const (
	// DefaultElevenLabsBaseURL is the production API endpoint.
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	// DefaultCallTimeout bounds a single trigger request.
	DefaultCallTimeout = 30 * time.Second
)

// outboundCallPath is the convai outbound-call endpoint.
const outboundCallPath = "/v1/convai/twilio/outbound-call"

// ElevenLabsOpts holds configuration options for the ElevenLabs caller.
type ElevenLabsOpts struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ElevenLabsOption defines a configuration option for the ElevenLabs caller.
type ElevenLabsOption func(*ElevenLabsOpts)

// WithAPIKey sets the ElevenLabs API key.
func WithAPIKey(key string) ElevenLabsOption {
	return func(o *ElevenLabsOpts) {
		o.APIKey = key
	}
}

// WithBaseURL overrides the API endpoint (used in tests).
func WithBaseURL(url string) ElevenLabsOption {
	return func(o *ElevenLabsOpts) {
		o.BaseURL = url
	}
}

// WithTimeout bounds each trigger request.
func WithTimeout(d time.Duration) ElevenLabsOption {
	return func(o *ElevenLabsOpts) {
		o.Timeout = d
	}
}

// WithHTTPClient supplies a custom HTTP client.
func WithHTTPClient(c *http.Client) ElevenLabsOption {
	return func(o *ElevenLabsOpts) {
		o.HTTPClient = c
	}
}

// ElevenLabsCaller places calls through the ElevenLabs conversational AI
// outbound-call API.
type ElevenLabsCaller struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewElevenLabsCaller creates a caller backed by the ElevenLabs API.
func NewElevenLabsCaller(opts ...ElevenLabsOption) (*ElevenLabsCaller, error) {
	cfg := ElevenLabsOpts{
		BaseURL: DefaultElevenLabsBaseURL,
		Timeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ElevenLabs API key not set")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("NewElevenLabsCaller created", "baseURL", cfg.BaseURL, "timeout", cfg.Timeout)
	return &ElevenLabsCaller{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, client: client}, nil
}

// triggerRequest is the wire payload for the outbound-call endpoint.
type triggerRequest struct {
	AgentID                          string                `json:"agent_id"`
	AgentPhoneNumberID               string                `json:"agent_phone_number_id"`
	ToNumber                         string                `json:"to_number"`
	ConversationInitiationClientData *initiationClientData `json:"conversation_initiation_client_data,omitempty"`
}

type initiationClientData struct {
	DynamicVariables Variables `json:"dynamic_variables"`
}

// triggerResponse is the wire response from the outbound-call endpoint.
type triggerResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	CallSID        string `json:"callSid"`
}

// Trigger places one outbound call and returns the provider conversation id.
func (c *ElevenLabsCaller) Trigger(ctx context.Context, toNumber, agentID, phoneNumberID string, vars Variables) (string, error) {
	if toNumber == "" {
		return "", ErrEmptyToNumber
	}
	if agentID == "" {
		return "", ErrMissingAgentID
	}
	if phoneNumberID == "" {
		return "", ErrMissingPhoneNumberID
	}

	payload := triggerRequest{
		AgentID:            agentID,
		AgentPhoneNumberID: phoneNumberID,
		ToNumber:           toNumber,
	}
	if vars != (Variables{}) {
		payload.ConversationInitiationClientData = &initiationClientData{DynamicVariables: vars}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode trigger payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+outboundCallPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build trigger request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("ElevenLabsCaller.Trigger request failed", "error", err, "to", toNumber)
		return "", fmt.Errorf("trigger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("ElevenLabsCaller.Trigger provider error", "status", resp.StatusCode, "to", toNumber)
		return "", fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(detail))
	}

	var result triggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode trigger response: %w", err)
	}

	slog.Info("ElevenLabsCaller.Trigger succeeded", "to", toNumber, "conversationID", result.ConversationID, "callSid", result.CallSID)
	return result.ConversationID, nil
}
