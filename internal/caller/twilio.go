// Package caller provides the outbound call-placing abstraction.
//
// This file implements a Twilio voice backend as an alternative to the
// ElevenLabs backend for clinics that run their own voice webhook.
package caller

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration options for the Twilio voice caller.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// VoiceURL is the TwiML webhook invoked when the call connects. The
	// agent id and dynamic variables are appended as query parameters so
	// the webhook can route the conversation.
	VoiceURL string
}

// TwilioOption defines a configuration option for the Twilio voice caller.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the caller id used for outbound calls.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// WithVoiceURL sets the TwiML webhook URL for connected calls.
func WithVoiceURL(u string) TwilioOption {
	return func(o *TwilioOpts) { o.VoiceURL = u }
}

// TwilioCaller places outbound calls through the Twilio Calls API.
type TwilioCaller struct {
	client   *twilio.RestClient
	from     string
	voiceURL string
}

// NewTwilioCaller creates a Twilio-backed caller, falling back to the
// standard TWILIO_* environment variables for unset options.
func NewTwilioCaller(opts ...TwilioOption) (*TwilioCaller, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.VoiceURL == "" {
		cfg.VoiceURL = os.Getenv("TWILIO_VOICE_URL")
	}
	slog.Debug("Twilio caller config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "",
		"VoiceURL_set", cfg.VoiceURL != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}
	if cfg.VoiceURL == "" {
		return nil, fmt.Errorf("voice webhook URL must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioCaller{client: client, from: cfg.FromNumber, voiceURL: cfg.VoiceURL}, nil
}

// Trigger places one outbound call via the Twilio Calls API and returns the
// call SID as the correlation id. The phoneNumberID parameter is unused by
// this backend; the caller id is fixed at construction.
func (c *TwilioCaller) Trigger(ctx context.Context, toNumber, agentID, phoneNumberID string, vars Variables) (string, error) {
	if toNumber == "" {
		return "", ErrEmptyToNumber
	}
	if agentID == "" {
		return "", ErrMissingAgentID
	}

	q := url.Values{}
	q.Set("agent_id", agentID)
	if vars.PatientName != "" {
		q.Set("patient_name", vars.PatientName)
	}
	if vars.ClinicName != "" {
		q.Set("clinic_name", vars.ClinicName)
	}
	if vars.CallReason != "" {
		q.Set("call_reason", vars.CallReason)
	}
	if vars.CallGoal != "" {
		q.Set("call_goal", vars.CallGoal)
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(toNumber)
	params.SetFrom(c.from)
	params.SetUrl(c.voiceURL + "?" + q.Encode())

	resp, err := c.client.Api.CreateCall(params)
	if err != nil {
		slog.Error("TwilioCaller.Trigger failed", "to", toNumber, "error", err)
		return "", fmt.Errorf("failed to create call to %s: %w", toNumber, err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Info("TwilioCaller.Trigger succeeded", "to", toNumber, "callSid", sid)
	return sid, nil
}
