// Package caller provides the outbound call-placing abstraction and its
// provider backends. The engine hands a due item to a Caller exactly once per
// ready window and stores the returned correlation id for later webhook
// reconciliation; it never records a call outcome itself.
package caller

import (
	"context"
	"errors"
)

// Error variables for better error handling and testability
var (
	ErrEmptyToNumber        = errors.New("destination number cannot be empty")
	ErrMissingAgentID       = errors.New("provider agent id not configured")
	ErrMissingPhoneNumberID = errors.New("provider phone number id not configured")
)

// Variables are the dynamic variables handed to the conversational agent for
// one outbound call.
type Variables struct {
	PatientName string `json:"patient_name,omitempty"`
	ClinicName  string `json:"clinic_name,omitempty"`
	CallReason  string `json:"call_reason,omitempty"`
	CallGoal    string `json:"call_goal,omitempty"`
}

// Caller places outbound calls through a voice provider. Trigger returns the
// provider's conversation correlation id. The number is assumed valid and
// routable; no normalization or display formatting happens here.
type Caller interface {
	Trigger(ctx context.Context, toNumber, agentID, phoneNumberID string, vars Variables) (conversationID string, err error)
}
