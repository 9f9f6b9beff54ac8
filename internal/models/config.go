// Package models defines the core data structures for CarePipe.
//
// This file defines the agent configuration consumed by the dispatcher and
// the callback engine. It is an explicit, validated struct with named fields
// rather than a loosely-typed settings record.
package models

import (
	"errors"
	"fmt"
)

// Default callback settings applied when the clinic has not configured them.
const (
	// DefaultMaxAttempts is the default callback attempt ceiling.
	DefaultMaxAttempts = 3
	// DefaultRedialIntervalMinutes is the default wait between redial attempts.
	DefaultRedialIntervalMinutes = 120
)

// CallbackSettings configures the callback retry engine.
type CallbackSettings struct {
	MaxAttempts            int              `json:"max_attempts"`
	RedialIntervalMinutes  int              `json:"redial_interval_minutes"`
	AutoCreateOnEscalation bool             `json:"auto_create_on_escalation"`
	AutoCreateOnVoicemail  bool             `json:"auto_create_on_voicemail"`
	AutoCreateOnNoAnswer   bool             `json:"auto_create_on_no_answer"`
	DefaultPriority        CallbackPriority `json:"default_priority"`
}

// Validate checks the callback settings for consistency.
func (s *CallbackSettings) Validate() error {
	if s.MaxAttempts < 1 {
		return errors.New("max_attempts must be at least 1")
	}
	if s.RedialIntervalMinutes < 1 {
		return errors.New("redial_interval_minutes must be at least 1")
	}
	if !IsValidCallbackPriority(s.DefaultPriority) {
		return fmt.Errorf("default_priority: %w", ErrInvalidPriority)
	}
	return nil
}

// AgentConfig holds the clinic's voice agent configuration. The provider ids
// identify the outbound conversational agent and the caller phone number at
// the call provider; the dispatcher skips a whole batch when they are absent.
type AgentConfig struct {
	ClinicName       string           `json:"clinic_name"`
	PhoneNumber      string           `json:"phone_number,omitempty"`
	AgentID          string           `json:"agent_id,omitempty"`
	OutboundAgentID  string           `json:"outbound_agent_id,omitempty"`
	PhoneNumberID    string           `json:"phone_number_id,omitempty"`
	CallbackSettings CallbackSettings `json:"callback_settings"`
}

// DefaultAgentConfig returns a configuration with sensible defaults and no
// provider ids configured.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ClinicName: "the clinic",
		CallbackSettings: CallbackSettings{
			MaxAttempts:            DefaultMaxAttempts,
			RedialIntervalMinutes:  DefaultRedialIntervalMinutes,
			AutoCreateOnEscalation: true,
			AutoCreateOnVoicemail:  false,
			AutoCreateOnNoAnswer:   false,
			DefaultPriority:        CallbackPriorityMedium,
		},
	}
}

// Validate checks the agent configuration for consistency. Provider ids are
// allowed to be absent; the dispatcher degrades to skipping batches.
func (c *AgentConfig) Validate() error {
	if c.ClinicName == "" {
		return errors.New("clinic_name cannot be empty")
	}
	if err := c.CallbackSettings.Validate(); err != nil {
		return fmt.Errorf("callback_settings: %w", err)
	}
	return nil
}

// OutboundAgent returns the agent id to use for outbound calls, falling back
// to the inbound agent id when no dedicated outbound agent is configured.
func (c *AgentConfig) OutboundAgent() string {
	if c.OutboundAgentID != "" {
		return c.OutboundAgentID
	}
	return c.AgentID
}

// OutboundConfigured reports whether outbound calls can be placed at all.
func (c *AgentConfig) OutboundConfigured() bool {
	return c.OutboundAgent() != "" && c.PhoneNumberID != ""
}
