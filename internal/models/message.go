package models

import (
	"time"
)

// MessageType classifies an inter-agent message.
type MessageType string

const (
	TypeCommand                  MessageType = "command"
	TypeQuery                    MessageType = "query"
	TypeResponse                 MessageType = "response"
	TypeEvent                    MessageType = "event"
	TypeNotification             MessageType = "notification"
	TypeHeartbeat                MessageType = "heartbeat"
	TypeGovernanceRequest        MessageType = "governance_request"
	TypeGovernanceResponse       MessageType = "governance_response"
	TypeConstitutionalValidation MessageType = "constitutional_validation"
	TypeTaskRequest              MessageType = "task_request"
	TypeTaskResponse             MessageType = "task_response"
)

// knownTypes is the closed set of accepted message types.
var knownTypes = map[MessageType]bool{
	TypeCommand:                  true,
	TypeQuery:                    true,
	TypeResponse:                 true,
	TypeEvent:                    true,
	TypeNotification:             true,
	TypeHeartbeat:                true,
	TypeGovernanceRequest:        true,
	TypeGovernanceResponse:       true,
	TypeConstitutionalValidation: true,
	TypeTaskRequest:              true,
	TypeTaskResponse:             true,
}

// Known reports whether t is an accepted message type.
func (t MessageType) Known() bool {
	return knownTypes[t]
}

// Priority orders message urgency. Lower value is more urgent.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityNormal   Priority = 2
	PriorityLow      Priority = 3
)

// Valid reports whether p is within the defined range.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// Message is a single inter-agent message. Immutable once validation
// begins; corrections produce a new message with a new ID.
type Message struct {
	ID              string         `json:"id"` // ULID
	ConversationID  string         `json:"conversation_id,omitempty"`
	FromAgent       string         `json:"from_agent"`
	ToAgent         string         `json:"to_agent"`
	Type            MessageType    `json:"message_type"`
	Priority        Priority       `json:"priority"`
	Content         map[string]any `json:"content"`
	TenantID        string         `json:"tenant_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`
	ComplianceToken string         `json:"compliance_token,omitempty"`
}

// Action returns the requested capability or tool name from the payload,
// if the message carries one.
func (m *Message) Action() string {
	if m.Content == nil {
		return ""
	}
	for _, key := range []string{"action", "tool", "capability"} {
		if v, ok := m.Content[key].(string); ok {
			return v
		}
	}
	return ""
}

// Expired reports whether the message carries an expiry in the past.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}
