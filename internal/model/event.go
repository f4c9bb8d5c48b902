package model

import "time"

// EventType names a pipeline stage event
type EventType string

const (
	EventAmbiguityDetected EventType = "ambiguity_detected"
	EventIntent            EventType = "intent"
	EventPlan              EventType = "plan"
	EventExecution         EventType = "execution"
	EventGrounding         EventType = "grounding"
	EventReflection        EventType = "reflection"
)

// Event is emitted to the observer once per completed stage
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// AuditEventType names a policy audit event
type AuditEventType string

const (
	AuditLockedRuleViolation AuditEventType = "planner_locked_rule_violation"
	AuditLockedRuleApplied   AuditEventType = "planner_locked_rule_applied"
)

// AuditEvent records a policy override made by the planner
type AuditEvent struct {
	ID        string         `json:"id"`
	Type      AuditEventType `json:"type"`
	Rule      string         `json:"rule"`
	Action    string         `json:"action"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
