// Package domain defines the core entities of the Firewatch platform:
// disaster events, the per-instance assessment outputs, and the completion
// notification contract.
package domain

import (
	"encoding/json"
	"time"
)

// Severity is reported on a fixed 0–10 scale by ingestion.
const (
	SeverityMin = 0
	SeverityMax = 10
)

// DisasterEvent is a reported incident. Immutable; each event is the input
// to exactly one orchestration instance.
type DisasterEvent struct {
	ID         string    `json:"id"`
	Location   string    `json:"location"`
	Severity   int       `json:"severity"`
	ReportedAt time.Time `json:"reported_at"`
}

// ToJSON converts the event to JSON bytes.
func (e DisasterEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RiskAssessment is the output of the risk-analysis activity. The risk level
// is computed from the event, not copied from severity.
type RiskAssessment struct {
	RiskLevel int    `json:"risk_level"`
	Rationale string `json:"rationale"`
}

// ResourceAllocation is the output of the resource-allocation activity.
type ResourceAllocation struct {
	Region    string         `json:"region"`
	Resources map[string]int `json:"resources"`
}

// ResourceAvailability is a snapshot of deployable units for a region, as
// returned by the regional availability lookup (and cached in front of it).
type ResourceAvailability struct {
	Region string         `json:"region"`
	Units  map[string]int `json:"units"`
}

// EscalationAttempt records one escalation invocation.
type EscalationAttempt struct {
	Attempt int    `json:"attempt"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// EscalationFailureLog records exhausted escalation retries. Created only
// when every attempt within the retry budget has failed.
type EscalationFailureLog struct {
	Cause    string              `json:"cause"`
	Event    DisasterEvent       `json:"event"`
	Attempts []EscalationAttempt `json:"attempts"`
}

// ToJSON converts the failure log to JSON bytes.
func (l EscalationFailureLog) ToJSON() ([]byte, error) {
	return json.Marshal(l)
}

// InstanceStatus is the lifecycle state of one orchestration instance.
type InstanceStatus string

const (
	StatusCreated     InstanceStatus = "CREATED"
	StatusRunning     InstanceStatus = "RUNNING"
	StatusAggregating InstanceStatus = "AGGREGATING"
	StatusEscalating  InstanceStatus = "ESCALATING"
	StatusCompleted   InstanceStatus = "COMPLETED"
	StatusFailed      InstanceStatus = "FAILED"
)

// Terminal reports whether the status is a terminal state.
func (s InstanceStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CompletionEvent is emitted exactly once per instance when it reaches a
// terminal state.
type CompletionEvent struct {
	InstanceID string                `json:"instance_id"`
	Status     InstanceStatus        `json:"status"`
	Risk       *RiskAssessment       `json:"risk,omitempty"`
	Allocation *ResourceAllocation   `json:"allocation,omitempty"`
	FailureLog *EscalationFailureLog `json:"failure_log,omitempty"`
}

// ToJSON converts the completion event to JSON bytes.
func (e CompletionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
