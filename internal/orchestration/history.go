// Package orchestration implements the durable orchestration engine.
//
// One instance runs per disaster event. Every scheduling decision and every
// activity outcome is appended to the instance's ordered history before any
// dependent side effect proceeds, so an instance can be reconstructed after a
// crash purely by replaying the history: recorded outcomes are never
// re-invoked, unresolved activities are re-scheduled. The invocation
// mechanism is at-least-once; the history gives at-most-one semantic
// execution per logical activity.
package orchestration

import (
	"encoding/json"
	"time"

	"firewatch.io/firewatch/internal/activity"
	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/pkg/errors"
)

// EntryType identifies one kind of history entry.
type EntryType string

const (
	EntryInstanceCreated      EntryType = "INSTANCE_CREATED"
	EntryStatusChanged        EntryType = "STATUS_CHANGED"
	EntryActivityScheduled    EntryType = "ACTIVITY_SCHEDULED"
	EntryActivityCompleted    EntryType = "ACTIVITY_COMPLETED"
	EntryActivityFailed       EntryType = "ACTIVITY_FAILED"
	EntryCompensationRecorded EntryType = "COMPENSATION_RECORDED"
	EntryCompletionPublished  EntryType = "COMPLETION_PUBLISHED"
)

// Logical task ids. Retried invocations are new ActivityInvocations sharing
// the same logical task id.
const (
	TaskRisk       = "risk-analysis"
	TaskAllocation = "resource-allocation"
	TaskEscalation = "escalation"
	TaskFailureLog = "failure-logging"
)

// Entry is one append-only history record. Entries for a single instance are
// totally ordered by Seq; entries for different instances are unrelated.
type Entry struct {
	Seq        int                   `json:"seq"`
	Type       EntryType             `json:"type"`
	TaskID     string                `json:"task_id,omitempty"`
	Activity   activity.Name         `json:"activity,omitempty"`
	Attempt    int                   `json:"attempt,omitempty"`
	Status     domain.InstanceStatus `json:"status,omitempty"`
	Payload    json.RawMessage       `json:"payload,omitempty"`
	RecordedAt time.Time             `json:"recorded_at"`
}

// FailurePayload is the recorded form of an activity failure.
type FailurePayload struct {
	Code    string       `json:"code"`
	Class   errors.Class `json:"class"`
	Message string       `json:"message"`
}

func failurePayloadFrom(err error) FailurePayload {
	return FailurePayload{
		Code:    errors.CodeOf(err),
		Class:   errors.ClassOf(err),
		Message: err.Error(),
	}
}

func newCreatedEntry(event domain.DisasterEvent) (Entry, error) {
	payload, err := event.ToJSON()
	if err != nil {
		return Entry{}, err
	}
	return Entry{Type: EntryInstanceCreated, Payload: payload}, nil
}

func newStatusEntry(status domain.InstanceStatus) Entry {
	return Entry{Type: EntryStatusChanged, Status: status}
}

func newFailedStatusEntry(failure FailurePayload) (Entry, error) {
	payload, err := json.Marshal(failure)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Type: EntryStatusChanged, Status: domain.StatusFailed, Payload: payload}, nil
}

func newScheduledEntry(taskID string, name activity.Name, attempt int) Entry {
	return Entry{Type: EntryActivityScheduled, TaskID: taskID, Activity: name, Attempt: attempt}
}

func newCompletedEntry(taskID string, name activity.Name, attempt int, out activity.Output) (Entry, error) {
	payload, err := json.Marshal(out)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Type: EntryActivityCompleted, TaskID: taskID, Activity: name, Attempt: attempt, Payload: payload}, nil
}

func newFailedEntry(taskID string, name activity.Name, attempt int, cause error) (Entry, error) {
	payload, err := json.Marshal(failurePayloadFrom(cause))
	if err != nil {
		return Entry{}, err
	}
	return Entry{Type: EntryActivityFailed, TaskID: taskID, Activity: name, Attempt: attempt, Payload: payload}, nil
}

func newCompensationEntry(log domain.EscalationFailureLog) (Entry, error) {
	payload, err := log.ToJSON()
	if err != nil {
		return Entry{}, err
	}
	return Entry{Type: EntryCompensationRecorded, Payload: payload}, nil
}

func newPublishedEntry(event domain.CompletionEvent) (Entry, error) {
	payload, err := event.ToJSON()
	if err != nil {
		return Entry{}, err
	}
	return Entry{Type: EntryCompletionPublished, Payload: payload}, nil
}
