package orchestration

import (
	"encoding/json"

	"firewatch.io/firewatch/internal/activity"
	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/pkg/errors"
)

// instanceState is the deterministic projection of one history. Replaying
// the same entries always yields the same state, which is what lets the
// engine resume an instance without re-invoking recorded work.
type instanceState struct {
	id     string
	event  domain.DisasterEvent
	status domain.InstanceStatus

	risk       *domain.RiskAssessment
	allocation *domain.ResourceAllocation

	// riskScheduled/allocationScheduled track schedule entries without a
	// recorded outcome, so resumed runs re-invoke instead of re-recording
	// the scheduling decision.
	riskScheduled       bool
	allocationScheduled bool

	// branchFailure is the first terminal failure on an initial branch.
	branchFailure *FailurePayload

	escalationAttempts  []domain.EscalationAttempt // resolved failed attempts
	escalationPending   bool                       // scheduled attempt with no recorded outcome
	escalationSucceeded bool

	compensationScheduled bool
	compensationResolved  bool
	failureLog            *domain.EscalationFailureLog

	published bool
	nextSeq   int
}

// project folds a history into instance state, validating as it goes. Any
// history that cannot be reconciled is a replay inconsistency: fatal for the
// instance, never silently repaired.
func project(instanceID string, entries []Entry) (*instanceState, error) {
	if len(entries) == 0 {
		return nil, errors.ReplayInconsistent("instance %s: empty history", instanceID)
	}

	state := &instanceState{id: instanceID, status: domain.StatusCreated}

	for i, e := range entries {
		if e.Seq != i {
			return nil, errors.ReplayInconsistent("instance %s: entry %d has seq %d", instanceID, i, e.Seq)
		}
		if state.published {
			return nil, errors.ReplayInconsistent("instance %s: entry %d after completion published", instanceID, i)
		}
		if i == 0 {
			if e.Type != EntryInstanceCreated {
				return nil, errors.ReplayInconsistent("instance %s: history does not start with %s", instanceID, EntryInstanceCreated)
			}
			if err := json.Unmarshal(e.Payload, &state.event); err != nil {
				return nil, errors.ReplayInconsistent("instance %s: created payload: %v", instanceID, err)
			}
			continue
		}

		switch e.Type {
		case EntryInstanceCreated:
			return nil, errors.ReplayInconsistent("instance %s: duplicate %s at entry %d", instanceID, EntryInstanceCreated, i)

		case EntryStatusChanged:
			state.status = e.Status

		case EntryActivityScheduled:
			if err := state.applyScheduled(e); err != nil {
				return nil, err
			}

		case EntryActivityCompleted:
			if err := state.applyCompleted(e); err != nil {
				return nil, err
			}

		case EntryActivityFailed:
			if err := state.applyFailed(e); err != nil {
				return nil, err
			}

		case EntryCompensationRecorded:
			var log domain.EscalationFailureLog
			if err := json.Unmarshal(e.Payload, &log); err != nil {
				return nil, errors.ReplayInconsistent("instance %s: compensation payload: %v", instanceID, err)
			}
			state.failureLog = &log

		case EntryCompletionPublished:
			state.published = true

		default:
			return nil, errors.ReplayInconsistent("instance %s: unknown entry type %q at entry %d", instanceID, e.Type, i)
		}
	}

	state.nextSeq = len(entries)
	return state, nil
}

func (s *instanceState) applyScheduled(e Entry) error {
	switch e.TaskID {
	case TaskRisk:
		if s.risk != nil || s.branchFailed() {
			return errors.ReplayInconsistent("instance %s: %s scheduled after its outcome", s.id, e.TaskID)
		}
		s.riskScheduled = true
	case TaskAllocation:
		if s.allocation != nil || s.branchFailed() {
			return errors.ReplayInconsistent("instance %s: %s scheduled after its outcome", s.id, e.TaskID)
		}
		s.allocationScheduled = true
	case TaskEscalation:
		if s.escalationSucceeded {
			return errors.ReplayInconsistent("instance %s: escalation scheduled after success", s.id)
		}
		if s.escalationPending {
			return errors.ReplayInconsistent("instance %s: escalation attempt %d scheduled while prior attempt unresolved", s.id, e.Attempt)
		}
		if e.Attempt != len(s.escalationAttempts)+1 {
			return errors.ReplayInconsistent("instance %s: escalation attempt %d scheduled, expected %d", s.id, e.Attempt, len(s.escalationAttempts)+1)
		}
		s.escalationPending = true
	case TaskFailureLog:
		s.compensationScheduled = true
	default:
		return errors.ReplayInconsistent("instance %s: schedule for unknown task %q", s.id, e.TaskID)
	}
	return nil
}

func (s *instanceState) applyCompleted(e Entry) error {
	var out activity.Output
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &out); err != nil {
			return errors.ReplayInconsistent("instance %s: %s outcome payload: %v", s.id, e.TaskID, err)
		}
	}

	switch e.TaskID {
	case TaskRisk:
		if !s.riskScheduled {
			return errors.ReplayInconsistent("instance %s: %s outcome without schedule", s.id, e.TaskID)
		}
		if s.risk != nil {
			return errors.ReplayInconsistent("instance %s: duplicate %s outcome", s.id, e.TaskID)
		}
		if out.Risk == nil {
			return errors.ReplayInconsistent("instance %s: %s outcome missing assessment", s.id, e.TaskID)
		}
		s.risk = out.Risk
	case TaskAllocation:
		if !s.allocationScheduled {
			return errors.ReplayInconsistent("instance %s: %s outcome without schedule", s.id, e.TaskID)
		}
		if s.allocation != nil {
			return errors.ReplayInconsistent("instance %s: duplicate %s outcome", s.id, e.TaskID)
		}
		if out.Allocation == nil {
			return errors.ReplayInconsistent("instance %s: %s outcome missing allocation", s.id, e.TaskID)
		}
		s.allocation = out.Allocation
	case TaskEscalation:
		if !s.escalationPending {
			return errors.ReplayInconsistent("instance %s: escalation outcome without schedule", s.id)
		}
		s.escalationPending = false
		s.escalationSucceeded = true
	case TaskFailureLog:
		if !s.compensationScheduled {
			return errors.ReplayInconsistent("instance %s: %s outcome without schedule", s.id, e.TaskID)
		}
		s.compensationResolved = true
	default:
		return errors.ReplayInconsistent("instance %s: outcome for unknown task %q", s.id, e.TaskID)
	}
	return nil
}

func (s *instanceState) applyFailed(e Entry) error {
	var failure FailurePayload
	if err := json.Unmarshal(e.Payload, &failure); err != nil {
		return errors.ReplayInconsistent("instance %s: %s failure payload: %v", s.id, e.TaskID, err)
	}

	switch e.TaskID {
	case TaskRisk, TaskAllocation:
		// Terminal for the branch: no retry on initial branches.
		if s.branchFailure == nil {
			s.branchFailure = &failure
		}
	case TaskEscalation:
		if !s.escalationPending {
			return errors.ReplayInconsistent("instance %s: escalation failure without schedule", s.id)
		}
		s.escalationPending = false
		s.escalationAttempts = append(s.escalationAttempts, domain.EscalationAttempt{
			Attempt: e.Attempt,
			Code:    failure.Code,
			Error:   failure.Message,
		})
	case TaskFailureLog:
		if !s.compensationScheduled {
			return errors.ReplayInconsistent("instance %s: %s failure without schedule", s.id, e.TaskID)
		}
		// Best-effort: the failure is recorded, the instance still fails.
		s.compensationResolved = true
	default:
		return errors.ReplayInconsistent("instance %s: failure for unknown task %q", s.id, e.TaskID)
	}
	return nil
}

func (s *instanceState) branchFailed() bool {
	// A branch failure is terminal for the whole instance; per-task
	// attribution is not tracked beyond the first failure.
	return s.branchFailure != nil
}

func (s *instanceState) completionEvent() domain.CompletionEvent {
	return domain.CompletionEvent{
		InstanceID: s.id,
		Status:     s.status,
		Risk:       s.risk,
		Allocation: s.allocation,
		FailureLog: s.failureLog,
	}
}

// InstanceView is the externally visible state of an instance, rebuilt from
// its history.
type InstanceView struct {
	ID         string                       `json:"id"`
	Status     domain.InstanceStatus        `json:"status"`
	Event      domain.DisasterEvent         `json:"event"`
	Risk       *domain.RiskAssessment       `json:"risk,omitempty"`
	Allocation *domain.ResourceAllocation   `json:"allocation,omitempty"`
	FailureLog *domain.EscalationFailureLog `json:"failure_log,omitempty"`
	History    []Entry                      `json:"history"`
}

func (s *instanceState) view(entries []Entry) *InstanceView {
	return &InstanceView{
		ID:         s.id,
		Status:     s.status,
		Event:      s.event,
		Risk:       s.risk,
		Allocation: s.allocation,
		FailureLog: s.failureLog,
		History:    entries,
	}
}
