// Package activity defines the closed set of activity executors the
// orchestration engine can schedule, the registry that dispatches to them,
// and the invocation primitives (timeout enforcement, retry policy).
//
// Executors are stateless and idempotent: given the same input they produce
// the same observable outcome, which is what makes history replay and
// at-least-once invocation safe. They never mutate orchestration state.
package activity

import (
	"context"
	"fmt"

	"firewatch.io/firewatch/internal/domain"
)

// Name identifies an executor. The set is closed: dispatch goes through a
// lookup table built at startup, never by free-form string.
type Name string

const (
	RiskAnalyzer      Name = "risk_analyzer"
	ResourceAllocator Name = "resource_allocator"
	Escalator         Name = "escalator"
	FailureLogger     Name = "failure_logger"
)

// Input is the payload handed to an executor. Fields beyond Event are set
// only for the executors that consume them.
type Input struct {
	Event domain.DisasterEvent `json:"event"`

	// Risk is set for the escalator.
	Risk *domain.RiskAssessment `json:"risk,omitempty"`

	// FailureLog is set for the failure logger.
	FailureLog *domain.EscalationFailureLog `json:"failure_log,omitempty"`
}

// Output is the result produced by an executor. Exactly one field is set,
// matching the executor's fixed output shape.
type Output struct {
	Risk       *domain.RiskAssessment     `json:"risk,omitempty"`
	Allocation *domain.ResourceAllocation `json:"allocation,omitempty"`
}

// Executor is one unit of work schedulable by the engine.
type Executor interface {
	// Name returns the executor's identity in the closed set.
	Name() Name

	// Execute performs the work. It must be idempotent for the same input
	// and must respect ctx cancellation at blocking points.
	Execute(ctx context.Context, input Input) (Output, error)
}

// Registry is the dispatch table from Name to Executor, built once at
// startup.
type Registry struct {
	executors map[Name]Executor
}

// NewRegistry builds a registry. Requires each of the four executors exactly
// once.
func NewRegistry(executors ...Executor) (*Registry, error) {
	table := make(map[Name]Executor, len(executors))
	for _, exec := range executors {
		name := exec.Name()
		if _, dup := table[name]; dup {
			return nil, fmt.Errorf("duplicate executor registered for %q", name)
		}
		table[name] = exec
	}
	for _, required := range []Name{RiskAnalyzer, ResourceAllocator, Escalator, FailureLogger} {
		if _, ok := table[required]; !ok {
			return nil, fmt.Errorf("missing executor for %q", required)
		}
	}
	return &Registry{executors: table}, nil
}

// Lookup returns the executor for a name.
func (r *Registry) Lookup(name Name) (Executor, bool) {
	exec, ok := r.executors[name]
	return exec, ok
}
