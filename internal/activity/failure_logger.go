package activity

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/pkg/errors"
	"firewatch.io/firewatch/internal/pkg/logger"
)

// FailureLogStore persists escalation failure records.
type FailureLogStore interface {
	Record(ctx context.Context, log domain.EscalationFailureLog) error
}

// MemoryFailureLogStore keeps failure records in memory. Suitable for tests
// and single-process deployments; a durable sink is a drop-in replacement.
type MemoryFailureLogStore struct {
	mu   sync.Mutex
	logs []domain.EscalationFailureLog
}

// NewMemoryFailureLogStore creates an empty in-memory store.
func NewMemoryFailureLogStore() *MemoryFailureLogStore {
	return &MemoryFailureLogStore{}
}

// Record implements FailureLogStore.
func (s *MemoryFailureLogStore) Record(ctx context.Context, log domain.EscalationFailureLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

// All returns a copy of the recorded logs.
func (s *MemoryFailureLogStore) All() []domain.EscalationFailureLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EscalationFailureLog, len(s.logs))
	copy(out, s.logs)
	return out
}

// RecordFailureLogger writes the escalation failure record when the retry
// budget is exhausted. Invoked as the compensation step; the engine treats
// its own failure as best-effort.
type RecordFailureLogger struct {
	store FailureLogStore
}

// NewFailureLogger creates the failure-logging executor.
func NewFailureLogger(store FailureLogStore) *RecordFailureLogger {
	return &RecordFailureLogger{store: store}
}

// Name implements Executor.
func (*RecordFailureLogger) Name() Name { return FailureLogger }

// Execute persists the failure log.
func (l *RecordFailureLogger) Execute(ctx context.Context, input Input) (Output, error) {
	if input.FailureLog == nil {
		return Output{}, errors.Permanent("MISSING_FAILURE_LOG", "failure logging requires the attempt history")
	}

	if err := l.store.Record(ctx, *input.FailureLog); err != nil {
		return Output{}, fmt.Errorf("record escalation failure for event %s: %w", input.Event.ID, err)
	}

	logger.Error("escalation exhausted, failure recorded",
		zap.String("event_id", input.Event.ID),
		zap.String("location", input.Event.Location),
		zap.String("cause", input.FailureLog.Cause),
		zap.Int("attempts", len(input.FailureLog.Attempts)),
	)
	return Output{}, nil
}

var _ Executor = (*RecordFailureLogger)(nil)
