package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"firewatch.io/firewatch/internal/activity"
	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/pkg/clock"
	apperrors "firewatch.io/firewatch/internal/pkg/errors"
	"firewatch.io/firewatch/internal/pkg/logger"
	"firewatch.io/firewatch/internal/pkg/worker"
)

// Publisher receives exactly one completion event per instance.
type Publisher interface {
	Dispatch(ctx context.Context, event *domain.CompletionEvent) error
}

// Config holds the engine's decision parameters. Durations are real time,
// with the configured time-unit duration already applied.
type Config struct {
	// RiskThreshold gates escalation: escalate iff risk level exceeds it.
	RiskThreshold int

	// ActivityTimeout is the independent deadline per activity invocation.
	ActivityTimeout time.Duration

	// Escalation bounds escalation retries.
	Escalation activity.RetryPolicy
}

// DefaultConfig mirrors the reference parameters: threshold 8, 5-unit
// activity timeout, 3 escalation attempts starting at a 5-unit interval,
// with one time-unit = 1s.
func DefaultConfig() Config {
	return Config{
		RiskThreshold:   8,
		ActivityTimeout: 5 * time.Second,
		Escalation: activity.RetryPolicy{
			FirstInterval: 5 * time.Second,
			MaxAttempts:   3,
		},
	}
}

// Engine drives orchestration instances. Instances run independently and
// concurrently on the worker pools; the only cross-instance shared state is
// the history store and the availability cache.
type Engine struct {
	store     HistoryStore
	invoker   *activity.Invoker
	pools     *worker.Pools
	publisher Publisher
	clk       clock.Clock
	cfg       Config
}

// New creates an Engine.
func New(store HistoryStore, invoker *activity.Invoker, pools *worker.Pools, publisher Publisher, clk clock.Clock, cfg Config) *Engine {
	return &Engine{
		store:     store,
		invoker:   invoker,
		pools:     pools,
		publisher: publisher,
		clk:       clk,
		cfg:       cfg,
	}
}

// Start creates an instance for the event and returns its id immediately.
// The instance is durably recorded before Start returns; execution proceeds
// asynchronously on the general pool.
func (e *Engine) Start(ctx context.Context, event domain.DisasterEvent) (string, error) {
	if event.Severity < domain.SeverityMin || event.Severity > domain.SeverityMax {
		return "", apperrors.Permanent("SEVERITY_OUT_OF_RANGE",
			fmt.Sprintf("severity %d outside [%d,%d]", event.Severity, domain.SeverityMin, domain.SeverityMax))
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	instanceID := uuid.NewString()
	rec := newRecorder(e.store, instanceID, e.clk, 0)

	created, err := newCreatedEntry(event)
	if err != nil {
		return "", fmt.Errorf("encode disaster event: %w", err)
	}
	if err := rec.append(ctx, created); err != nil {
		return "", fmt.Errorf("record instance creation: %w", err)
	}
	if err := rec.append(ctx, newStatusEntry(domain.StatusRunning)); err != nil {
		return "", fmt.Errorf("record running transition: %w", err)
	}

	logger.Info("orchestration instance started",
		zap.String("instance_id", instanceID),
		zap.String("event_id", event.ID),
		zap.String("location", event.Location),
		zap.Int("severity", event.Severity),
	)

	if err := e.pools.SubmitDetached("general", func(runCtx context.Context) {
		if runErr := e.runInstance(runCtx, instanceID); runErr != nil {
			logger.Error("orchestration instance run failed",
				zap.String("instance_id", instanceID),
				zap.Error(runErr),
			)
		}
	}); err != nil {
		// The instance is durably recorded; it will be picked up by
		// ResumeIncomplete on the next start.
		logger.Warn("instance execution deferred to resume",
			zap.String("instance_id", instanceID),
			zap.Error(err),
		)
	}

	return instanceID, nil
}

// Resume drives a single instance to its next stopping point synchronously.
func (e *Engine) Resume(ctx context.Context, instanceID string) error {
	return e.runInstance(ctx, instanceID)
}

// ResumeIncomplete schedules every unfinished instance for replay. Called on
// process start. Returns the number of instances scheduled.
func (e *Engine) ResumeIncomplete(ctx context.Context) (int, error) {
	ids, err := e.store.ListIncomplete(ctx)
	if err != nil {
		return 0, fmt.Errorf("list incomplete instances: %w", err)
	}
	for _, id := range ids {
		instanceID := id
		if err := e.pools.SubmitDetached("general", func(runCtx context.Context) {
			if runErr := e.runInstance(runCtx, instanceID); runErr != nil {
				logger.Error("instance resume failed",
					zap.String("instance_id", instanceID),
					zap.Error(runErr),
				)
			}
		}); err != nil {
			return 0, fmt.Errorf("schedule resume for instance %s: %w", instanceID, err)
		}
	}
	return len(ids), nil
}

// GetInstance rebuilds the externally visible instance state from history.
func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*InstanceView, error) {
	entries, err := e.store.Load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	state, err := project(instanceID, entries)
	if err != nil {
		return nil, err
	}
	return state.view(entries), nil
}

// runInstance replays the instance's history and drives it forward until it
// reaches a terminal state, the context is cancelled, or ownership is lost.
func (e *Engine) runInstance(ctx context.Context, instanceID string) error {
	release, err := e.store.AcquireLease(ctx, instanceID)
	if err != nil {
		if err == ErrLeaseHeld {
			logger.Debug("instance already owned, skipping",
				zap.String("instance_id", instanceID),
			)
			return nil
		}
		return fmt.Errorf("acquire lease for instance %s: %w", instanceID, err)
	}
	defer release()

	entries, err := e.store.Load(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("load history for instance %s: %w", instanceID, err)
	}
	state, err := project(instanceID, entries)
	if err != nil {
		// Replay inconsistency: surface for operator intervention, never
		// auto-resume in an ambiguous state.
		return err
	}
	if state.published {
		return nil
	}

	rec := newRecorder(e.store, instanceID, e.clk, state.nextSeq)

	// Terminal state already recorded: only the completion publish is
	// outstanding.
	if state.status.Terminal() {
		return e.publish(ctx, rec, state)
	}

	if state.status == domain.StatusCreated {
		if err := rec.append(ctx, newStatusEntry(domain.StatusRunning)); err != nil {
			return err
		}
		state.status = domain.StatusRunning
	}

	if err := e.runBranches(ctx, rec, state); err != nil {
		return err
	}

	if state.branchFailure != nil {
		return e.failInstance(ctx, rec, state, *state.branchFailure)
	}

	if state.status == domain.StatusRunning {
		if err := rec.append(ctx, newStatusEntry(domain.StatusAggregating)); err != nil {
			return err
		}
		state.status = domain.StatusAggregating
	}

	if state.risk.RiskLevel <= e.cfg.RiskThreshold && state.status == domain.StatusAggregating {
		return e.completeInstance(ctx, rec, state)
	}

	if state.status == domain.StatusAggregating {
		if err := rec.append(ctx, newStatusEntry(domain.StatusEscalating)); err != nil {
			return err
		}
		state.status = domain.StatusEscalating
	}

	return e.runEscalation(ctx, rec, state)
}

type branchOutcome struct {
	taskID    string
	out       activity.Output
	invokeErr error
	recordErr error
}

// runBranches fans out the unresolved initial activities and joins on both.
// Outcomes are recorded before the join observes them, in whichever order
// the branches finish. Branch wrappers run as goroutines owned by this
// instance run, not on the general pool: the instance itself holds a general
// worker while blocked at the join, so contending branch work against those
// slots would wedge every instance once running instances saturate the pool.
// The executor bodies still run on the bounded activity pool via the invoker.
func (e *Engine) runBranches(ctx context.Context, rec *recorder, state *instanceState) error {
	type branch struct {
		taskID    string
		name      activity.Name
		scheduled bool
	}

	var pendingBranches []branch
	if state.risk == nil && state.branchFailure == nil {
		pendingBranches = append(pendingBranches, branch{TaskRisk, activity.RiskAnalyzer, state.riskScheduled})
	}
	if state.allocation == nil && state.branchFailure == nil {
		pendingBranches = append(pendingBranches, branch{TaskAllocation, activity.ResourceAllocator, state.allocationScheduled})
	}
	if len(pendingBranches) == 0 {
		return nil
	}

	// Record the scheduling decisions before issuing the invocations.
	// Already-scheduled branches (crash between schedule and outcome) are
	// re-invoked without a duplicate schedule entry.
	for _, b := range pendingBranches {
		if b.scheduled {
			continue
		}
		if err := rec.append(ctx, newScheduledEntry(b.taskID, b.name, 1)); err != nil {
			return err
		}
	}

	input := activity.Input{Event: state.event}
	results := make(chan branchOutcome, len(pendingBranches))
	for _, b := range pendingBranches {
		b := b
		go func() {
			out, invokeErr := e.invoker.Invoke(ctx, b.name, input, e.cfg.ActivityTimeout)

			var entry Entry
			var encErr error
			if invokeErr != nil {
				entry, encErr = newFailedEntry(b.taskID, b.name, 1, invokeErr)
			} else {
				entry, encErr = newCompletedEntry(b.taskID, b.name, 1, out)
			}
			recordErr := encErr
			if recordErr == nil {
				recordErr = rec.append(ctx, entry)
			}
			results <- branchOutcome{taskID: b.taskID, out: out, invokeErr: invokeErr, recordErr: recordErr}
		}()
	}

	// Fan-in join: proceed only after every branch has resolved.
	for range pendingBranches {
		select {
		case res := <-results:
			if res.recordErr != nil {
				return fmt.Errorf("record outcome for %s: %w", res.taskID, res.recordErr)
			}
			switch {
			case res.invokeErr != nil:
				failure := failurePayloadFrom(res.invokeErr)
				if state.branchFailure == nil {
					state.branchFailure = &failure
				}
			case res.taskID == TaskRisk:
				state.risk = res.out.Risk
			case res.taskID == TaskAllocation:
				state.allocation = res.out.Allocation
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// runEscalation drives the bounded retry loop, then compensation on
// exhaustion. Recorded attempts from a previous run count against the
// budget; a recorded schedule with no outcome is re-invoked as that attempt.
func (e *Engine) runEscalation(ctx context.Context, rec *recorder, state *instanceState) error {
	input := activity.Input{Event: state.event, Risk: state.risk}
	policy := e.cfg.Escalation

	resumePending := state.escalationPending
	var lastErr error

	for !state.escalationSucceeded {
		attempts := len(state.escalationAttempts)
		if !resumePending && policy.Exhausted(attempts) {
			break
		}
		attemptNo := attempts + 1

		if !resumePending {
			if backoff := policy.Backoff(attemptNo); backoff > 0 {
				select {
				case <-e.clk.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := rec.append(ctx, newScheduledEntry(TaskEscalation, activity.Escalator, attemptNo)); err != nil {
				return err
			}
		}
		resumePending = false

		out, invokeErr := e.invoker.Invoke(ctx, activity.Escalator, input, e.cfg.ActivityTimeout)
		if invokeErr == nil {
			entry, err := newCompletedEntry(TaskEscalation, activity.Escalator, attemptNo, out)
			if err != nil {
				return err
			}
			if err := rec.append(ctx, entry); err != nil {
				return err
			}
			state.escalationSucceeded = true
			break
		}

		lastErr = invokeErr
		entry, err := newFailedEntry(TaskEscalation, activity.Escalator, attemptNo, invokeErr)
		if err != nil {
			return err
		}
		if err := rec.append(ctx, entry); err != nil {
			return err
		}
		state.escalationAttempts = append(state.escalationAttempts, domain.EscalationAttempt{
			Attempt: attemptNo,
			Code:    apperrors.CodeOf(invokeErr),
			Error:   invokeErr.Error(),
		})

		logger.Warn("escalation attempt failed",
			zap.String("instance_id", state.id),
			zap.Int("attempt", attemptNo),
			zap.Error(invokeErr),
		)

		if !apperrors.IsRetryable(invokeErr) {
			// Permanent failure spends the remaining budget immediately.
			break
		}
	}

	if state.escalationSucceeded {
		return e.completeInstance(ctx, rec, state)
	}

	return e.compensate(ctx, rec, state, lastErr)
}

// compensate invokes failure logging with the full attempt history, records
// the compensation, and fails the instance. Failure logging is best-effort:
// its own failure is recorded but never retried.
func (e *Engine) compensate(ctx context.Context, rec *recorder, state *instanceState, cause error) error {
	causeMsg := "escalation retries exhausted"
	if cause != nil {
		causeMsg = fmt.Sprintf("escalation retries exhausted: %v", cause)
	}
	failureLog := domain.EscalationFailureLog{
		Cause:    causeMsg,
		Event:    state.event,
		Attempts: state.escalationAttempts,
	}

	if !state.compensationResolved {
		if !state.compensationScheduled {
			if err := rec.append(ctx, newScheduledEntry(TaskFailureLog, activity.FailureLogger, 1)); err != nil {
				return err
			}
		}

		input := activity.Input{Event: state.event, FailureLog: &failureLog}
		out, invokeErr := e.invoker.Invoke(ctx, activity.FailureLogger, input, e.cfg.ActivityTimeout)

		var entry Entry
		var encErr error
		if invokeErr != nil {
			logger.Error("failure logging failed, continuing to terminal state",
				zap.String("instance_id", state.id),
				zap.Error(invokeErr),
			)
			entry, encErr = newFailedEntry(TaskFailureLog, activity.FailureLogger, 1, invokeErr)
		} else {
			entry, encErr = newCompletedEntry(TaskFailureLog, activity.FailureLogger, 1, out)
		}
		if encErr != nil {
			return encErr
		}
		if err := rec.append(ctx, entry); err != nil {
			return err
		}
	}

	if state.failureLog == nil {
		compEntry, err := newCompensationEntry(failureLog)
		if err != nil {
			return err
		}
		if err := rec.append(ctx, compEntry); err != nil {
			return err
		}
		state.failureLog = &failureLog
	}

	exhausted := FailurePayload{
		Code:    "ESCALATION_EXHAUSTED",
		Class:   apperrors.ClassPermanent,
		Message: causeMsg,
	}
	return e.failInstance(ctx, rec, state, exhausted)
}

func (e *Engine) completeInstance(ctx context.Context, rec *recorder, state *instanceState) error {
	// A resumed instance may have recorded the terminal transition already
	// and crashed before publishing.
	if state.status != domain.StatusCompleted {
		if err := rec.append(ctx, newStatusEntry(domain.StatusCompleted)); err != nil {
			return err
		}
		state.status = domain.StatusCompleted
	}
	return e.publish(ctx, rec, state)
}

func (e *Engine) failInstance(ctx context.Context, rec *recorder, state *instanceState, failure FailurePayload) error {
	if state.status != domain.StatusFailed {
		entry, err := newFailedStatusEntry(failure)
		if err != nil {
			return err
		}
		if err := rec.append(ctx, entry); err != nil {
			return err
		}
		state.status = domain.StatusFailed
	}

	logger.Warn("orchestration instance failed",
		zap.String("instance_id", state.id),
		zap.String("code", failure.Code),
		zap.String("message", failure.Message),
	)
	return e.publish(ctx, rec, state)
}

// publish records the completion before dispatching it, so a replayed
// instance never dispatches twice: if the publish entry is already in the
// history the instance is done, and if the append loses a race the other
// writer owns the dispatch.
func (e *Engine) publish(ctx context.Context, rec *recorder, state *instanceState) error {
	completion := state.completionEvent()
	entry, err := newPublishedEntry(completion)
	if err != nil {
		return err
	}
	if err := rec.append(ctx, entry); err != nil {
		return fmt.Errorf("record completion publish: %w", err)
	}
	state.published = true

	if err := e.publisher.Dispatch(ctx, &completion); err != nil {
		// Best-effort delivery; the completion is durably recorded.
		logger.Error("completion dispatch failed",
			zap.String("instance_id", state.id),
			zap.Error(err),
		)
	}

	logger.Info("orchestration instance finished",
		zap.String("instance_id", state.id),
		zap.String("status", string(state.status)),
	)
	return nil
}

// recorder serializes appends for one instance run and assigns sequence
// numbers. Branch goroutines share it, so the join point observes a totally
// ordered history.
type recorder struct {
	store      HistoryStore
	instanceID string
	clk        clock.Clock

	mu      sync.Mutex
	nextSeq int
}

func newRecorder(store HistoryStore, instanceID string, clk clock.Clock, nextSeq int) *recorder {
	return &recorder{store: store, instanceID: instanceID, clk: clk, nextSeq: nextSeq}
}

func (r *recorder) append(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.Seq = r.nextSeq
	entry.RecordedAt = r.clk.Now()
	if err := r.store.Append(ctx, r.instanceID, entry); err != nil {
		return err
	}
	r.nextSeq++
	return nil
}
