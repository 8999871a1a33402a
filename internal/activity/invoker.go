package activity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"firewatch.io/firewatch/internal/pkg/clock"
	"firewatch.io/firewatch/internal/pkg/errors"
	"firewatch.io/firewatch/internal/pkg/logger"
	"firewatch.io/firewatch/internal/pkg/worker"
)

// Invoker runs executors on the activity pool with an independent deadline
// per invocation. Timeout expiry cancels only that invocation; the sibling
// branch and the instance keep running.
type Invoker struct {
	pool     *worker.Pool
	clk      clock.Clock
	registry *Registry
}

// NewInvoker creates an Invoker dispatching through the given registry.
func NewInvoker(registry *Registry, pool *worker.Pool, clk clock.Clock) *Invoker {
	return &Invoker{registry: registry, pool: pool, clk: clk}
}

type invokeResult struct {
	out Output
	err error
}

// Invoke executes the named activity with the given timeout. A deadline that
// fires before the executor responds maps to a timeout-class error; the
// executor's context is cancelled so it can stop early.
func (iv *Invoker) Invoke(ctx context.Context, name Name, input Input, timeout time.Duration) (Output, error) {
	exec, ok := iv.registry.Lookup(name)
	if !ok {
		return Output{}, errors.Permanent("UNKNOWN_ACTIVITY", fmt.Sprintf("no executor registered for %q", name))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan invokeResult, 1)
	if err := iv.pool.Submit(runCtx, func(taskCtx context.Context) {
		out, execErr := exec.Execute(taskCtx, input)
		done <- invokeResult{out: out, err: execErr}
	}); err != nil {
		return Output{}, errors.Wrap(err, errors.ClassTransient, "POOL_SUBMIT", "activity pool rejected invocation")
	}

	select {
	case res := <-done:
		if res.err != nil {
			return Output{}, fmt.Errorf("activity %s: %w", name, res.err)
		}
		return res.out, nil
	case <-iv.clk.After(timeout):
		cancel()
		logger.Warn("activity invocation timed out",
			zap.String("activity", string(name)),
			zap.Duration("timeout", timeout),
		)
		return Output{}, errors.Timeout("ACTIVITY_TIMEOUT", fmt.Sprintf("activity %s exceeded %s deadline", name, timeout))
	case <-ctx.Done():
		return Output{}, fmt.Errorf("activity %s: %w", name, ctx.Err())
	}
}
