package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"firewatch.io/firewatch/internal/pkg/logger"
)

// Start resumes the orchestration instances left unfinished by the previous
// process. Each resumed instance replays its history: recorded outcomes are
// never re-invoked.
func (a *Application) Start(ctx context.Context) error {
	n, err := a.Engine.ResumeIncomplete(ctx)
	if err != nil {
		return fmt.Errorf("resume incomplete instances: %w", err)
	}
	if n > 0 {
		logger.Info("resuming unfinished orchestration instances", zap.Int("count", n))
	}
	return nil
}

// Shutdown gracefully shuts down all application components.
func (a *Application) Shutdown() {
	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	// Sync to stderr fails on some platforms; nothing to do about it.
	_ = logger.Sync()
}
