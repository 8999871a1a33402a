package domain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"firewatch.io/firewatch/internal/pkg/logger"
)

// CompletionHandler processes a completion event.
type CompletionHandler func(ctx context.Context, event *CompletionEvent) error

// CompletionDispatcher routes completion events to registered handlers.
// This is the downstream publisher collaborator: the engine hands it one
// event per instance; delivery to handlers is best-effort.
type CompletionDispatcher struct {
	handlers map[InstanceStatus][]CompletionHandler
	mu       sync.RWMutex
}

// NewCompletionDispatcher creates a new CompletionDispatcher.
func NewCompletionDispatcher() *CompletionDispatcher {
	return &CompletionDispatcher{
		handlers: make(map[InstanceStatus][]CompletionHandler),
	}
}

// Register registers a handler for a terminal status.
func (d *CompletionDispatcher) Register(status InstanceStatus, handler CompletionHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[status] = append(d.handlers[status], handler)
}

// Dispatch delivers an event to all handlers registered for its status.
// Handlers are called sequentially. If any handler fails, the error is
// logged but remaining handlers still execute (best-effort delivery).
func (d *CompletionDispatcher) Dispatch(ctx context.Context, event *CompletionEvent) error {
	d.mu.RLock()
	handlers := d.handlers[event.Status]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Warn("No handlers registered for completion status",
			zap.String("status", string(event.Status)),
			zap.String("instance_id", event.InstanceID),
		)
		return nil
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("Completion handler failed",
				zap.String("status", string(event.Status)),
				zap.String("instance_id", event.InstanceID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", event.Status, err)
			}
		}
	}

	return firstErr
}
