// Package notification implements responder notification delivery.
//
// V1 delivers in-process to the structured log and any registered fan-out
// targets; external push channels (SMS, paging, webhook) are downstream
// collaborators behind the same interface.
package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"firewatch.io/firewatch/internal/pkg/logger"
)

// Channel constants for notification routing.
const (
	ChannelResponders = "RESPONDERS"
	ChannelOperations = "OPERATIONS"
)

// Params holds the required fields for sending a notification.
type Params struct {
	Channel      string // One of Channel* constants above
	Title        string // Human-readable title
	Message      string // Body text
	ResourceType string // e.g. "disaster_event", "orchestration_instance"
	ResourceID   string // ID of the related resource
}

// Sender defines the interface for delivering notifications.
type Sender interface {
	// Send delivers a single notification.
	Send(ctx context.Context, params Params) error
}

// LogSender is the V1 implementation that records notifications to the
// structured log synchronously within the caller's context.
type LogSender struct{}

// NewLogSender creates a new log-backed sender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send records a single notification.
func (s *LogSender) Send(ctx context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}

	logger.Info("notification sent",
		zap.String("channel", params.Channel),
		zap.String("title", params.Title),
		zap.String("message", params.Message),
		zap.String("resource_type", params.ResourceType),
		zap.String("resource_id", params.ResourceID),
	)
	return nil
}

// compile-time check
var _ Sender = (*LogSender)(nil)

func validateParams(p Params) error {
	if p.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}
