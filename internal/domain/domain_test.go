package domain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firewatch.io/firewatch/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestDisasterEvent_ToJSON(t *testing.T) {
	event := DisasterEvent{
		ID:         "evt-1",
		Location:   "us-east",
		Severity:   9,
		ReportedAt: time.Date(2026, 2, 14, 3, 0, 0, 0, time.UTC),
	}

	data, err := event.ToJSON()
	require.NoError(t, err)

	var decoded DisasterEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event, decoded)
}

func TestInstanceStatus_Terminal(t *testing.T) {
	tests := []struct {
		status InstanceStatus
		want   bool
	}{
		{StatusCreated, false},
		{StatusRunning, false},
		{StatusAggregating, false},
		{StatusEscalating, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Terminal(), "status %s", tt.status)
	}
}

func TestCompletionDispatcher_Dispatch(t *testing.T) {
	d := NewCompletionDispatcher()

	var seen []string
	d.Register(StatusCompleted, func(ctx context.Context, e *CompletionEvent) error {
		seen = append(seen, "first:"+e.InstanceID)
		return nil
	})
	d.Register(StatusCompleted, func(ctx context.Context, e *CompletionEvent) error {
		seen = append(seen, "second:"+e.InstanceID)
		return nil
	})

	err := d.Dispatch(context.Background(), &CompletionEvent{
		InstanceID: "inst-1",
		Status:     StatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first:inst-1", "second:inst-1"}, seen)
}

func TestCompletionDispatcher_BestEffort(t *testing.T) {
	d := NewCompletionDispatcher()

	boom := errors.New("sink unavailable")
	var secondRan bool
	d.Register(StatusFailed, func(ctx context.Context, e *CompletionEvent) error {
		return boom
	})
	d.Register(StatusFailed, func(ctx context.Context, e *CompletionEvent) error {
		secondRan = true
		return nil
	})

	err := d.Dispatch(context.Background(), &CompletionEvent{
		InstanceID: "inst-2",
		Status:     StatusFailed,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, secondRan, "later handlers must still run after a failure")
}

func TestCompletionDispatcher_NoHandlers(t *testing.T) {
	d := NewCompletionDispatcher()

	err := d.Dispatch(context.Background(), &CompletionEvent{
		InstanceID: "inst-3",
		Status:     StatusCompleted,
	})
	assert.NoError(t, err)
}
