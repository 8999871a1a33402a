package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/notification"
	"firewatch.io/firewatch/internal/pkg/errors"
)

func event(location string, severity int) domain.DisasterEvent {
	return domain.DisasterEvent{
		ID:         "evt-test",
		Location:   location,
		Severity:   severity,
		ReportedAt: time.Date(2026, 2, 14, 3, 0, 0, 0, time.UTC),
	}
}

func TestRiskAnalyzer_Compute(t *testing.T) {
	analyzer := NewRiskAnalyzer(nil)

	tests := []struct {
		name     string
		severity int
		want     int
	}{
		{"high severity passes through", 9, 9},
		{"low severity gets uplift", 2, 3},
		{"boundary severity no uplift", 5, 5},
		{"max severity clamps", 10, 10},
		{"zero severity uplifts to one", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := analyzer.Execute(context.Background(), Input{Event: event("X", tt.severity)})
			require.NoError(t, err)
			require.NotNil(t, out.Risk)
			assert.Equal(t, tt.want, out.Risk.RiskLevel)
			assert.NotEmpty(t, out.Risk.Rationale)
		})
	}
}

func TestRiskAnalyzer_ExposureFactor(t *testing.T) {
	analyzer := NewRiskAnalyzer(map[string]int{"coastal-basin": 2})

	out, err := analyzer.Execute(context.Background(), Input{Event: event("coastal-basin", 6)})
	require.NoError(t, err)
	assert.Equal(t, 8, out.Risk.RiskLevel)

	// Clamped at the top of the scale.
	out, err = analyzer.Execute(context.Background(), Input{Event: event("coastal-basin", 9)})
	require.NoError(t, err)
	assert.Equal(t, 10, out.Risk.RiskLevel)
}

func TestRiskAnalyzer_InvalidSeverity(t *testing.T) {
	analyzer := NewRiskAnalyzer(nil)

	for _, severity := range []int{-1, 11} {
		_, err := analyzer.Execute(context.Background(), Input{Event: event("X", severity)})
		require.Error(t, err)
		assert.Equal(t, errors.ClassPermanent, errors.ClassOf(err))
	}
}

func TestResourceAllocator_ProportionalShare(t *testing.T) {
	allocator := NewResourceAllocator(staticAvailability{units: map[string]int{
		"ambulance": 10,
		"crew":      4,
		"helicopter": 0,
	}})

	out, err := allocator.Execute(context.Background(), Input{Event: event("us-east", 5)})
	require.NoError(t, err)
	require.NotNil(t, out.Allocation)

	assert.Equal(t, "us-east", out.Allocation.Region)
	assert.Equal(t, 5, out.Allocation.Resources["ambulance"])
	assert.Equal(t, 2, out.Allocation.Resources["crew"])
	_, hasHelicopter := out.Allocation.Resources["helicopter"]
	assert.False(t, hasHelicopter, "exhausted unit types are skipped")
}

func TestResourceAllocator_MinimumOneUnit(t *testing.T) {
	allocator := NewResourceAllocator(staticAvailability{units: map[string]int{"crew": 3}})

	out, err := allocator.Execute(context.Background(), Input{Event: event("us-east", 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Allocation.Resources["crew"])
}

func TestResourceAllocator_UpstreamError(t *testing.T) {
	allocator := NewResourceAllocator(staticAvailability{err: errors.Transient("UPSTREAM_DOWN", "lookup refused")})

	_, err := allocator.Execute(context.Background(), Input{Event: event("us-east", 5)})
	require.Error(t, err)
	assert.Equal(t, errors.ClassTransient, errors.ClassOf(err))
}

func TestEscalator_Success(t *testing.T) {
	escalator := NewEscalator(notification.NewLogSender())

	out, err := escalator.Execute(context.Background(), Input{
		Event: event("X", 9),
		Risk:  &domain.RiskAssessment{RiskLevel: 9, Rationale: "reported severity 9"},
	})
	require.NoError(t, err)
	assert.Nil(t, out.Risk)
	assert.Nil(t, out.Allocation)
}

func TestEscalator_MissingRisk(t *testing.T) {
	escalator := NewEscalator(notification.NewLogSender())

	_, err := escalator.Execute(context.Background(), Input{Event: event("X", 9)})
	require.Error(t, err)
	assert.Equal(t, errors.ClassPermanent, errors.ClassOf(err))
}

type failingSender struct{}

func (failingSender) Send(ctx context.Context, p notification.Params) error {
	return errors.Transient("PAGING_DOWN", "paging gateway unreachable")
}

func TestEscalator_DeliveryFailureIsTransient(t *testing.T) {
	escalator := NewEscalator(failingSender{})

	_, err := escalator.Execute(context.Background(), Input{
		Event: event("X", 9),
		Risk:  &domain.RiskAssessment{RiskLevel: 9},
	})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, "RESPONDER_NOTIFY_FAILED", errors.CodeOf(err))
}

func TestFailureLogger_Record(t *testing.T) {
	store := NewMemoryFailureLogStore()
	flog := NewFailureLogger(store)

	record := &domain.EscalationFailureLog{
		Cause: "escalation retries exhausted",
		Event: event("X", 9),
		Attempts: []domain.EscalationAttempt{
			{Attempt: 1, Code: "RESPONDER_NOTIFY_FAILED", Error: "paging gateway unreachable"},
			{Attempt: 2, Code: "RESPONDER_NOTIFY_FAILED", Error: "paging gateway unreachable"},
			{Attempt: 3, Code: "RESPONDER_NOTIFY_FAILED", Error: "paging gateway unreachable"},
		},
	}

	_, err := flog.Execute(context.Background(), Input{Event: event("X", 9), FailureLog: record})
	require.NoError(t, err)

	logs := store.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "escalation retries exhausted", logs[0].Cause)
	assert.Len(t, logs[0].Attempts, 3)
}

func TestFailureLogger_MissingLog(t *testing.T) {
	flog := NewFailureLogger(NewMemoryFailureLogStore())

	_, err := flog.Execute(context.Background(), Input{Event: event("X", 9)})
	require.Error(t, err)
	assert.Equal(t, errors.ClassPermanent, errors.ClassOf(err))
}
