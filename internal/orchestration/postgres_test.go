package orchestration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firewatch.io/firewatch/internal/activity"
	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/testutil"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	pool := testutil.OpenPGXPool(t, "orchestration_history")
	store, err := NewPostgresStore(context.Background(), pool)
	require.NoError(t, err)
	return store
}

func TestPostgresStoreAppendLoad(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	risk := &domain.RiskAssessment{RiskLevel: 6, Rationale: "elevated"}
	entries := seq(t,
		createdEntry(t, testEvent()),
		newStatusEntry(domain.StatusRunning),
		newScheduledEntry(TaskRisk, activity.RiskAnalyzer, 1),
		completedEntry(t, TaskRisk, activity.RiskAnalyzer, 1, activity.Output{Risk: risk}),
	)
	for _, e := range entries {
		require.NoError(t, store.Append(ctx, "inst-pg", e))
	}

	loaded, err := store.Load(ctx, "inst-pg")
	require.NoError(t, err)
	require.Len(t, loaded, len(entries))
	for i, e := range loaded {
		assert.Equal(t, i, e.Seq)
		assert.Equal(t, entries[i].Type, e.Type)
		assert.Equal(t, entries[i].TaskID, e.TaskID)
	}

	// The loaded history projects to the same state the writer had.
	state, err := project("inst-pg", loaded)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, state.status)
	require.NotNil(t, state.risk)
	assert.Equal(t, 6, state.risk.RiskLevel)
}

func TestPostgresStoreSequenceConflict(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "inst-pg", Entry{Seq: 0, Type: EntryInstanceCreated, Payload: mustJSON(t, testEvent())}))

	err := store.Append(ctx, "inst-pg", Entry{Seq: 0, Type: EntryStatusChanged, Status: domain.StatusRunning})
	assert.ErrorIs(t, err, ErrSequenceConflict)
}

func TestPostgresStoreLoadUnknownInstance(t *testing.T) {
	store := newPostgresStore(t)

	_, err := store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestPostgresStoreListIncomplete(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "open", Entry{Seq: 0, Type: EntryInstanceCreated, Payload: mustJSON(t, testEvent())}))

	require.NoError(t, store.Append(ctx, "done", Entry{Seq: 0, Type: EntryInstanceCreated, Payload: mustJSON(t, testEvent())}))
	published := publishedEntry(t, domain.CompletionEvent{InstanceID: "done", Status: domain.StatusCompleted})
	published.Seq = 1
	require.NoError(t, store.Append(ctx, "done", published))

	ids, err := store.ListIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"open"}, ids)
}

func TestPostgresStoreLeaseExclusive(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	release, err := store.AcquireLease(ctx, "inst-pg")
	require.NoError(t, err)

	_, err = store.AcquireLease(ctx, "inst-pg")
	assert.ErrorIs(t, err, ErrLeaseHeld)

	release()
	release() // idempotent

	release2, err := store.AcquireLease(ctx, "inst-pg")
	require.NoError(t, err)
	release2()
}
