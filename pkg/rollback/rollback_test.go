package rollback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/checkpoint"
	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/collab/kv"
)

func newTestRollbackManager(t *testing.T) *Manager {
	t.Helper()
	store, err := kv.OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := collab.NewInProcessBus()
	cpMgr := checkpoint.NewManager(checkpoint.Config{Enabled: true}, checkpoint.NewStorage(store), bus)
	m := NewManager("sess-1", cpMgr, nil, bus)
	m.minDelay = 0
	return m
}

func TestWithRollback_SuccessSkipsRestore(t *testing.T) {
	m := newTestRollbackManager(t)
	outcome, err := m.WithRollback(context.Background(), func(context.Context) error { return nil }, TriggerManual, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
}

func TestWithRollback_FailureRestoresAndDecrementsBudget(t *testing.T) {
	m := newTestRollbackManager(t)
	opErrWant := errors.New("boom")

	outcome, opErr := m.WithRollback(context.Background(), func(context.Context) error { return opErrWant }, TriggerManual, nil)
	assert.Equal(t, opErrWant, opErr)
	assert.Equal(t, defaultMaxRetries-1, outcome.RetryBudgetLeft)
}

func TestWithRollback_ExhaustsRetryBudget(t *testing.T) {
	m := newTestRollbackManager(t)
	failingOp := func(context.Context) error { return errors.New("fail") }

	for i := 0; i < defaultMaxRetries; i++ {
		_, _ = m.WithRollback(context.Background(), failingOp, TriggerManual, nil)
	}
	outcome, _ := m.WithRollback(context.Background(), failingOp, TriggerManual, nil)
	assert.False(t, outcome.Success)
	assert.ErrorIs(t, outcome.Err, errRetryBudgetExhausted)
}

func TestHandleTestFailure_SkipsWhenFailureRateLow(t *testing.T) {
	m := newTestRollbackManager(t)
	_, rolledBack := m.HandleTestFailure(context.Background(), TestResult{Total: 10, Failed: 2})
	assert.False(t, rolledBack)
}

func TestHandleTestFailure_RollsBackWhenMajorityFail(t *testing.T) {
	m := newTestRollbackManager(t)
	_, _ = m.WithRollback(context.Background(), func(context.Context) error { return nil }, TriggerManual, map[string]any{"x": 1})

	outcome, rolledBack := m.HandleTestFailure(context.Background(), TestResult{Total: 10, Failed: 6})
	assert.True(t, rolledBack)
	assert.NotEmpty(t, outcome.CheckpointID)
}

func TestHandleVerificationFailure_SkipsWhenTypecheckPasses(t *testing.T) {
	m := newTestRollbackManager(t)
	_, rolledBack := m.HandleVerificationFailure(context.Background(), false)
	assert.False(t, rolledBack)
}
