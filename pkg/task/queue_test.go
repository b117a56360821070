package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/corerr"
)

func newTestQueue(maxConcurrent int) *Queue {
	return NewQueue("sess-1", collab.NewInProcessBus(), maxConcurrent)
}

func TestQueue_RunnableOrdersByPriorityThenCreation(t *testing.T) {
	q := newTestQueue(10)
	ctx := context.Background()

	base := time.Now()
	low := &Task{ID: "low", Priority: PriorityLow, CreatedAt: base}
	high := &Task{ID: "high", Priority: PriorityHigh, CreatedAt: base.Add(time.Second)}
	critical := &Task{ID: "critical", Priority: PriorityCritical, CreatedAt: base.Add(2 * time.Second)}

	q.Add(ctx, low)
	q.Add(ctx, high)
	q.Add(ctx, critical)

	runnable := q.Runnable()
	require.Len(t, runnable, 3)
	assert.Equal(t, "critical", runnable[0].ID)
	assert.Equal(t, "high", runnable[1].ID)
	assert.Equal(t, "low", runnable[2].ID)
}

func TestQueue_RunnableRequiresCompletedDependencies(t *testing.T) {
	q := newTestQueue(10)
	ctx := context.Background()

	a := &Task{ID: "a", Priority: PriorityMedium}
	b := &Task{ID: "b", Priority: PriorityMedium, DependencyIDs: []string{"a"}}
	q.Add(ctx, a)
	q.Add(ctx, b)

	runnable := q.Runnable()
	require.Len(t, runnable, 1)
	assert.Equal(t, "a", runnable[0].ID)

	require.NoError(t, q.Start(ctx, "a"))
	require.NoError(t, q.Complete(ctx, "a"))

	runnable = q.Runnable()
	require.Len(t, runnable, 1)
	assert.Equal(t, "b", runnable[0].ID)
}

func TestQueue_RunnableTruncatedByMaxConcurrent(t *testing.T) {
	q := newTestQueue(1)
	ctx := context.Background()

	q.Add(ctx, &Task{ID: "a", Priority: PriorityMedium})
	q.Add(ctx, &Task{ID: "b", Priority: PriorityMedium, CreatedAt: time.Now().Add(time.Second)})

	runnable := q.Runnable()
	require.Len(t, runnable, 1)

	require.NoError(t, q.Start(ctx, runnable[0].ID))
	assert.Empty(t, q.Runnable())
}

func TestQueue_FailRetriesUnderBudget(t *testing.T) {
	q := newTestQueue(10)
	ctx := context.Background()

	tk := &Task{ID: "a", Priority: PriorityMedium, MaxRetries: 2}
	q.Add(ctx, tk)
	require.NoError(t, q.Start(ctx, "a"))
	require.NoError(t, q.Fail(ctx, "a", errors.New("boom"), true))

	got, _ := q.Get("a")
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestQueue_FailExhaustsBudget(t *testing.T) {
	q := newTestQueue(10)
	ctx := context.Background()

	tk := &Task{ID: "a", Priority: PriorityMedium, MaxRetries: 0}
	q.Add(ctx, tk)
	require.NoError(t, q.Start(ctx, "a"))
	require.NoError(t, q.Fail(ctx, "a", errors.New("boom"), true))

	got, _ := q.Get("a")
	assert.Equal(t, StatusFailed, got.Status)
}

func TestQueue_AddCycleIsFatal(t *testing.T) {
	q := newTestQueue(10)
	ctx := context.Background()

	q.Add(ctx, &Task{ID: "a", DependencyIDs: []string{"b"}})

	defer func() {
		r := recover()
		require.NotNil(t, r)
		var fatal *corerr.FatalInternalError
		require.ErrorAs(t, r.(error), &fatal)
	}()

	q.Add(ctx, &Task{ID: "b", DependencyIDs: []string{"a"}})
}
