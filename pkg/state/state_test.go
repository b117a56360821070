package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/corerr"
)

func TestMachine_InitialState(t *testing.T) {
	m := New("sess-1", collab.NewInProcessBus())
	assert.Equal(t, IDLE, m.Current())
}

func TestMachine_AllowedTransition(t *testing.T) {
	m := New("sess-1", collab.NewInProcessBus())

	err := m.Transition(context.Background(), PLANNING, TransitionOptions{Reason: "start"})
	require.NoError(t, err)
	assert.Equal(t, PLANNING, m.Current())
	assert.Equal(t, IDLE, m.Previous())
}

func TestMachine_DisallowedTransition(t *testing.T) {
	m := New("sess-1", collab.NewInProcessBus())

	err := m.Transition(context.Background(), COMPLETED, TransitionOptions{})
	require.Error(t, err)

	var invalid *corerr.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, string(IDLE), invalid.From)
	assert.Equal(t, string(COMPLETED), invalid.To)

	// State is left unchanged on a rejected transition.
	assert.Equal(t, IDLE, m.Current())
}

func TestMachine_TerminatedRejectsEverything(t *testing.T) {
	m := New("sess-1", collab.NewInProcessBus())
	require.NoError(t, m.Transition(context.Background(), TERMINATED, TransitionOptions{}))

	for _, target := range []State{PLANNING, EXECUTING, COMPLETED, FAILED, PAUSED, BLOCKED} {
		assert.False(t, m.Allowed(target))
	}
}

func TestMachine_HandlersCalledInOrder(t *testing.T) {
	m := New("sess-1", collab.NewInProcessBus())
	var order []int
	m.OnChange(func(ctx context.Context, from, to State, opts TransitionOptions) {
		order = append(order, 1)
	})
	m.OnChange(func(ctx context.Context, from, to State, opts TransitionOptions) {
		order = append(order, 2)
	})

	require.NoError(t, m.Transition(context.Background(), PLANNING, TransitionOptions{}))
	assert.Equal(t, []int{1, 2}, order)
}

func TestMachine_PausedIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(PAUSED))
	assert.True(t, IsRecoverable(BLOCKED))
	assert.False(t, IsRecoverable(COMPLETED))
	assert.False(t, IsRecoverable(FAILED))
	assert.False(t, IsRecoverable(TERMINATED))
}

func TestMachine_InvalidTransitionPublishesEvent(t *testing.T) {
	bus := collab.NewInProcessBus()
	var gotPayload collab.Payload
	bus.Subscribe(collab.EventStateInvalidTransition, func(ctx context.Context, def collab.EventDef, p collab.Payload) {
		gotPayload = p
	})

	m := New("sess-1", bus)
	err := m.Transition(context.Background(), SCORING, TransitionOptions{})
	require.Error(t, err)

	assert.Equal(t, "sess-1", gotPayload.SessionID)
	assert.Equal(t, string(IDLE), gotPayload.Fields["from"])
	assert.Equal(t, string(SCORING), gotPayload.Fields["to"])
}
