package testutils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/collab"
)

func TestFakeAgent_ReturnsPrimedResultPerPersona(t *testing.T) {
	agent := NewFakeAgent()
	agent.Results[collab.AgentTDDGuide] = collab.InvokeResult{Success: false}

	res, err := agent.Invoke(context.Background(), collab.InvokeRequest{Agent: collab.AgentTDDGuide})
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = agent.Invoke(context.Background(), collab.InvokeRequest{Agent: collab.AgentGeneral})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, agent.Requests, 2)
}

func TestFakeVCS_CommitAndReset(t *testing.T) {
	vcs := NewFakeVCS()
	ctx := context.Background()

	hash, err := vcs.CreateCommit(ctx, "checkpoint", collab.CommitOptions{AddAll: true})
	require.NoError(t, err)

	clean, err := vcs.IsClean(ctx)
	require.NoError(t, err)
	assert.True(t, clean)

	require.NoError(t, vcs.ResetToCommit(ctx, "initial", true))
	current, err := vcs.GetCurrentCommit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "initial", current)
	assert.NotEqual(t, hash, current)
}

func TestFakeKV_ReadWriteRemove(t *testing.T) {
	kv := NewFakeKV()
	ctx := context.Background()
	key := []string{"sessions", "s1"}

	require.NoError(t, kv.Write(ctx, key, map[string]any{"iteration": 3}))

	var out map[string]any
	require.NoError(t, kv.Read(ctx, key, &out))
	assert.EqualValues(t, 3, out["iteration"])

	keys, err := kv.List(ctx, []string{"sessions"})
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, kv.Remove(ctx, key))
	err = kv.Read(ctx, key, &out)
	assert.Error(t, err)
}

func TestEventRecorder_CapturesPublishedEvents(t *testing.T) {
	bus := collab.NewInProcessBus()
	rec := NewEventRecorder(bus)

	bus.Publish(context.Background(), collab.EventSessionStarted, collab.Payload{SessionID: "s1"})

	assert.True(t, rec.Has(collab.EventSessionStarted))
	assert.False(t, rec.Has(collab.EventSessionCompleted))
	assert.Len(t, rec.Events(), 1)
}
