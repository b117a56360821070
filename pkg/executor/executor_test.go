package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/checkpoint"
	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/collab/kv"
	"github.com/loopforge/autocore/pkg/rollback"
	"github.com/loopforge/autocore/pkg/safety"
)

type fakeAgent struct {
	results map[collab.AgentName]collab.InvokeResult
}

func (f *fakeAgent) Invoke(ctx context.Context, req collab.InvokeRequest) (collab.InvokeResult, error) {
	if r, ok := f.results[req.Agent]; ok {
		return r, nil
	}
	return collab.InvokeResult{Success: true}, nil
}

type fakeTestRunner struct {
	result rollback.TestResult
}

func (f fakeTestRunner) RunTests(ctx context.Context, workingDir string) (rollback.TestResult, string, error) {
	return f.result, "", nil
}

func newTestExecutor(t *testing.T, agent collab.AgentClient, tests TestRunner) *Executor {
	t.Helper()
	bus := collab.NewInProcessBus()
	core := safety.NewCore("sess-1", bus, safety.ResourceBudget{}, false)

	store, err := kv.OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cpMgr := checkpoint.NewManager(checkpoint.Config{Enabled: true}, checkpoint.NewStorage(store), bus)
	rb := rollback.NewManager("sess-1", cpMgr, nil, bus)

	return New("sess-1", agent, core, rb, tests, nil, bus)
}

func TestRunCycle_AllPhasesSucceed(t *testing.T) {
	agent := &fakeAgent{results: map[collab.AgentName]collab.InvokeResult{
		collab.AgentTDDGuide:     {Success: true, Metadata: map[string]any{"file_path": "foo_test.go"}},
		collab.AgentCodeReviewer: {Success: true, Metadata: map[string]any{"file_path": "foo.go"}},
	}}
	ex := newTestExecutor(t, agent, fakeTestRunner{result: rollback.TestResult{Total: 5, Failed: 0}})

	result, err := ex.RunCycle(context.Background(), "req-1", "support widget creation", t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Phases, 3)
}

func TestRunCycle_RedFailureStopsCycle(t *testing.T) {
	agent := &fakeAgent{results: map[collab.AgentName]collab.InvokeResult{
		collab.AgentTDDGuide: {Success: false},
	}}
	ex := newTestExecutor(t, agent, fakeTestRunner{})

	result, err := ex.RunCycle(context.Background(), "req-1", "support widget creation", t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Len(t, result.Phases, 1)
}

func TestRunCycle_RefactorTestFailureMarksIncomplete(t *testing.T) {
	agent := &fakeAgent{results: map[collab.AgentName]collab.InvokeResult{
		collab.AgentTDDGuide:     {Success: true},
		collab.AgentCodeReviewer: {Success: true},
	}}
	ex := newTestExecutor(t, agent, fakeTestRunner{result: rollback.TestResult{Total: 5, Failed: 3}})

	result, err := ex.RunCycle(context.Background(), "req-1", "support widget creation", t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Success)
}
