package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/collab/kv"
	"github.com/loopforge/autocore/pkg/decision"
	"github.com/loopforge/autocore/pkg/executor"
	"github.com/loopforge/autocore/pkg/metrics"
	"github.com/loopforge/autocore/pkg/rollback"
	"github.com/loopforge/autocore/pkg/safety"
	"github.com/loopforge/autocore/pkg/state"
)

type fakeAgent struct{}

func (fakeAgent) Invoke(ctx context.Context, req collab.InvokeRequest) (collab.InvokeResult, error) {
	return collab.InvokeResult{Success: true, Metadata: map[string]any{"file_path": "foo_test.go"}}, nil
}

type fakeTestRunner struct{ result rollback.TestResult }

func (f fakeTestRunner) RunTests(ctx context.Context, workingDir string) (rollback.TestResult, string, error) {
	return f.result, "", nil
}

type fakeVerifier struct{ success bool }

func (f fakeVerifier) RunVerification(ctx context.Context, workingDir string, coverageThreshold float64) (executor.VerificationResult, error) {
	return executor.VerificationResult{Success: f.success, TypecheckOK: f.success, LintOK: f.success, CoveragePercent: 90}, nil
}

func newTestOrchestrator(t *testing.T, tests executor.TestRunner, verifier executor.VerificationRunner, cfg Config) *Orchestrator {
	t.Helper()
	bus := collab.NewInProcessBus()
	store, err := kv.OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg.MaxConcurrentTasks = 3
	cfg.Checkpoint.Enabled = true
	cfg.ResourceBudget = safety.ResourceBudget{MaxTokens: 1_000_000, MaxElapsedMinutes: 1000}
	return New("sess-1", bus, fakeAgent{}, nil, store, tests, verifier, cfg)
}

func TestProcess_CompletesWhenAllRequirementsPass(t *testing.T) {
	o := newTestOrchestrator(t, fakeTestRunner{result: rollback.TestResult{Total: 5, Failed: 0}}, fakeVerifier{success: true}, Config{
		Autonomy: decision.Bold,
	})
	ctx := context.Background()

	require.NoError(t, o.Start(ctx, Request{SessionID: "sess-1", Text: "Add widget support.", WorkingDir: t.TempDir()}))

	final, err := o.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.COMPLETED, final)
}

func TestProcess_PausesOnUnrecoverableVerificationFailureWithoutAutoContinue(t *testing.T) {
	o := newTestOrchestrator(t, fakeTestRunner{result: rollback.TestResult{Total: 5, Failed: 0}}, fakeVerifier{success: false}, Config{
		Autonomy: decision.Timid,
	})
	ctx := context.Background()

	require.NoError(t, o.Start(ctx, Request{SessionID: "sess-1", Text: "Add widget support.", WorkingDir: t.TempDir()}))

	final, err := o.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.PAUSED, final)
}

func TestProcess_PublishesSessionLifecycleEvents(t *testing.T) {
	bus := collab.NewInProcessBus()
	store, err := kv.OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var started, completed bool
	bus.Subscribe(collab.EventSessionStarted, func(_ context.Context, _ collab.EventDef, _ collab.Payload) { started = true })
	bus.Subscribe(collab.EventSessionCompleted, func(_ context.Context, _ collab.EventDef, _ collab.Payload) { completed = true })

	o := New("sess-1", bus, fakeAgent{}, nil, store,
		fakeTestRunner{result: rollback.TestResult{Total: 1, Failed: 0}},
		fakeVerifier{success: true},
		Config{Autonomy: decision.Bold, MaxConcurrentTasks: 3, ResourceBudget: safety.ResourceBudget{MaxTokens: 1_000_000, MaxElapsedMinutes: 1000}},
	)

	ctx := context.Background()
	require.NoError(t, o.Start(ctx, Request{SessionID: "sess-1", Text: "Add widget support.", WorkingDir: t.TempDir()}))
	_, err = o.Process(ctx)
	require.NoError(t, err)

	assert.True(t, started)
	assert.True(t, completed)
}

func TestMetrics_ExposesCollector(t *testing.T) {
	o := newTestOrchestrator(t, fakeTestRunner{}, fakeVerifier{success: true}, Config{Autonomy: decision.Bold})
	assert.NotNil(t, o.Metrics())
	assert.IsType(t, &metrics.Collector{}, o.Metrics())
}
