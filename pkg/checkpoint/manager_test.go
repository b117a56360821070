package checkpoint

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/collab/kv"
)

func newTestManager(t *testing.T) (*Manager, *Storage) {
	t.Helper()
	store, err := kv.OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	storage := NewStorage(store)
	bus := collab.NewInProcessBus()
	mgr := NewManager(Config{Enabled: true, Strategy: StrategyInterval, Interval: 5}, storage, bus)
	return mgr, storage
}

func TestManager_ShouldCheckpoint_IntervalBoundary(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.False(t, mgr.ShouldCheckpoint(0))
	assert.False(t, mgr.ShouldCheckpoint(4))
	assert.True(t, mgr.ShouldCheckpoint(5))
	assert.True(t, mgr.ShouldCheckpoint(10))
}

func TestManager_CreateCheckpoint_PersistsAndPublishes(t *testing.T) {
	mgr, storage := newTestManager(t)
	bus := collab.NewInProcessBus()
	mgr.bus = bus

	var published collab.Payload
	bus.Subscribe(collab.EventCheckpointCreated, func(ctx context.Context, def collab.EventDef, p collab.Payload) {
		published = p
	})

	cp, err := mgr.CreateCheckpoint(context.Background(), "sess-1", TypeState, map[string]any{"iteration": 3}, []string{"a.go"}, "")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", published.SessionID)
	assert.Equal(t, cp.ID, published.Fields["checkpoint_id"])

	got, err := storage.Latest(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, cp.ID, got.ID)
}

func TestManager_Recoverable_RejectsTerminalState(t *testing.T) {
	mgr, _ := newTestManager(t)
	sc := &SessionCheckpoint{SessionID: "s1", SessionState: "COMPLETED", Timestamp: time.Now(), WorkingDir: t.TempDir()}
	d := mgr.Recoverable(sc)
	assert.False(t, d.Recoverable)
}

func TestManager_Recoverable_RejectsStaleCheckpoint(t *testing.T) {
	mgr, _ := newTestManager(t)
	sc := &SessionCheckpoint{SessionID: "s1", SessionState: "PAUSED", Timestamp: time.Now().Add(-8 * 24 * time.Hour), WorkingDir: t.TempDir()}
	d := mgr.Recoverable(sc)
	assert.False(t, d.Recoverable)
}

func TestManager_Recoverable_RejectsMissingWorkingDir(t *testing.T) {
	mgr, _ := newTestManager(t)
	missing := os.TempDir() + "/autocore-nonexistent-dir-xyz"
	sc := &SessionCheckpoint{SessionID: "s1", SessionState: "PAUSED", Timestamp: time.Now(), WorkingDir: missing}
	d := mgr.Recoverable(sc)
	assert.False(t, d.Recoverable)
}

func TestManager_Recoverable_AcceptsEligibleCheckpoint(t *testing.T) {
	mgr, _ := newTestManager(t)
	sc := &SessionCheckpoint{SessionID: "s1", SessionState: "EXECUTING", Timestamp: time.Now(), WorkingDir: t.TempDir()}
	d := mgr.Recoverable(sc)
	assert.True(t, d.Recoverable)
}

func TestManager_RecoverOnStartup_SkipsUnrecoverable(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	ok := SessionCheckpoint{SessionID: "ok", SessionState: "EXECUTING", Timestamp: time.Now(), WorkingDir: t.TempDir()}
	done := SessionCheckpoint{SessionID: "done", SessionState: "COMPLETED", Timestamp: time.Now(), WorkingDir: t.TempDir()}
	require.NoError(t, storage.SaveSession(ctx, &ok))
	require.NoError(t, storage.SaveSession(ctx, &done))

	recovered, err := mgr.RecoverOnStartup(ctx)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, "ok", recovered[0].SessionID)
}
