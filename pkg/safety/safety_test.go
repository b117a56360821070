package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/collab"
)

func TestResourceGuard_ExceededAxis(t *testing.T) {
	bus := collab.NewInProcessBus()
	g := NewResourceGuard("sess-1", bus, ResourceBudget{MaxTokens: 100})
	g.Record(ResourceUsage{TokensUsed: 150})

	exceeded, axis := g.Check(context.Background())
	assert.True(t, exceeded)
	assert.Equal(t, "tokens", axis)
}

func TestResourceGuard_WarnsOnceAtThreshold(t *testing.T) {
	bus := collab.NewInProcessBus()
	var warnings int
	bus.Subscribe(collab.EventResourceWarning, func(ctx context.Context, def collab.EventDef, p collab.Payload) {
		warnings++
	})

	g := NewResourceGuard("sess-1", bus, ResourceBudget{MaxTokens: 100})
	g.Record(ResourceUsage{TokensUsed: 85})

	g.Check(context.Background())
	g.Check(context.Background())
	assert.Equal(t, 1, warnings)
}

func TestGuardrailMonitor_ExactRepeat(t *testing.T) {
	bus := collab.NewInProcessBus()
	m := NewGuardrailMonitor("sess-1", bus, false)

	now := time.Now()
	for i := 0; i < 3; i++ {
		m.RecordOperation(Operation{Kind: OpToolCall, ToolName: "run_tests", Input: "pytest", Timestamp: now, Result: OpSuccess})
	}

	lt, ok := m.Detect(context.Background())
	require.True(t, ok)
	assert.Equal(t, LoopExactRepeat, lt)
}

func TestGuardrailMonitor_AutoBreakSuppressesRepeat(t *testing.T) {
	bus := collab.NewInProcessBus()
	m := NewGuardrailMonitor("sess-1", bus, true)

	now := time.Now()
	for i := 0; i < 3; i++ {
		m.RecordOperation(Operation{Kind: OpToolCall, ToolName: "run_tests", Input: "pytest", Timestamp: now, Result: OpSuccess})
	}

	_, ok := m.Detect(context.Background())
	require.True(t, ok)

	_, ok = m.Detect(context.Background())
	assert.False(t, ok, "pattern should not be re-reported after auto-break")
}

func TestNormalizeError(t *testing.T) {
	got := normalizeError(`file not found: /home/user/file42.txt near "foo" at line 17`)
	assert.Contains(t, got, "/PATH")
	assert.Contains(t, got, "STR")
	assert.NotContains(t, got, "42")
}

func TestDestructiveGate_HighRiskBlocked(t *testing.T) {
	g := NewDestructiveGate()
	_, err := g.Evaluate(CategoryFileDeletion, "rm -rf build", []string{"build/"})
	require.Error(t, err)
}

func TestDestructiveGate_DuplicateBlocked(t *testing.T) {
	g := NewDestructiveGate()
	_, _ = g.Evaluate(CategoryConfigChange, "edit config", []string{"config.yaml"})
	_, _ = g.Evaluate(CategoryConfigChange, "edit config", []string{"config.yaml"})
	_, err := g.Evaluate(CategoryConfigChange, "edit config", []string{"config.yaml"})
	require.Error(t, err)
}

func TestShouldAutoApprove(t *testing.T) {
	assert.False(t, ShouldAutoApprove(RiskCritical, RiskCritical))
	assert.True(t, ShouldAutoApprove(RiskLow, RiskMedium))
	assert.False(t, ShouldAutoApprove(RiskHigh, RiskLow))
}
