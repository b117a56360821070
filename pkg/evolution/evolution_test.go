package evolution

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/collab/kv"
	"github.com/loopforge/autocore/pkg/knowledge"
	"github.com/loopforge/autocore/pkg/sandbox"
	"github.com/loopforge/autocore/pkg/testutils"
)

func newTestKnowledge(t *testing.T) *knowledge.Store {
	t.Helper()
	store, err := kv.OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return knowledge.NewStore(store)
}

func TestSolve_ReusesHighRelevanceKnowledgeEntry(t *testing.T) {
	ks := newTestKnowledge(t)
	ctx := context.Background()
	// A single-tag entry ("golang") keeps knowledgeRelevance's tag-match
	// ratio at 1.0 once the problem description repeats that word, clearing
	// knowledgeRelevanceGate.
	_, err := ks.Sediment(ctx, knowledge.Context{
		ErrorType:  "Golang",
		Technology: "golang",
		Examples:   []knowledge.CodeExample{{Language: "go", Code: "if x == nil { return }"}},
	})
	require.NoError(t, err)

	loop := New(nil, ks, nil, nil, nil, collab.NewInProcessBus(), 0)
	result, err := loop.Solve(ctx, Problem{Description: "something golang related", Error: "Golang"})
	require.NoError(t, err)
	assert.True(t, result.Solved)
	assert.Contains(t, result.Summary, "reused knowledge entry")
}

func TestSolve_SkipsLowRelevanceKnowledgeAndFallsThrough(t *testing.T) {
	ks := newTestKnowledge(t)
	ctx := context.Background()
	_, err := ks.Sediment(ctx, knowledge.Context{
		Problem:    "docker build fails with permission denied",
		ErrorType:  "PermissionDenied",
		Technology: "docker",
		Solution:   "run as non-root user",
		Examples:   []knowledge.CodeExample{{Language: "dockerfile", Code: "USER 1000"}},
	})
	require.NoError(t, err)

	loop := New(nil, ks, nil, nil, nil, collab.NewInProcessBus(), 0)
	result, err := loop.Solve(ctx, Problem{Description: "totally unrelated kafka consumer lag issue", Error: "ConsumerLag", Technology: "kafka"})
	assert.False(t, result.Solved)
	assert.Error(t, err)
}

func TestBestTool_SelectsBestMatchingDynamicTool(t *testing.T) {
	tools := NewToolRegistry()
	tool := &DynamicTool{
		Name:     "fix-import-order",
		Language: "go",
		Code:     "gofmt -w .",
		Similarity: func(desc string) float64 {
			if desc == "import order is wrong" {
				return 0.9
			}
			return 0
		},
	}
	require.NoError(t, tools.Register(tool.Name, tool))

	loop := New(nil, nil, tools, nil, nil, collab.NewInProcessBus(), 0)
	_, ok := loop.bestTool(Problem{Description: "import order is wrong"})
	assert.True(t, ok)

	_, ok = loop.bestTool(Problem{Description: "something else entirely"})
	assert.False(t, ok)
}

func TestBestTool_ExcludesQuarantinedTools(t *testing.T) {
	tools := NewToolRegistry()
	tool := &DynamicTool{
		Name:        "learned-1",
		Language:    "go",
		Code:        "gofmt -w .",
		Quarantined: true,
		Similarity:  func(desc string) float64 { return 1 },
	}
	require.NoError(t, tools.Register(tool.Name, tool))

	loop := New(nil, nil, tools, nil, nil, collab.NewInProcessBus(), 0)
	_, ok := loop.bestTool(Problem{Description: "anything"})
	assert.False(t, ok, "a quarantined tool must not be selected by tryExistingTool")

	tool.Quarantined = false
	_, ok = loop.bestTool(Problem{Description: "anything"})
	assert.True(t, ok)
}

func TestToolRegistry_RegisterGetListRemove(t *testing.T) {
	tools := NewToolRegistry()
	tool := &DynamicTool{Name: "fix-import-order", Language: "go", Code: "gofmt -w ."}

	require.NoError(t, tools.Register(tool.Name, tool))
	assert.Error(t, tools.Register(tool.Name, tool), "duplicate names are rejected")
	assert.Error(t, tools.Register("", tool), "empty names are rejected")

	got, ok := tools.Get(tool.Name)
	assert.True(t, ok)
	assert.Same(t, tool, got)

	assert.Equal(t, 1, tools.Count())
	assert.Len(t, tools.List(), 1)

	require.NoError(t, tools.Remove(tool.Name))
	assert.Equal(t, 0, tools.Count())
	assert.Error(t, tools.Remove(tool.Name))
}

func TestReviewQuarantinedTools_PromotesAfterThreshold(t *testing.T) {
	tools := NewToolRegistry()
	tool := &DynamicTool{Name: "learned-1", Language: "go", Code: "gofmt -w .", Quarantined: true}
	require.NoError(t, tools.Register(tool.Name, tool))

	fake := &testutils.FakeSandbox{Result: collab.ExecResult{ExitCode: 0}}
	runner := sandbox.NewRunner(fake, nil, nil)
	loop := New(nil, nil, tools, runner, nil, collab.NewInProcessBus(), 0)

	ctx := context.Background()
	for i := 0; i < quarantineTrialThreshold-1; i++ {
		loop.ReviewQuarantinedTools(ctx)
		assert.True(t, tool.Quarantined, "still below the trial threshold")
	}
	loop.ReviewQuarantinedTools(ctx)
	assert.False(t, tool.Quarantined)
	assert.Equal(t, quarantineTrialThreshold, tool.Trials)
}

func TestReviewQuarantinedTools_ResetsTrialsOnFailure(t *testing.T) {
	tools := NewToolRegistry()
	tool := &DynamicTool{Name: "learned-1", Language: "go", Code: "gofmt -w .", Quarantined: true, Trials: quarantineTrialThreshold - 1}
	require.NoError(t, tools.Register(tool.Name, tool))

	fake := &testutils.FakeSandbox{Result: collab.ExecResult{ExitCode: 1}}
	runner := sandbox.NewRunner(fake, nil, nil)
	loop := New(nil, nil, tools, runner, nil, collab.NewInProcessBus(), 0)

	loop.ReviewQuarantinedTools(context.Background())
	assert.True(t, tool.Quarantined)
	assert.Equal(t, 0, tool.Trials)
}

func TestPassesQualityGate(t *testing.T) {
	validFunc := strings.Join([]string{
		"func clamp(v, lo, hi int) int {",
		"    if v < lo {",
		"        return lo",
		"    }",
		"    if v > hi {",
		"        return hi",
		"    }",
		"    return v",
		"}",
	}, "\n")

	tests := []struct {
		name string
		code string
		want bool
	}{
		{"valid function", validFunc, true},
		{"too short", "x := 1\ny := 2", false},
		{"no function construct", strings.Repeat("x := 1\n", 10), false},
		{"too many lines", strings.Repeat("func f() {}\n", 501), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, passesQualityGate(tt.code))
		})
	}
}

func TestFinish_RespectsQualityGateBeforeRegisteringTool(t *testing.T) {
	tools := NewToolRegistry()
	loop := New(nil, nil, tools, nil, nil, collab.NewInProcessBus(), 0)

	lowQuality := loop.finish(Result{Solution: "x"}, "go", "x := 1")
	assert.Empty(t, lowQuality.LearnedToolID)
	assert.Equal(t, 0, tools.Count())

	highQuality := loop.finish(Result{Solution: "ok"}, "go", strings.Join([]string{
		"func clamp(v, lo, hi int) int {",
		"    if v < lo {",
		"        return lo",
		"    }",
		"    if v > hi {",
		"        return hi",
		"    }",
		"    return v",
		"}",
	}, "\n"))
	require.NotEmpty(t, highQuality.LearnedToolID)
	tool, ok := tools.Get(highQuality.LearnedToolID)
	require.True(t, ok)
	assert.True(t, tool.Quarantined, "a newly learned tool starts quarantined")
}

func TestFinish_AttachesGeneratedCodeAsKnowledgeExample(t *testing.T) {
	ks := newTestKnowledge(t)
	loop := New(nil, ks, nil, nil, nil, collab.NewInProcessBus(), 0)

	result := loop.finish(Result{Summary: "generated and executed a new solution", Solution: "ok"}, "go", "func f() {}")
	require.NotEmpty(t, result.KnowledgeID)

	entries, err := ks.Search(context.Background(), "generated executed solution", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Examples, 1)
	assert.Equal(t, "func f() {}", entries[0].Examples[0].Code)
}

func TestKnowledgeRelevance_ScoresTagOverlap(t *testing.T) {
	e := &knowledge.Entry{Tags: []string{"golang", "panic", "handler"}}
	high := knowledgeRelevance(e, Problem{Description: "golang panic in handler"})
	low := knowledgeRelevance(e, Problem{Description: "completely different topic"})
	assert.Greater(t, high, low)
}
