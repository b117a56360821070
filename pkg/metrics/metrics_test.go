package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/decision"
)

func TestCollector_SubscribeTracksTaskAndDecisionCounters(t *testing.T) {
	bus := collab.NewInProcessBus()
	c := New(Config{})
	c.Subscribe(bus)
	ctx := context.Background()

	bus.Publish(ctx, collab.EventTaskCompleted, collab.Payload{SessionID: "s1"})
	bus.Publish(ctx, collab.EventTaskFailed, collab.Payload{SessionID: "s1", Fields: map[string]any{"skipped_reason": "no deps"}})
	bus.Publish(ctx, collab.EventDecisionMade, collab.Payload{SessionID: "s1", Fields: map[string]any{"result": "proceed", "score": 8.5}})

	s := c.Snapshot()
	assert.Equal(t, 2, s.tasksTotal)
	assert.Equal(t, 1, s.tasksPassed)
	assert.Equal(t, 1, s.tasksSkipped)
	assert.Equal(t, 1, s.decisionsTotal)
	assert.Equal(t, 1, s.decisionsApproved)
	assert.InDelta(t, 8.5, s.decisionScoreSum, 0.001)
}

func TestCollector_QualityScoreHighOnCleanRun(t *testing.T) {
	c := New(Config{})
	c.mu.Lock()
	c.s = snapshot{
		tasksTotal: 10, tasksPassed: 10,
		decisionsTotal: 10, decisionsApproved: 10, decisionScoreSum: 90, decisionScoreCount: 10,
		testRuns: 10, testsPassed: 10, tddPhaseSuccesses: 10, tddPhaseTotal: 10,
		elapsedMinutes: 5,
	}
	c.mu.Unlock()

	score := c.QualityScore()
	assert.Greater(t, score, 70.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestCollector_CrazinessScoreMapsToAutonomyLevel(t *testing.T) {
	c := New(Config{})
	c.mu.Lock()
	c.s = snapshot{
		decisionsTotal: 10, decisionsApproved: 10, decisionScoreSum: 90, decisionScoreCount: 10,
		rollbacks: 5, tasksTotal: 30, elapsedMinutes: 5,
	}
	c.mu.Unlock()

	score, level := c.CrazinessScore()
	assert.Greater(t, score, 0.0)
	assert.NotEmpty(t, level)
}

func TestAutonomyLevelFor_OrdersThresholdsDescending(t *testing.T) {
	assert.Equal(t, decision.Lunatic, autonomyLevelFor(95))
	assert.Equal(t, decision.Timid, autonomyLevelFor(5))
}

func TestCollector_RecordTestRun(t *testing.T) {
	c := New(Config{})
	c.RecordTestRun(8, 2)
	s := c.Snapshot()
	assert.Equal(t, 1, s.testRuns)
	assert.Equal(t, 8, s.testsPassed)
	assert.Equal(t, 2, s.testsFailed)
}
