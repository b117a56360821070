package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loopforge/autocore/pkg/requirement"
)

func TestAnalyzeCompletion_AllCriteriaSatisfied(t *testing.T) {
	a := AnalyzeCompletion(CompletionCriteria{
		RequirementsCompleted: true,
		TestsPassing:          true,
		VerificationPassing:   true,
	})
	assert.True(t, a.CanContinue)
	assert.False(t, a.ShouldPause)
}

func TestAnalyzeCompletion_ResourceExhaustionForcesPause(t *testing.T) {
	a := AnalyzeCompletion(CompletionCriteria{ResourceExhausted: true, ExhaustedAxis: "tokens"})
	assert.False(t, a.CanContinue)
	assert.True(t, a.ShouldPause)
	assert.Contains(t, a.Reasons[0], "tokens")
}

func TestPlan_StopsWhenAllRequirementsComplete(t *testing.T) {
	r := Plan(Input{Criteria: CompletionCriteria{RequirementsCompleted: true, TestsPassing: true, VerificationPassing: true}})
	assert.False(t, r.ShouldContinue)
	assert.Equal(t, "all requirements completed", r.Reason)
}

func TestPlan_PausesOnBlockingIssueWhenNotAutoContinuing(t *testing.T) {
	r := Plan(Input{
		PendingRequirements: []requirement.Requirement{{Description: "x", Status: requirement.StatusPending, Priority: requirement.PriorityHigh}},
		Criteria:            CompletionCriteria{BlockingIssues: []string{"unresolved conflict"}},
	})
	assert.False(t, r.ShouldContinue)
}

func TestPlan_AutoContinuesPastTestFailureInUnattendedMode(t *testing.T) {
	r := Plan(Input{
		PendingRequirements: []requirement.Requirement{{Description: "x", Status: requirement.StatusPending, Priority: requirement.PriorityHigh}},
		Criteria:            CompletionCriteria{TestsPassing: false, VerificationPassing: true},
		Unattended:          true,
		EnableAutoContinue:  true,
	})
	assert.True(t, r.ShouldContinue)
	assert.Len(t, r.NextTasks, 1)
}

func TestPlan_StopsOnResourceExhaustionEvenWhenAutoContinuing(t *testing.T) {
	r := Plan(Input{
		PendingRequirements: []requirement.Requirement{{Description: "x", Status: requirement.StatusPending}},
		Criteria:            CompletionCriteria{ResourceExhausted: true, ExhaustedAxis: "cost"},
		Unattended:          true,
		EnableAutoContinue:  true,
	})
	assert.False(t, r.ShouldContinue)
	assert.Contains(t, r.Reason, "cost")
}

func TestConfidenceFor_DecreasesWithFailuresAndIterations(t *testing.T) {
	high := confidenceFor(Input{})
	low := confidenceFor(Input{RecentFailures: []string{"a", "b", "c"}, ElapsedIterations: 20})
	assert.Greater(t, high, low)
}
