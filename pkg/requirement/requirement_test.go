package requirement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequirements_PriorityKeywords(t *testing.T) {
	reqs := ParseRequirements("The system must validate input. It should log errors. It could cache results. It might support plugins.")
	require.Len(t, reqs, 4)
	assert.Equal(t, PriorityCritical, reqs[0].Priority)
	assert.Equal(t, PriorityHigh, reqs[1].Priority)
	assert.Equal(t, PriorityMedium, reqs[2].Priority)
	assert.Equal(t, PriorityLow, reqs[3].Priority)
}

func TestParseRequirements_NoMatchYieldsSingleHighPriority(t *testing.T) {
	reqs := ParseRequirements("build a CLI tool that greets the user")
	require.Len(t, reqs, 1)
	assert.Equal(t, PriorityHigh, reqs[0].Priority)
}

func TestParseRequirements_DefaultCriteria(t *testing.T) {
	reqs := ParseRequirements("it must work")
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].AcceptanceCriteria, 3)
}

func TestDetectImplicitRequirements(t *testing.T) {
	found := DetectImplicitRequirements("Please add tests and handle errors, also update the README")
	assert.Contains(t, found, "test coverage")
	assert.Contains(t, found, "error handling")
	assert.Contains(t, found, "documentation")
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name   string
		status []CriterionStatus
		want   Status
	}{
		{"all passed", []CriterionStatus{CriterionPassed, CriterionPassed}, StatusCompleted},
		{"one failed", []CriterionStatus{CriterionPassed, CriterionFailed}, StatusBlocked},
		{"one passed one pending", []CriterionStatus{CriterionPassed, CriterionPending}, StatusInProgress},
		{"all pending", []CriterionStatus{CriterionPending, CriterionPending}, StatusPending},
		{"empty", nil, StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var criteria []Criterion
			for _, s := range tt.status {
				criteria = append(criteria, Criterion{Status: s})
			}
			assert.Equal(t, tt.want, DeriveStatus(criteria))
		})
	}
}
