// Copyright 2025 The autocore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package planner implements the Next-Step Planner (C13): completion
// analysis and next-iteration task proposal.
package planner

import (
	"fmt"

	"github.com/loopforge/autocore/pkg/requirement"
)

// NextTask is one proposed task for the following iteration.
type NextTask struct {
	Subject  string
	Priority requirement.Priority
}

// Result is the Planner's recommendation for whether and how to
// continue (spec.md §4.12).
type Result struct {
	ShouldContinue  bool
	Reason          string
	NextTasks       []NextTask
	EstimatedCycles int
	Confidence      float64
}

// CompletionCriteria is the input to analyzeCompletion.
type CompletionCriteria struct {
	RequirementsCompleted bool
	TestsPassing          bool
	VerificationPassing   bool
	BlockingIssues        []string
	ResourceExhausted     bool
	ExhaustedAxis         string
}

// CompletionAnalysis is analyzeCompletion's result.
type CompletionAnalysis struct {
	CanContinue bool
	ShouldPause bool
	Reasons     []string
}

// AnalyzeCompletion evaluates whether the session can keep iterating
// (spec.md §4.12): CanContinue is false when a resource axis is
// exhausted or blocking issues remain; ShouldPause is additionally set
// when tests or verification are failing. Reasons lists every unmet
// criterion (requirements, tests, verification, blocks, resources).
func AnalyzeCompletion(c CompletionCriteria) CompletionAnalysis {
	var reasons []string

	if c.ResourceExhausted {
		reasons = append(reasons, fmt.Sprintf("resource axis %q exhausted", c.ExhaustedAxis))
	}
	if len(c.BlockingIssues) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d blocking issue(s) outstanding", len(c.BlockingIssues)))
	}
	if !c.TestsPassing {
		reasons = append(reasons, "tests not passing")
	}
	if !c.VerificationPassing {
		reasons = append(reasons, "verification not passing")
	}
	if !c.RequirementsCompleted {
		reasons = append(reasons, "requirements not yet completed")
	}

	canContinue := !c.ResourceExhausted && len(c.BlockingIssues) == 0
	shouldPause := c.ResourceExhausted || len(c.BlockingIssues) > 0 || !c.TestsPassing || !c.VerificationPassing

	if len(reasons) == 0 {
		reasons = append(reasons, "all completion criteria satisfied")
	}

	return CompletionAnalysis{CanContinue: canContinue, ShouldPause: shouldPause, Reasons: reasons}
}

// Input is the material the Planner reasons over for one iteration
// boundary.
type Input struct {
	PendingRequirements []requirement.Requirement
	RecentFailures      []string
	ElapsedIterations   int
	Criteria            CompletionCriteria
	Unattended          bool
	EnableAutoContinue  bool
}

// Plan proposes whether to continue and, if so, what to work on next
// (spec.md §4.12). In unattended mode with EnableAutoContinue set,
// pauses are reserved for resource exhaustion or an explicit block —
// a transient test/verification failure alone does not pause.
func Plan(in Input) Result {
	analysis := AnalyzeCompletion(in.Criteria)

	if len(in.PendingRequirements) == 0 && analysis.CanContinue && in.Criteria.RequirementsCompleted {
		return Result{
			ShouldContinue: false,
			Reason:         "all requirements completed",
			Confidence:     0.95,
		}
	}

	autoContinue := in.Unattended && in.EnableAutoContinue
	if analysis.ShouldPause && !autoContinue {
		return Result{
			ShouldContinue: false,
			Reason:         joinReasons(analysis.Reasons),
			Confidence:     0.9,
		}
	}
	if in.Criteria.ResourceExhausted {
		return Result{
			ShouldContinue: false,
			Reason:         fmt.Sprintf("resource axis %q exhausted", in.Criteria.ExhaustedAxis),
			Confidence:     0.95,
		}
	}
	if len(in.Criteria.BlockingIssues) > 0 {
		return Result{
			ShouldContinue: false,
			Reason:         joinReasons(analysis.Reasons),
			Confidence:     0.9,
		}
	}

	tasks := proposeNextTasks(in.PendingRequirements)
	confidence := confidenceFor(in)

	return Result{
		ShouldContinue:  true,
		Reason:          "pending requirements remain and no blocking condition",
		NextTasks:       tasks,
		EstimatedCycles: estimateCycles(in.PendingRequirements),
		Confidence:      confidence,
	}
}

func proposeNextTasks(pending []requirement.Requirement) []NextTask {
	var tasks []NextTask
	for _, r := range pending {
		if r.Status == requirement.StatusCompleted {
			continue
		}
		tasks = append(tasks, NextTask{Subject: r.Description, Priority: r.Priority})
	}
	return tasks
}

// estimateCycles guesses one TDD cycle per uncompleted requirement,
// floored at one when any work remains.
func estimateCycles(pending []requirement.Requirement) int {
	n := 0
	for _, r := range pending {
		if r.Status != requirement.StatusCompleted {
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return n
}

// confidenceFor lowers confidence with each recent failure and with
// iteration count, reflecting declining certainty the longer a
// session runs without completing.
func confidenceFor(in Input) float64 {
	c := 0.8 - float64(len(in.RecentFailures))*0.1 - float64(in.ElapsedIterations)*0.01
	if c < 0.1 {
		c = 0.1
	}
	if c > 1 {
		c = 1
	}
	return c
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
