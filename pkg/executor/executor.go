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

// Package executor implements the Executor (C8): red/green/refactor
// TDD cycles driven by agent invocations, plus the runTests and
// runVerification steps an Orchestrator iteration consults.
package executor

import (
	"context"
	"time"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/rollback"
	"github.com/loopforge/autocore/pkg/safety"
)

// Phase names one step of a TDD cycle.
type Phase string

const (
	PhaseRed      Phase = "red"
	PhaseGreen    Phase = "green"
	PhaseRefactor Phase = "refactor"
)

// PhaseResult records one phase's outcome.
type PhaseResult struct {
	Phase    Phase
	Success  bool
	FilePath string
	Output   string
	Err      error
	Duration time.Duration
}

// CycleResult is the outcome of one full TDD cycle.
type CycleResult struct {
	RequirementID string
	Phases        []PhaseResult
	ModifiedFiles []string
	Success       bool
}

// TestRunner executes the project's external test command.
type TestRunner interface {
	RunTests(ctx context.Context, workingDir string) (rollback.TestResult, string, error)
}

// VerificationRunner executes type-check, lint, and coverage steps.
type VerificationRunner interface {
	RunVerification(ctx context.Context, workingDir string, coverageThreshold float64) (VerificationResult, error)
}

// VerificationResult is the §4.7 verification outcome.
type VerificationResult struct {
	Success         bool
	TypecheckOK     bool
	LintOK          bool
	CoveragePercent float64
	Issues          []string
}

// Executor drives TDD cycles for requirements, one agent invocation
// per phase, consulting the safety core before the red phase and
// routing post-refactor test failures to the rollback manager.
type Executor struct {
	agent     collab.AgentClient
	safety    *safety.Core
	rollback  *rollback.Manager
	tests     TestRunner
	verifier  VerificationRunner
	bus       collab.EventBus
	sessionID string
}

// New constructs an Executor for one session.
func New(sessionID string, agent collab.AgentClient, safetyCore *safety.Core, rb *rollback.Manager, tests TestRunner, verifier VerificationRunner, bus collab.EventBus) *Executor {
	return &Executor{
		agent:     agent,
		safety:    safetyCore,
		rollback:  rb,
		tests:     tests,
		verifier:  verifier,
		bus:       bus,
		sessionID: sessionID,
	}
}

// RunCycle drives one red/green/refactor cycle for requirement.
func (e *Executor) RunCycle(ctx context.Context, requirementID, requirementText, workingDir string) (CycleResult, error) {
	e.bus.Publish(ctx, collab.EventTDDCycleStarted, collab.Payload{
		SessionID: e.sessionID,
		Fields:    map[string]any{"requirement_id": requirementID},
	})

	result := CycleResult{RequirementID: requirementID}

	verdict := e.safety.CheckSafety(ctx, nil)
	if !verdict.Allowed {
		result.Phases = append(result.Phases, PhaseResult{Phase: PhaseRed, Success: false, Err: safetyBlockedError{verdict.Reason}})
		e.completeCycle(ctx, &result)
		return result, nil
	}

	red := e.runRed(ctx, requirementText)
	result.Phases = append(result.Phases, red)
	if !red.Success {
		e.completeCycle(ctx, &result)
		return result, nil
	}

	green := e.runGreen(ctx, requirementText, red.FilePath)
	result.Phases = append(result.Phases, green)
	if !green.Success {
		e.completeCycle(ctx, &result)
		return result, nil
	}
	if green.FilePath != "" {
		result.ModifiedFiles = append(result.ModifiedFiles, green.FilePath)
	}

	refactor := e.runRefactor(ctx, workingDir)
	result.Phases = append(result.Phases, refactor)
	if refactor.FilePath != "" {
		result.ModifiedFiles = append(result.ModifiedFiles, refactor.FilePath)
	}

	result.Success = refactor.Success
	e.completeCycle(ctx, &result)
	return result, nil
}

func (e *Executor) completeCycle(ctx context.Context, result *CycleResult) {
	e.bus.Publish(ctx, collab.EventTDDCycleCompleted, collab.Payload{
		SessionID: e.sessionID,
		Fields:    map[string]any{"requirement_id": result.RequirementID, "success": result.Success},
	})
}

func (e *Executor) runRed(ctx context.Context, requirementText string) PhaseResult {
	start := time.Now()
	res, err := e.agent.Invoke(ctx, collab.InvokeRequest{
		Agent: collab.AgentTDDGuide,
		Task:  "Write a failing test for: " + requirementText,
	})
	return PhaseResult{
		Phase:    PhaseRed,
		Success:  err == nil && res.Success,
		FilePath: stringMeta(res.Metadata, "file_path"),
		Output:   res.Output,
		Err:      err,
		Duration: time.Since(start),
	}
}

func (e *Executor) runGreen(ctx context.Context, requirementText, testFilePath string) PhaseResult {
	start := time.Now()
	res, err := e.agent.Invoke(ctx, collab.InvokeRequest{
		Agent:   collab.AgentTDDGuide,
		Task:    "Write the minimal implementation to pass the test for: " + requirementText,
		Context: map[string]any{"test_file": testFilePath},
	})
	return PhaseResult{
		Phase:    PhaseGreen,
		Success:  err == nil && res.Success,
		FilePath: stringMeta(res.Metadata, "file_path"),
		Output:   res.Output,
		Err:      err,
		Duration: time.Since(start),
	}
}

func (e *Executor) runRefactor(ctx context.Context, workingDir string) PhaseResult {
	start := time.Now()
	res, err := e.agent.Invoke(ctx, collab.InvokeRequest{
		Agent: collab.AgentCodeReviewer,
		Task:  "Suggest and apply improvements to the code just written.",
	})
	if err != nil || !res.Success {
		return PhaseResult{Phase: PhaseRefactor, Success: false, Err: err, Duration: time.Since(start)}
	}

	testResult, output, testErr := e.tests.RunTests(ctx, workingDir)
	if testErr != nil || testResult.Failed > 0 {
		if e.rollback != nil {
			e.rollback.HandleTestFailure(ctx, testResult)
		}
		return PhaseResult{Phase: PhaseRefactor, Success: false, Output: output, Err: testErr, Duration: time.Since(start)}
	}

	return PhaseResult{
		Phase:    PhaseRefactor,
		Success:  true,
		FilePath: stringMeta(res.Metadata, "file_path"),
		Output:   output,
		Duration: time.Since(start),
	}
}

// RunVerification delegates to the configured VerificationRunner, or
// reports success when none is configured.
func (e *Executor) RunVerification(ctx context.Context, workingDir string, coverageThreshold float64) (VerificationResult, error) {
	if e.verifier == nil {
		return VerificationResult{Success: true, TypecheckOK: true, LintOK: true}, nil
	}
	return e.verifier.RunVerification(ctx, workingDir, coverageThreshold)
}

func stringMeta(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

type safetyBlockedError struct{ reason string }

func (e safetyBlockedError) Error() string { return "blocked by safety core: " + e.reason }
