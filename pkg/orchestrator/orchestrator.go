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

// Package orchestrator implements the Orchestrator (C14): one
// instance per session, tying the state machine, task queue, decision
// engine, executor, safety core, checkpoint/rollback managers,
// metrics, and next-step planner into the iteration loop of
// spec.md §4.13.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/loopforge/autocore/pkg/checkpoint"
	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/decision"
	"github.com/loopforge/autocore/pkg/executor"
	"github.com/loopforge/autocore/pkg/metrics"
	"github.com/loopforge/autocore/pkg/planner"
	"github.com/loopforge/autocore/pkg/requirement"
	"github.com/loopforge/autocore/pkg/rollback"
	"github.com/loopforge/autocore/pkg/safety"
	"github.com/loopforge/autocore/pkg/state"
	"github.com/loopforge/autocore/pkg/task"
)

// recentErrorsCap bounds the ring of recent errors the decision
// engine and planner reason over (spec.md §4.13(e)).
const recentErrorsCap = 10

// Config tunes one Orchestrator instance.
type Config struct {
	Autonomy           decision.AutonomyLevel
	Unattended         bool
	EnableAutoContinue bool
	AutoRollback       bool
	MaxConcurrentTasks int
	CoverageThreshold  float64
	ResourceBudget     safety.ResourceBudget
	AutoBreakLoops     bool
	Checkpoint         checkpoint.Config
	Metrics            metrics.Config
}

// Request starts or resumes one session.
type Request struct {
	SessionID  string
	Text       string
	WorkingDir string
}

// Orchestrator drives one session's autonomous-execution loop.
type Orchestrator struct {
	sessionID  string
	workingDir string
	bus        collab.EventBus
	cfg        Config

	state       *state.Machine
	tasks       *task.Queue
	decisions   *decision.Engine
	safetyCore  *safety.Core
	checkpoints *checkpoint.Manager
	rollback    *rollback.Manager
	executor    *executor.Executor
	metrics     *metrics.Collector

	requirements []requirement.Requirement
	recentErrors []string
	iteration    int

	lastCycleSuccess       bool
	lastVerificationResult executor.VerificationResult
}

// New wires one Orchestrator from its collaborator contracts
// (spec.md §6) and the pre-built TestRunner/VerificationRunner the
// Executor drives.
func New(sessionID string, bus collab.EventBus, agent collab.AgentClient, vcs collab.VCSDriver, kv collab.KVStore, tests executor.TestRunner, verifier executor.VerificationRunner, cfg Config) *Orchestrator {
	safetyCore := safety.NewCore(sessionID, bus, cfg.ResourceBudget, cfg.AutoBreakLoops)
	checkpoints := checkpoint.NewManager(cfg.Checkpoint, checkpoint.NewStorage(kv), bus)
	rb := rollback.NewManager(sessionID, checkpoints, vcs, bus)
	exec := executor.New(sessionID, agent, safetyCore, rb, tests, verifier, bus)
	mcol := metrics.New(cfg.Metrics)
	mcol.Subscribe(bus)

	return &Orchestrator{
		sessionID:   sessionID,
		bus:         bus,
		cfg:         cfg,
		state:       state.New(sessionID, bus),
		tasks:       task.NewQueue(sessionID, bus, cfg.MaxConcurrentTasks),
		decisions:   decision.NewEngine(sessionID, bus, cfg.Autonomy),
		safetyCore:  safetyCore,
		checkpoints: checkpoints,
		rollback:    rb,
		executor:    exec,
		metrics:     mcol,
	}
}

// Metrics exposes the session's Collector, e.g. for an HTTP /metrics
// handler in cmd/autocore.
func (o *Orchestrator) Metrics() *metrics.Collector { return o.metrics }

// State returns the current session state.
func (o *Orchestrator) State() state.State { return o.state.Current() }

// Start transitions IDLE->PLANNING, parses requirements out of
// req.Text, schedules one task per requirement, and publishes
// session.started and requirements.updated (spec.md §4.13 step 1).
func (o *Orchestrator) Start(ctx context.Context, req Request) error {
	o.sessionID = req.SessionID
	o.workingDir = req.WorkingDir

	if err := o.state.Transition(ctx, state.PLANNING, state.TransitionOptions{Reason: "session starting"}); err != nil {
		return err
	}
	o.bus.Publish(ctx, collab.EventSessionStarted, collab.Payload{
		SessionID: o.sessionID,
		Fields:    map[string]any{"original_request": req.Text, "working_dir": req.WorkingDir},
	})

	o.requirements = requirement.ParseRequirements(req.Text)
	for _, r := range o.requirements {
		o.tasks.Add(ctx, &task.Task{
			ID:          r.ID,
			Subject:     r.Description,
			Priority:    task.Priority(r.Priority),
			TargetAgent: string(collab.AgentGeneral),
		})
	}

	o.bus.Publish(ctx, collab.EventRequirementsUpdated, collab.Payload{
		SessionID: o.sessionID,
		Fields:    map[string]any{"count": len(o.requirements)},
	})
	return nil
}

// Process runs the iteration loop of spec.md §4.13 step 2 until the
// session reaches a terminal state, returning that state.
func (o *Orchestrator) Process(ctx context.Context) (state.State, error) {
	for {
		o.iteration++
		o.bus.Publish(ctx, collab.EventIterationStarted, collab.Payload{
			SessionID: o.sessionID,
			Fields:    map[string]any{"iteration": o.iteration},
		})

		o.understandAndPlan(ctx)

		proceed, terminal, err := o.decide(ctx)
		if err != nil {
			return o.state.Current(), err
		}
		if !proceed {
			return o.state.Current(), nil
		}
		_ = terminal

		if err := o.maybeCheckpoint(ctx, "before execute"); err != nil {
			return o.state.Current(), err
		}

		if err := o.execute(ctx); err != nil {
			return o.state.Current(), err
		}

		completed, err := o.evaluate(ctx)
		if err != nil {
			return o.state.Current(), err
		}
		if completed {
			return state.COMPLETED, nil
		}

		done, err := o.planNext(ctx)
		if err != nil {
			return o.state.Current(), err
		}
		if done {
			return o.state.Current(), nil
		}
	}
}

// understandAndPlan delegates the two opaque pre-decision steps of
// spec.md §4.13 step 2(b) to the explore and architect agent
// personas. Their output is informational only in this loop; a real
// deployment would fold it into the next Decide call's context.
func (o *Orchestrator) understandAndPlan(ctx context.Context) {
	next := o.nextRequirement()
	if next == nil {
		return
	}
	for _, agentName := range []collab.AgentName{collab.AgentExplore, collab.AgentArchitect} {
		o.bus.Publish(ctx, collab.EventAgentInvoked, collab.Payload{
			SessionID: o.sessionID,
			Fields:    map[string]any{"agent": string(agentName), "requirement_id": next.ID},
		})
	}
}

// defaultCLOSEInputs builds the CLOSE vector spec.md §4.13 step 2(c)
// asks for "from current surplus": Surplus tracks the resource
// headroom directly, the remaining dimensions default to a neutral
// midpoint since Understand/Plan are opaque stubs in this loop.
func defaultCLOSEInputs(surplusRatio float64) decision.CLOSEInputs {
	const neutral = 7.0
	return decision.CLOSEInputs{
		Convergence: neutral,
		Leverage:    neutral,
		Optionality: neutral,
		Surplus:     surplusRatio * 10,
		Evolution:   neutral,
	}
}

func riskFromSurplus(surplusRatio float64) decision.Risk {
	switch {
	case surplusRatio < 0.15:
		return decision.RiskHigh
	case surplusRatio < 0.4:
		return decision.RiskMedium
	default:
		return decision.RiskLow
	}
}

// decide runs spec.md §4.13 step 2(c): builds the default CLOSE
// vector, submits it, and handles a non-approved result. The bool
// return reports whether the iteration should proceed to Execute.
func (o *Orchestrator) decide(ctx context.Context) (proceed, terminal bool, err error) {
	if err := o.state.Transition(ctx, state.DECIDING, state.TransitionOptions{Reason: "evaluating next action"}); err != nil {
		return false, true, err
	}

	surplus := o.safetyCore.Resource.SurplusRatio()
	in := defaultCLOSEInputs(surplus)
	risk := riskFromSurplus(surplus)

	d := o.decisions.Evaluate(ctx, decision.TypeImplementation, "continue autonomous execution", nil, in, risk, len(o.recentErrors))

	switch d.Result {
	case decision.ResultProceed, decision.ResultProceedWithCaution:
		if err := o.state.Transition(ctx, state.DECISION_MADE, state.TransitionOptions{Reason: string(d.Result)}); err != nil {
			return false, true, err
		}
		return true, false, nil
	default:
		return false, true, o.handleBlockedDecision(ctx, d)
	}
}

// handleBlockedDecision implements spec.md §4.13 step 2(c)'s
// unattended->PAUSE, else->BLOCK rule.
func (o *Orchestrator) handleBlockedDecision(ctx context.Context, d decision.Decision) error {
	if o.cfg.Unattended {
		if err := o.state.Transition(ctx, state.PAUSED, state.TransitionOptions{Reason: "decision " + string(d.Result)}); err != nil {
			return err
		}
		o.bus.Publish(ctx, collab.EventSessionPaused, collab.Payload{
			SessionID: o.sessionID,
			Fields:    map[string]any{"reason": d.Reasoning, "decision_id": d.ID},
		})
		return nil
	}
	return o.state.Transition(ctx, state.BLOCKED, state.TransitionOptions{Reason: "decision " + string(d.Result)})
}

// maybeCheckpoint creates a checkpoint ahead of a risky step per the
// configured strategy (spec.md §4.13 "Safety integration", §5
// ordering guarantee 5: checkpoint precedes the operation it guards).
func (o *Orchestrator) maybeCheckpoint(ctx context.Context, reason string) error {
	if !o.checkpoints.ShouldCheckpoint(o.iteration) && !o.cfg.Checkpoint.BeforeRiskyOps {
		return nil
	}
	_, err := o.checkpoints.CreateCheckpoint(ctx, o.sessionID, checkpoint.TypeState, map[string]any{
		"iteration": o.iteration,
		"reason":    reason,
	}, nil, "")
	return err
}

// execute runs spec.md §4.13 step 2(d)-(e): one TDD cycle for the
// next pending requirement, walking EXECUTING->TESTING->
// FIXING/VERIFYING, then recording new errors into the recent-errors
// ring.
func (o *Orchestrator) execute(ctx context.Context) error {
	next := o.nextRequirement()
	if next == nil {
		return nil
	}

	if err := o.state.Transition(ctx, state.EXECUTING, state.TransitionOptions{Reason: "requirement " + next.ID}); err != nil {
		return err
	}

	cycle, err := o.executor.RunCycle(ctx, next.ID, next.Description, o.workingDir)
	if err != nil {
		return fmt.Errorf("orchestrator: run cycle: %w", err)
	}
	o.lastCycleSuccess = cycle.Success

	if err := o.state.Transition(ctx, state.TESTING, state.TransitionOptions{Reason: "cycle complete"}); err != nil {
		return err
	}

	if !cycle.Success {
		o.recordError(fmt.Sprintf("tdd cycle failed for requirement %s", next.ID))
		if err := o.state.Transition(ctx, state.FIXING, state.TransitionOptions{Reason: "cycle did not converge"}); err != nil {
			return err
		}
		if err := o.state.Transition(ctx, state.TESTING, state.TransitionOptions{Reason: "retested after fix attempt"}); err != nil {
			return err
		}
	}

	if err := o.state.Transition(ctx, state.VERIFYING, state.TransitionOptions{Reason: "running verification"}); err != nil {
		return err
	}
	verResult, err := o.executor.RunVerification(ctx, o.workingDir, o.cfg.CoverageThreshold)
	if err != nil {
		return fmt.Errorf("orchestrator: run verification: %w", err)
	}
	o.lastVerificationResult = verResult
	o.metrics.RecordTestRun(boolToCount(cycle.Success), boolToCount(!cycle.Success))

	if !verResult.Success {
		o.recordError(fmt.Sprintf("verification failed for requirement %s: %v", next.ID, verResult.Issues))
		if outcome, rolled := o.rollback.HandleVerificationFailure(ctx, !verResult.TypecheckOK); rolled && o.cfg.AutoRollback {
			_ = outcome
		}
	} else if cycle.Success {
		o.markCompleted(next.ID)
	}

	return nil
}

func boolToCount(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (o *Orchestrator) markCompleted(requirementID string) {
	for i := range o.requirements {
		if o.requirements[i].ID == requirementID {
			o.requirements[i].Status = requirement.StatusCompleted
			return
		}
	}
}

func (o *Orchestrator) nextRequirement() *requirement.Requirement {
	for i := range o.requirements {
		if o.requirements[i].Status != requirement.StatusCompleted {
			return &o.requirements[i]
		}
	}
	return nil
}

func (o *Orchestrator) recordError(msg string) {
	o.recentErrors = append(o.recentErrors, msg)
	if len(o.recentErrors) > recentErrorsCap {
		o.recentErrors = o.recentErrors[len(o.recentErrors)-recentErrorsCap:]
	}
}

// completionCriteria reflects the session's current state into the
// planner's CompletionCriteria shape.
func (o *Orchestrator) completionCriteria(ctx context.Context) planner.CompletionCriteria {
	allCompleted := len(o.requirements) > 0
	for _, r := range o.requirements {
		if r.Status != requirement.StatusCompleted {
			allCompleted = false
			break
		}
	}

	exceeded, axis := o.safetyCore.Resource.Check(ctx)

	return planner.CompletionCriteria{
		RequirementsCompleted: allCompleted,
		TestsPassing:          o.lastCycleSuccess,
		VerificationPassing:   o.lastVerificationResult.Success,
		ResourceExhausted:     exceeded,
		ExhaustedAxis:         axis,
	}
}

// evaluate implements spec.md §4.13 step 2(f): on full completion it
// scores the session, transitions to COMPLETED, and publishes
// session.completed.
func (o *Orchestrator) evaluate(ctx context.Context) (bool, error) {
	if err := o.state.Transition(ctx, state.SCORING, state.TransitionOptions{Reason: "evaluating completion"}); err != nil {
		return false, err
	}

	criteria := o.completionCriteria(ctx)
	analysis := planner.AnalyzeCompletion(criteria)
	o.bus.Publish(ctx, collab.EventCompletionChecked, collab.Payload{
		SessionID: o.sessionID,
		Fields:    map[string]any{"reasons": analysis.Reasons, "can_continue": analysis.CanContinue},
	})

	if !criteria.RequirementsCompleted || !criteria.TestsPassing || !criteria.VerificationPassing {
		return false, nil
	}

	quality := o.metrics.QualityScore()
	craziness, level := o.metrics.CrazinessScore()
	o.bus.Publish(ctx, collab.EventReportGenerated, collab.Payload{
		SessionID: o.sessionID,
		Fields: map[string]any{
			"quality_score":   quality,
			"craziness_score": craziness,
			"autonomy_level":  string(level),
			"iterations":      o.iteration,
		},
	})

	if err := o.state.Transition(ctx, state.COMPLETED, state.TransitionOptions{Reason: "all requirements satisfied"}); err != nil {
		return false, err
	}
	o.bus.Publish(ctx, collab.EventSessionCompleted, collab.Payload{SessionID: o.sessionID})
	_ = o.checkpoints.ClearSession(ctx, o.sessionID)
	return true, nil
}

// planNext implements spec.md §4.13 step 2(g): consults the planner
// and either pauses the session or loops back into PLANNING for
// another iteration. The bool return reports whether Process should
// stop (true) or continue looping (false).
func (o *Orchestrator) planNext(ctx context.Context) (bool, error) {
	criteria := o.completionCriteria(ctx)
	result := planner.Plan(planner.Input{
		PendingRequirements: o.requirements,
		RecentFailures:      o.recentErrors,
		ElapsedIterations:   o.iteration,
		Criteria:            criteria,
		Unattended:          o.cfg.Unattended,
		EnableAutoContinue:  o.cfg.EnableAutoContinue,
	})

	if !result.ShouldContinue {
		if err := o.state.Transition(ctx, state.PAUSED, state.TransitionOptions{Reason: result.Reason}); err != nil {
			return true, err
		}
		o.bus.Publish(ctx, collab.EventSessionPaused, collab.Payload{
			SessionID: o.sessionID,
			Fields:    map[string]any{"reason": result.Reason},
		})
		return true, nil
	}

	if err := o.state.Transition(ctx, state.CONTINUING, state.TransitionOptions{Reason: result.Reason}); err != nil {
		return true, err
	}
	o.bus.Publish(ctx, collab.EventNextStepPlanned, collab.Payload{
		SessionID: o.sessionID,
		Fields:    map[string]any{"next_tasks": len(result.NextTasks), "confidence": result.Confidence, "estimated_cycles": result.EstimatedCycles},
	})
	o.bus.Publish(ctx, collab.EventIterationCompleted, collab.Payload{
		SessionID: o.sessionID,
		Fields:    map[string]any{"iteration": o.iteration},
	})

	return false, o.state.Transition(ctx, state.PLANNING, state.TransitionOptions{Reason: "next iteration"})
}

// handleFailure routes an externally-detected failure through the
// Rollback Manager when auto-rollback is enabled (spec.md §4.13
// "Safety integration").
func (o *Orchestrator) handleFailure(ctx context.Context, trigger rollback.Trigger) (rollback.Outcome, bool) {
	if !o.cfg.AutoRollback {
		return rollback.Outcome{}, false
	}
	outcome := o.rollback.RestoreLatest(ctx, trigger)
	return outcome, outcome.Success
}

// newSessionID is a convenience for callers (e.g. cmd/autocore) that
// need a fresh session identifier before constructing a Request.
func newSessionID() string { return uuid.NewString() }
