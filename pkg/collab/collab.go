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

// Package collab defines the focused service interfaces the control
// loop consumes from its surrounding world: an LLM agent client, a
// sandbox execution backend, a VCS driver, a KV store, and the
// in-process event bus. The core depends only on these interfaces;
// concrete adapters live in this package's subdirectories and in
// pkg/testutils for fakes.
package collab

import (
	"context"
	"time"
)

// AgentName identifies one of the fixed set of LLM agent personas the
// core can invoke.
type AgentName string

const (
	AgentCodeReviewer     AgentName = "code-reviewer"
	AgentSecurityReviewer AgentName = "security-reviewer"
	AgentTDDGuide         AgentName = "tdd-guide"
	AgentArchitect        AgentName = "architect"
	AgentExplore          AgentName = "explore"
	AgentGeneral          AgentName = "general"
)

// InvokeRequest is the payload sent to an LLM agent invocation.
type InvokeRequest struct {
	Agent   AgentName
	Task    string
	Context map[string]any
	Options InvokeOptions
}

// InvokeOptions tunes a single agent invocation.
type InvokeOptions struct {
	// Schema, when non-nil, is a JSON Schema the agent's output must
	// validate against (see pkg/collab/schema for generation).
	Schema   any
	MaxRetry int
	Timeout  time.Duration
}

// InvokeResult is the response from an LLM agent invocation.
type InvokeResult struct {
	Success  bool
	Output   string
	Duration time.Duration
	Metadata map[string]any
	Error    error
}

// AgentClient is the collaborator contract for LLM agent invocation
// (spec.md §6).
type AgentClient interface {
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error)
}

// ExecRequest is a sandboxed code execution request.
type ExecRequest struct {
	Language   string
	Code       string
	TimeoutMs  int
	WorkingDir string
	Env        map[string]string
	Limits     ResourceLimits
}

// ResourceLimits bounds a single sandbox execution.
type ResourceLimits struct {
	MemoryMB  int
	CPUShares int
}

// ExecResult is the outcome of a sandboxed code execution.
type ExecResult struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	DurationMs int64
	TimedOut   bool
	Error      error
}

// SandboxBackend is the collaborator contract for isolated code
// execution (spec.md §6, §4.8).
type SandboxBackend interface {
	Execute(ctx context.Context, req ExecRequest) (ExecResult, error)
}

// VCSStatus reports the working tree state.
type VCSStatus struct {
	Clean         bool
	ChangedFiles  []string
	CurrentCommit string
	CurrentBranch string
}

// CommitOptions tunes commit creation.
type CommitOptions struct {
	AddAll     bool
	AllowEmpty bool
}

// VCSDriver is the collaborator contract for version control
// operations used by checkpoint/rollback (spec.md §6, §4.6).
type VCSDriver interface {
	GetStatus(ctx context.Context) (VCSStatus, error)
	CreateCommit(ctx context.Context, message string, opts CommitOptions) (hash string, err error)
	ResetToCommit(ctx context.Context, hash string, hard bool) error
	GetCurrentCommit(ctx context.Context) (string, error)
	IsClean(ctx context.Context) (bool, error)
	Stash(ctx context.Context) error
	Unstash(ctx context.Context) error
}

// KVStore is the collaborator contract for keyed persistence (spec.md
// §6). Keys are path segments, joined the way the teacher's storage
// backends join hierarchical keys (e.g. "autonomous/decisions/p1/d1").
type KVStore interface {
	Read(ctx context.Context, key []string, out any) error
	Write(ctx context.Context, key []string, value any) error
	Remove(ctx context.Context, key []string) error
	List(ctx context.Context, prefix []string) ([][]string, error)
}

// EventDef names one of the fixed events the core publishes (spec.md
// §6). Using a named type (rather than a bare string) catches typos
// of event names at compile time for in-package publishers.
type EventDef string

const (
	EventStateChanged           EventDef = "state.changed"
	EventStateInvalidTransition EventDef = "state.invalid_transition"
	EventSessionStarted         EventDef = "session.started"
	EventSessionCompleted       EventDef = "session.completed"
	EventSessionFailed          EventDef = "session.failed"
	EventSessionPaused          EventDef = "session.paused"
	EventDecisionMade           EventDef = "decision.made"
	EventDecisionBlocked        EventDef = "decision.blocked"
	EventTaskCreated            EventDef = "task.created"
	EventTaskStarted            EventDef = "task.started"
	EventTaskCompleted          EventDef = "task.completed"
	EventTaskFailed             EventDef = "task.failed"
	EventPhaseStarted           EventDef = "phase.started"
	EventPhaseCompleted         EventDef = "phase.completed"
	EventTDDCycleStarted        EventDef = "tdd.cycle_started"
	EventTDDCycleCompleted      EventDef = "tdd.cycle_completed"
	EventCheckpointCreated      EventDef = "checkpoint.created"
	EventRollbackPerformed      EventDef = "rollback.performed"
	EventResourceWarning        EventDef = "resource.warning"
	EventResourceExceeded       EventDef = "resource.exceeded"
	EventLoopDetected           EventDef = "loop.detected"
	EventMetricsUpdated         EventDef = "metrics.updated"
	EventReportGenerated        EventDef = "report.generated"
	EventSafetyTriggered        EventDef = "safety.triggered"
	EventAgentInvoked           EventDef = "agent.invoked"
	EventIterationStarted       EventDef = "iteration.started"
	EventIterationCompleted     EventDef = "iteration.completed"
	EventNextStepPlanned        EventDef = "next_step.planned"
	EventRequirementsUpdated    EventDef = "requirements.updated"
	EventCompletionChecked      EventDef = "completion.checked"
)

// Payload is a typed event payload. SessionID is always present; the
// remaining fields vary by EventDef and are documented at each
// publish call site.
type Payload struct {
	SessionID string
	Fields    map[string]any
}

// EventHandler processes one published event.
type EventHandler func(ctx context.Context, def EventDef, payload Payload)

// EventBus is the collaborator contract for the in-process event bus
// (spec.md §6).
type EventBus interface {
	Publish(ctx context.Context, def EventDef, payload Payload)
	Subscribe(def EventDef, handler EventHandler)
	SubscribeAll(handler EventHandler)
}
