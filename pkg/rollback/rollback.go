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

// Package rollback implements the Rollback Manager (C7): checkpoint-
// then-restore-on-failure semantics for mutating operations, plus the
// specialized handlers the Orchestrator dispatches failure triggers to.
package rollback

import (
	"context"
	"sync"
	"time"

	"github.com/loopforge/autocore/pkg/checkpoint"
	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/corerr"
)

// Trigger names why a rollback was requested (spec.md §4.6, §4.10).
type Trigger string

const (
	TriggerTestFailure         Trigger = "test_failure"
	TriggerVerificationFailure Trigger = "verification_failure"
	TriggerResourceExceeded    Trigger = "resource_exceeded"
	TriggerLoopDetected        Trigger = "loop_detected"
	TriggerManual              Trigger = "manual"
)

// Outcome is the result of an attempted rollback.
type Outcome struct {
	Success         bool
	CheckpointID    string
	FilesRestored   []string
	RetryBudgetLeft int
	Err             error
}

const (
	defaultMaxRetries = 2
	defaultMinDelay   = 2 * time.Second
)

// Manager wraps operations with checkpoint-then-restore-on-failure
// semantics (spec.md §4.6).
type Manager struct {
	mu          sync.Mutex
	checkpoints *checkpoint.Manager
	vcs         collab.VCSDriver
	bus         collab.EventBus
	sessionID   string

	maxRetries   int
	minDelay     time.Duration
	retriesUsed  int
	lastRollback time.Time
}

// NewManager constructs a rollback Manager for one session.
func NewManager(sessionID string, checkpoints *checkpoint.Manager, vcs collab.VCSDriver, bus collab.EventBus) *Manager {
	return &Manager{
		sessionID:   sessionID,
		checkpoints: checkpoints,
		vcs:         vcs,
		bus:         bus,
		maxRetries:  defaultMaxRetries,
		minDelay:    defaultMinDelay,
	}
}

// Op is a mutating operation the Rollback Manager can wrap.
type Op func(ctx context.Context) error

// WithRollback creates a pre-op checkpoint, executes op, and on error
// attempts a restore to that checkpoint, returning the restore
// Outcome alongside op's error (spec.md §4.6).
func (m *Manager) WithRollback(ctx context.Context, op Op, trigger Trigger, capturedState map[string]any) (Outcome, error) {
	cp, err := m.checkpoints.CreateCheckpoint(ctx, m.sessionID, checkpoint.TypeState, capturedState, nil, "")
	if err != nil {
		return Outcome{}, &corerr.PersistenceFailureError{Op: "pre-rollback checkpoint", Cause: err}
	}

	opErr := op(ctx)
	if opErr == nil {
		return Outcome{Success: true, CheckpointID: cp.ID}, nil
	}

	outcome := m.restore(ctx, cp, trigger)
	return outcome, opErr
}

// RestoreLatest restores the session's most recent checkpoint without
// re-running any operation. Used by the specialized handlers, which
// are dispatched after a failure has already occurred elsewhere.
func (m *Manager) RestoreLatest(ctx context.Context, trigger Trigger) Outcome {
	cp, err := m.checkpoints.Latest(ctx, m.sessionID)
	if err != nil {
		return Outcome{Success: false, Err: err}
	}
	return m.restore(ctx, cp, trigger)
}

func (m *Manager) restore(ctx context.Context, cp *checkpoint.Checkpoint, trigger Trigger) Outcome {
	m.mu.Lock()
	if !m.lastRollback.IsZero() && time.Since(m.lastRollback) < m.minDelay {
		time.Sleep(m.minDelay - time.Since(m.lastRollback))
	}
	if m.retriesUsed >= m.maxRetries {
		budgetLeft := 0
		m.mu.Unlock()
		outcome := Outcome{Success: false, CheckpointID: cp.ID, RetryBudgetLeft: budgetLeft,
			Err: errRetryBudgetExhausted}
		m.publish(ctx, outcome, trigger)
		return outcome
	}
	m.retriesUsed++
	m.lastRollback = time.Now()
	budgetLeft := m.maxRetries - m.retriesUsed
	m.mu.Unlock()

	var filesRestored []string
	var restoreErr error
	if cp.VCSCommitHash != "" && m.vcs != nil {
		restoreErr = m.vcs.ResetToCommit(ctx, cp.VCSCommitHash, true)
		filesRestored = cp.FilesChanged
	}

	outcome := Outcome{
		Success:         restoreErr == nil,
		CheckpointID:    cp.ID,
		FilesRestored:   filesRestored,
		RetryBudgetLeft: budgetLeft,
		Err:             restoreErr,
	}
	m.publish(ctx, outcome, trigger)
	return outcome
}

func (m *Manager) publish(ctx context.Context, outcome Outcome, trigger Trigger) {
	m.bus.Publish(ctx, collab.EventRollbackPerformed, collab.Payload{
		SessionID: m.sessionID,
		Fields: map[string]any{
			"checkpoint_id":     outcome.CheckpointID,
			"success":           outcome.Success,
			"files_restored":    outcome.FilesRestored,
			"retry_budget_left": outcome.RetryBudgetLeft,
			"trigger":           string(trigger),
		},
	})
}

var errRetryBudgetExhausted = &retryBudgetExhaustedError{}

type retryBudgetExhaustedError struct{}

func (e *retryBudgetExhaustedError) Error() string { return "rollback retry budget exhausted" }
