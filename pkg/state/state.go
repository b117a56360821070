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

// Package state implements the session state machine: a fixed set of
// work and terminal states, an allow-list transition table, and
// ordered, awaited state-change handlers.
package state

import (
	"context"
	"time"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/corerr"
)

// State is one of the session's work or terminal states.
type State string

const (
	IDLE          State = "IDLE"
	PLANNING      State = "PLANNING"
	PLAN_APPROVED State = "PLAN_APPROVED"
	EXECUTING     State = "EXECUTING"
	TESTING       State = "TESTING"
	VERIFYING     State = "VERIFYING"
	DECIDING      State = "DECIDING"
	DECISION_MADE State = "DECISION_MADE"
	FIXING        State = "FIXING"
	RETRYING      State = "RETRYING"
	EVALUATING    State = "EVALUATING"
	SCORING       State = "SCORING"
	CHECKPOINTING State = "CHECKPOINTING"
	ROLLING_BACK  State = "ROLLING_BACK"
	CONTINUING    State = "CONTINUING"

	// Terminal states. PAUSED and BLOCKED are recoverable: a resume
	// transition is permitted out of them.
	COMPLETED  State = "COMPLETED"
	FAILED     State = "FAILED"
	PAUSED     State = "PAUSED"
	BLOCKED    State = "BLOCKED"
	TERMINATED State = "TERMINATED"
)

var terminalStates = map[State]bool{
	COMPLETED:  true,
	FAILED:     true,
	PAUSED:     true,
	BLOCKED:    true,
	TERMINATED: true,
}

// IsTerminal reports whether s is one of the five terminal states.
func IsTerminal(s State) bool { return terminalStates[s] }

// recoverableStates are terminal states a resume transition may leave.
var recoverableStates = map[State]bool{
	PAUSED:  true,
	BLOCKED: true,
}

// IsRecoverable reports whether a session parked in s may resume.
func IsRecoverable(s State) bool { return recoverableStates[s] }

// transitions is the full allow-list table (spec.md §4.1). TERMINATED
// has no successors.
var transitions = map[State][]State{
	IDLE:          {PLANNING, TERMINATED},
	PLANNING:      {PLAN_APPROVED, DECIDING, FAILED, PAUSED},
	PLAN_APPROVED: {EXECUTING, DECIDING, FAILED, PAUSED},
	EXECUTING:     {TESTING, DECIDING, CHECKPOINTING, FIXING, FAILED, PAUSED},
	TESTING:       {VERIFYING, FIXING, DECIDING, FAILED, PAUSED},
	VERIFYING:     {SCORING, FIXING, DECIDING, FAILED, PAUSED},
	DECIDING:      {DECISION_MADE, PAUSED, BLOCKED, FAILED},
	DECISION_MADE: {EXECUTING, ROLLING_BACK, CHECKPOINTING, SCORING, PAUSED, FAILED},
	FIXING:        {RETRYING, TESTING, FAILED, PAUSED},
	RETRYING:      {EXECUTING, TESTING, FAILED, PAUSED},
	EVALUATING:    {SCORING, DECIDING, FAILED, PAUSED},
	SCORING:       {COMPLETED, CONTINUING, FAILED, PAUSED},
	CHECKPOINTING: {EXECUTING, DECIDING, SCORING, FAILED, PAUSED},
	ROLLING_BACK:  {EXECUTING, PLANNING, FAILED, PAUSED},
	CONTINUING:    {PLANNING, EXECUTING, DECIDING, COMPLETED, FAILED, PAUSED},
	COMPLETED:     {},
	FAILED:        {},
	PAUSED:        {PLANNING, EXECUTING, DECIDING, TERMINATED},
	BLOCKED:       {PLANNING, DECIDING, TERMINATED},
	TERMINATED:    {},
}

// TransitionOptions carries the metadata a transition records.
type TransitionOptions struct {
	Reason   string
	Metadata map[string]any
}

// ChangeHandler observes a completed transition. Handlers registered
// on a Machine are awaited, in registration order, before
// transition() returns (spec.md §4.1).
type ChangeHandler func(ctx context.Context, from, to State, opts TransitionOptions)

// Machine is the session state machine. transition() is its only
// mutator.
type Machine struct {
	sessionID string
	current   State
	enteredAt time.Time
	previous  State
	bus       collab.EventBus
	handlers  []ChangeHandler
}

// New constructs a Machine in the initial IDLE state.
func New(sessionID string, bus collab.EventBus) *Machine {
	return &Machine{
		sessionID: sessionID,
		current:   IDLE,
		enteredAt: time.Now(),
		bus:       bus,
	}
}

// Current returns the state the machine currently occupies.
func (m *Machine) Current() State { return m.current }

// Previous returns the state occupied before the most recent
// successful transition.
func (m *Machine) Previous() State { return m.previous }

// EnteredAt returns when the current state was entered.
func (m *Machine) EnteredAt() time.Time { return m.enteredAt }

// OnChange registers a handler invoked after every successful
// transition, in registration order.
func (m *Machine) OnChange(h ChangeHandler) {
	m.handlers = append(m.handlers, h)
}

// Allowed reports whether a transition from the current state to to
// is permitted.
func (m *Machine) Allowed(to State) bool {
	for _, s := range transitions[m.current] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition attempts to move the machine to to. On success it
// updates state, records the previous state and enter time, publishes
// state.changed, and awaits every registered handler in order. On
// failure it publishes state.invalid_transition, leaves state
// unchanged, and returns an *corerr.InvalidTransitionError.
func (m *Machine) Transition(ctx context.Context, to State, opts TransitionOptions) error {
	if !m.Allowed(to) {
		reason := opts.Reason
		if reason == "" {
			reason = "transition not in allow-list"
		}
		m.bus.Publish(ctx, collab.EventStateInvalidTransition, collab.Payload{
			SessionID: m.sessionID,
			Fields: map[string]any{
				"from":   string(m.current),
				"to":     string(to),
				"reason": reason,
			},
		})
		return &corerr.InvalidTransitionError{From: string(m.current), To: string(to), Reason: reason}
	}

	from := m.current
	m.previous = from
	m.current = to
	m.enteredAt = time.Now()

	m.bus.Publish(ctx, collab.EventStateChanged, collab.Payload{
		SessionID: m.sessionID,
		Fields: map[string]any{
			"from":     string(from),
			"to":       string(to),
			"reason":   opts.Reason,
			"metadata": opts.Metadata,
		},
	})

	for _, h := range m.handlers {
		h(ctx, from, to, opts)
	}
	return nil
}
