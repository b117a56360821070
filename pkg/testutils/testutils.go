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

// Package testutils collects the fakes unit tests across autocore's
// packages build against the external collaborator contracts of
// pkg/collab (spec.md §6): an LLM agent, a sandbox backend, a VCS
// driver, and a KV store.
package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/loopforge/autocore/pkg/collab"
)

// copyViaJSON round-trips v into out through JSON marshaling, the
// same way FakeKV's real sqlite/SQL/etcd counterparts serialize
// values at rest.
func copyViaJSON(v, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal stored value: %w", err)
	}
	return json.Unmarshal(data, out)
}

// FakeAgent returns a canned InvokeResult per AgentName, falling back
// to a default result for personas it was not primed with. It
// records every request it sees for assertions.
type FakeAgent struct {
	mu       sync.Mutex
	Results  map[collab.AgentName]collab.InvokeResult
	Default  collab.InvokeResult
	Requests []collab.InvokeRequest
}

// NewFakeAgent builds a FakeAgent that succeeds by default.
func NewFakeAgent() *FakeAgent {
	return &FakeAgent{
		Results: map[collab.AgentName]collab.InvokeResult{},
		Default: collab.InvokeResult{Success: true},
	}
}

func (f *FakeAgent) Invoke(ctx context.Context, req collab.InvokeRequest) (collab.InvokeResult, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	f.mu.Unlock()

	if r, ok := f.Results[req.Agent]; ok {
		return r, nil
	}
	return f.Default, nil
}

// FakeSandbox executes nothing; it returns a canned ExecResult and
// records every request.
type FakeSandbox struct {
	mu       sync.Mutex
	Result   collab.ExecResult
	Err      error
	Requests []collab.ExecRequest
}

func (f *FakeSandbox) Execute(ctx context.Context, req collab.ExecRequest) (collab.ExecResult, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	f.mu.Unlock()
	return f.Result, f.Err
}

// FakeVCS is an in-memory VCSDriver: commits are just labeled
// snapshots of a monotonically increasing counter, not real trees.
type FakeVCS struct {
	mu      sync.Mutex
	commits []string
	clean   bool
	stashed bool
}

// NewFakeVCS returns a FakeVCS starting from a clean working tree.
func NewFakeVCS() *FakeVCS {
	return &FakeVCS{commits: []string{"initial"}, clean: true}
}

func (f *FakeVCS) GetStatus(ctx context.Context) (collab.VCSStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return collab.VCSStatus{Clean: f.clean, CurrentCommit: f.commits[len(f.commits)-1], CurrentBranch: "main"}, nil
}

func (f *FakeVCS) CreateCommit(ctx context.Context, message string, opts collab.CommitOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := fmt.Sprintf("commit-%d", len(f.commits))
	f.commits = append(f.commits, hash)
	f.clean = true
	return hash, nil
}

func (f *FakeVCS) ResetToCommit(ctx context.Context, hash string, hard bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.commits {
		if c == hash {
			f.commits = f.commits[:i+1]
			f.clean = true
			return nil
		}
	}
	return fmt.Errorf("unknown commit: %s", hash)
}

func (f *FakeVCS) GetCurrentCommit(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits[len(f.commits)-1], nil
}

func (f *FakeVCS) IsClean(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clean, nil
}

func (f *FakeVCS) Stash(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stashed = true
	f.clean = true
	return nil
}

func (f *FakeVCS) Unstash(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stashed {
		return fmt.Errorf("nothing stashed")
	}
	f.stashed = false
	return nil
}

// FakeKV is an in-memory KVStore keyed on the joined path segments.
type FakeKV struct {
	mu   sync.Mutex
	data map[string]any
}

// NewFakeKV returns an empty FakeKV.
func NewFakeKV() *FakeKV { return &FakeKV{data: map[string]any{}} }

func joinKey(key []string) string {
	out := ""
	for i, k := range key {
		if i > 0 {
			out += "/"
		}
		out += k
	}
	return out
}

func (f *FakeKV) Read(ctx context.Context, key []string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[joinKey(key)]
	if !ok {
		return fmt.Errorf("key not found: %s", joinKey(key))
	}
	return copyViaJSON(v, out)
}

func (f *FakeKV) Write(ctx context.Context, key []string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[joinKey(key)] = value
	return nil
}

func (f *FakeKV) Remove(ctx context.Context, key []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, joinKey(key))
	return nil
}

func (f *FakeKV) List(ctx context.Context, prefix []string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := joinKey(prefix)
	var out [][]string
	for k := range f.data {
		if len(p) == 0 || (len(k) >= len(p) && k[:len(p)] == p) {
			out = append(out, splitKey(k))
		}
	}
	return out, nil
}

func splitKey(k string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(k); i++ {
		if k[i] == '/' {
			parts = append(parts, k[start:i])
			start = i + 1
		}
	}
	parts = append(parts, k[start:])
	return parts
}

// RecordedEvent captures one EventBus publication for assertions.
type RecordedEvent struct {
	Def     collab.EventDef
	Payload collab.Payload
}

// EventRecorder subscribes to every event on a bus and records them
// in publish order.
type EventRecorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// NewEventRecorder attaches a recorder to bus via SubscribeAll.
func NewEventRecorder(bus collab.EventBus) *EventRecorder {
	r := &EventRecorder{}
	bus.SubscribeAll(func(_ context.Context, def collab.EventDef, p collab.Payload) {
		r.mu.Lock()
		r.events = append(r.events, RecordedEvent{Def: def, Payload: p})
		r.mu.Unlock()
	})
	return r
}

// Events returns a snapshot of every recorded event.
func (r *EventRecorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Has reports whether def was published at least once.
func (r *EventRecorder) Has(def collab.EventDef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Def == def {
			return true
		}
	}
	return false
}
