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

// Package task implements the Task Queue (C2): a DAG of dependent
// tasks, priority-ordered scheduling bounded by max_concurrent, and
// the state mutators that are the only legal way to move a task
// through its lifecycle.
package task

import "time"

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusBlocked   Status = "blocked"
)

// Priority orders runnable task selection, critical first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// Task is the unit of work the queue schedules (spec.md §3).
type Task struct {
	ID            string
	Subject       string
	Description   string
	Status        Status
	Priority      Priority
	DependencyIDs []string
	DependentIDs  []string
	CreatedAt     time.Time
	StartedAt     time.Time
	CompletedAt   time.Time
	RetryCount    int
	MaxRetries    int
	LastError     string
	TargetAgent   string
	Metadata      map[string]any
}
