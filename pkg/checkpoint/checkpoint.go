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

// Package checkpoint implements the Checkpoint Store (C6): operation-
// level Checkpoints that snapshot session state ahead of a risky step,
// and the session-level SessionCheckpoint used for crash/interrupt
// recovery.
package checkpoint

import "time"

// Type is why a Checkpoint was created.
type Type string

const (
	TypeState  Type = "state"
	TypeVCS    Type = "vcs"
	TypeManual Type = "manual"
)

// Checkpoint is an operation-level snapshot (spec.md §3). Ordered by
// CreatedAt; the Store's Latest() returns the most recent.
type Checkpoint struct {
	ID            string
	SessionID     string
	Type          Type
	CreatedAt     time.Time
	CapturedState map[string]any
	FilesChanged  []string
	VCSCommitHash string
	Metadata      map[string]any
}

// CheckpointMetadata is the schema-versioned envelope persisted
// alongside a SessionCheckpoint (spec.md §6: "every persisted record
// includes a schema version").
type CheckpointMetadata struct {
	SchemaVersion   int
	CreatedAt       time.Time
	LastModifiedAt  time.Time
	InterruptReason string
}

// CurrentSchemaVersion is the schema version new records are written
// with. Readers reject unknown versions (spec.md §6).
const CurrentSchemaVersion = 1

// SessionCheckpoint is the recoverable snapshot used for session
// resumption (spec.md §3).
type SessionCheckpoint struct {
	SessionID               string
	Timestamp               time.Time
	SessionState            string // serialized state.State
	Iteration               int
	PendingTaskIDs          []string
	CompletedRequirementIDs []string
	RecentErrorMessages     []string
	ResourceUsageSnapshot   map[string]any
	WorkingDir              string
	OriginalRequest         string
	Agent                   string
	Metadata                CheckpointMetadata
}
