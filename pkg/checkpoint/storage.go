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

package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/loopforge/autocore/pkg/collab"
)

// Storage persists Checkpoints and SessionCheckpoints through a
// collab.KVStore, under the hierarchical layout spec.md §6 names:
// autonomous/checkpoints/{sessionID}/{checkpointID} for operation-level
// checkpoints, and autonomous/sessions/{sessionID} for the single
// recoverable SessionCheckpoint per session.
type Storage struct {
	kv collab.KVStore
}

// NewStorage wraps a KVStore for checkpoint persistence.
func NewStorage(kv collab.KVStore) *Storage {
	return &Storage{kv: kv}
}

func checkpointKey(sessionID, id string) []string {
	return []string{"autonomous", "checkpoints", sessionID, id}
}

func sessionKey(sessionID string) []string {
	return []string{"autonomous", "sessions", sessionID}
}

// SaveCheckpoint persists an operation-level Checkpoint.
func (s *Storage) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if cp.ID == "" {
		return fmt.Errorf("checkpoint: id is required")
	}
	if cp.SessionID == "" {
		return fmt.Errorf("checkpoint: session id is required")
	}
	if err := s.kv.Write(ctx, checkpointKey(cp.SessionID, cp.ID), cp); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", cp.ID, err)
	}
	slog.Debug("checkpoint saved", "session_id", cp.SessionID, "checkpoint_id", cp.ID, "type", cp.Type)
	return nil
}

// Latest returns the most recently created Checkpoint for a session.
func (s *Storage) Latest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	keys, err := s.kv.List(ctx, []string{"autonomous", "checkpoints", sessionID})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list %s: %w", sessionID, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("checkpoint: no checkpoints for session %s", sessionID)
	}

	var all []*Checkpoint
	for _, k := range keys {
		var cp Checkpoint
		if err := s.kv.Read(ctx, k, &cp); err != nil {
			continue
		}
		all = append(all, &cp)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("checkpoint: no readable checkpoints for session %s", sessionID)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all[0], nil
}

// SaveSession persists the single recoverable SessionCheckpoint.
func (s *Storage) SaveSession(ctx context.Context, sc *SessionCheckpoint) error {
	if sc.SessionID == "" {
		return fmt.Errorf("checkpoint: session id is required")
	}
	sc.Metadata.SchemaVersion = CurrentSchemaVersion
	sc.Metadata.LastModifiedAt = sc.Timestamp
	if err := s.kv.Write(ctx, sessionKey(sc.SessionID), sc); err != nil {
		return fmt.Errorf("checkpoint: save session %s: %w", sc.SessionID, err)
	}
	slog.Debug("session checkpoint saved", "session_id", sc.SessionID, "iteration", sc.Iteration, "state", sc.SessionState)
	return nil
}

// LoadSession retrieves the SessionCheckpoint for a session, if any.
func (s *Storage) LoadSession(ctx context.Context, sessionID string) (*SessionCheckpoint, error) {
	var sc SessionCheckpoint
	if err := s.kv.Read(ctx, sessionKey(sessionID), &sc); err != nil {
		return nil, fmt.Errorf("checkpoint: load session %s: %w", sessionID, err)
	}
	if sc.Metadata.SchemaVersion != CurrentSchemaVersion {
		return nil, fmt.Errorf("checkpoint: session %s has unsupported schema version %d", sessionID, sc.Metadata.SchemaVersion)
	}
	return &sc, nil
}

// ClearSession removes a session's SessionCheckpoint, used once a
// session reaches a terminal state.
func (s *Storage) ClearSession(ctx context.Context, sessionID string) error {
	if err := s.kv.Remove(ctx, sessionKey(sessionID)); err != nil {
		return fmt.Errorf("checkpoint: clear session %s: %w", sessionID, err)
	}
	return nil
}

// ListRecoverableSessions returns the session IDs with a persisted
// SessionCheckpoint under the autonomous/sessions/ prefix.
func (s *Storage) ListRecoverableSessions(ctx context.Context) ([]string, error) {
	keys, err := s.kv.List(ctx, []string{"autonomous", "sessions"})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list sessions: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if len(k) == 0 {
			continue
		}
		ids = append(ids, k[len(k)-1])
	}
	return ids, nil
}
