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
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/state"
)

// Manager is the Checkpoint Store (C6): it decides when to checkpoint
// per Config.Strategy, persists through Storage, and evaluates
// SessionCheckpoint recoverability on startup.
type Manager struct {
	cfg     Config
	storage *Storage
	bus     collab.EventBus

	sinceLastCheckpoint int
}

// NewManager constructs a Manager. cfg is defaulted in place.
func NewManager(cfg Config, storage *Storage, bus collab.EventBus) *Manager {
	cfg.SetDefaults()
	return &Manager{cfg: cfg, storage: storage, bus: bus}
}

// ShouldCheckpoint reports whether iteration boundary i warrants an
// interval checkpoint under the configured Strategy (spec.md §4.6).
func (m *Manager) ShouldCheckpoint(i int) bool {
	if !m.cfg.Enabled {
		return false
	}
	switch m.cfg.Strategy {
	case StrategyInterval, StrategyHybrid:
		return m.cfg.Interval > 0 && i > 0 && i%m.cfg.Interval == 0
	default:
		return false
	}
}

// CreateCheckpoint snapshots session state into a Checkpoint of the
// given Type and persists it, publishing checkpoint.created.
func (m *Manager) CreateCheckpoint(ctx context.Context, sessionID string, typ Type, capturedState map[string]any, filesChanged []string, vcsCommitHash string) (*Checkpoint, error) {
	if !m.cfg.Enabled {
		return nil, fmt.Errorf("checkpoint: checkpointing disabled")
	}

	cp := &Checkpoint{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		Type:          typ,
		CreatedAt:     time.Now(),
		CapturedState: capturedState,
		FilesChanged:  filesChanged,
		VCSCommitHash: vcsCommitHash,
		Metadata:      map[string]any{"schema_version": CurrentSchemaVersion},
	}
	if err := m.storage.SaveCheckpoint(ctx, cp); err != nil {
		return nil, err
	}

	m.bus.Publish(ctx, collab.EventCheckpointCreated, collab.Payload{
		SessionID: sessionID,
		Fields:    map[string]any{"checkpoint_id": cp.ID, "type": string(typ)},
	})
	return cp, nil
}

// SaveSession writes the single recoverable SessionCheckpoint for a
// session, overwriting any prior one.
func (m *Manager) SaveSession(ctx context.Context, sc SessionCheckpoint) error {
	sc.Timestamp = time.Now()
	return m.storage.SaveSession(ctx, &sc)
}

// recoverabilityDecision records why a SessionCheckpoint was or was
// not deemed recoverable, for logging and for the orchestrator's
// startup report.
type recoverabilityDecision struct {
	SessionID   string
	Recoverable bool
	Reason      string
}

// Recoverable applies spec.md §3's recoverability rule: the session
// state is not a non-recoverable terminal state (PAUSED and BLOCKED
// remain eligible), the checkpoint's age is at most the configured
// MaxAgeDays, and the working directory still exists.
//
// Existence of WorkingDir is checked with a plain os.Stat: the working
// tree itself, not its git identity, is what matters for resuming
// shell/sandbox execution there.
func (m *Manager) Recoverable(sc *SessionCheckpoint) recoverabilityDecision {
	d := recoverabilityDecision{SessionID: sc.SessionID}

	if s := state.State(sc.SessionState); state.IsTerminal(s) && !state.IsRecoverable(s) {
		d.Reason = "session state is terminal and not recoverable"
		return d
	}

	maxAge := time.Duration(m.cfg.Recovery.MaxAgeDays) * 24 * time.Hour
	if time.Since(sc.Timestamp) > maxAge {
		d.Reason = "checkpoint exceeds max recoverable age"
		return d
	}

	if sc.WorkingDir == "" {
		d.Reason = "no working directory recorded"
		return d
	}
	if _, err := os.Stat(sc.WorkingDir); err != nil {
		d.Reason = fmt.Sprintf("working directory unavailable: %v", err)
		return d
	}

	d.Recoverable = true
	d.Reason = "eligible"
	return d
}

// RecoverOnStartup scans all persisted SessionCheckpoints and returns
// the ones still recoverable, in no particular order. Callers that
// want auto-resume should gate this on Config.Recovery.AutoResume.
func (m *Manager) RecoverOnStartup(ctx context.Context) ([]*SessionCheckpoint, error) {
	ids, err := m.storage.ListRecoverableSessions(ctx)
	if err != nil {
		return nil, err
	}

	var out []*SessionCheckpoint
	for _, id := range ids {
		sc, err := m.storage.LoadSession(ctx, id)
		if err != nil {
			continue
		}
		if m.Recoverable(sc).Recoverable {
			out = append(out, sc)
		}
	}
	return out, nil
}

// ClearSession removes a session's persisted checkpoint once it
// reaches a terminal state.
func (m *Manager) ClearSession(ctx context.Context, sessionID string) error {
	return m.storage.ClearSession(ctx, sessionID)
}

// Latest returns the most recently created operation-level Checkpoint
// for a session, used by the Rollback Manager to restore without
// re-running the operation that already failed.
func (m *Manager) Latest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	return m.storage.Latest(ctx, sessionID)
}
