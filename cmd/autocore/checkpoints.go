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

package main

import (
	"context"
	"fmt"

	"github.com/loopforge/autocore/pkg/checkpoint"
)

// CheckpointsCmd groups checkpoint inspection subcommands.
type CheckpointsCmd struct {
	List CheckpointsListCmd `cmd:"" help:"List sessions with a recoverable checkpoint."`
	Show CheckpointsShowCmd `cmd:"" help:"Show the latest checkpoint for a session."`
}

// CheckpointsListCmd lists every session with a persisted
// SessionCheckpoint, i.e. every session RecoverOnStartup would offer
// to resume.
type CheckpointsListCmd struct{}

func (c *CheckpointsListCmd) Run(cli *CLI) error {
	cfg, err := loadAndLog(cli)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	storage := checkpoint.NewStorage(store)
	sessions, err := checkpoint.NewManager(cfg.Checkpoint, storage, nil).RecoverOnStartup(context.Background())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("no recoverable sessions")
		return nil
	}
	for _, sc := range sessions {
		fmt.Println(sc.SessionID)
	}
	return nil
}

// CheckpointsShowCmd prints the most recent operation-level Checkpoint
// and the SessionCheckpoint for one session.
type CheckpointsShowCmd struct {
	SessionID string `arg:"" help:"Session ID to inspect."`
}

func (c *CheckpointsShowCmd) Run(cli *CLI) error {
	cfg, err := loadAndLog(cli)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	storage := checkpoint.NewStorage(store)

	sc, err := storage.LoadSession(ctx, c.SessionID)
	if err != nil {
		return fmt.Errorf("load session checkpoint: %w", err)
	}
	fmt.Printf("session:    %s\n", sc.SessionID)
	fmt.Printf("state:      %s\n", sc.SessionState)
	fmt.Printf("iteration:  %d\n", sc.Iteration)
	fmt.Printf("working_dir: %s\n", sc.WorkingDir)
	fmt.Printf("pending_tasks: %d\n", len(sc.PendingTaskIDs))
	fmt.Printf("completed_requirements: %d\n", len(sc.CompletedRequirementIDs))

	latest, err := storage.Latest(ctx, c.SessionID)
	if err != nil {
		fmt.Println("no operation-level checkpoints recorded")
		return nil
	}
	fmt.Printf("latest_checkpoint: %s (%s) at %s\n", latest.ID, latest.Type, latest.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
