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
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/loopforge/autocore/pkg/checkpoint"
	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/collab/agent"
	"github.com/loopforge/autocore/pkg/collab/vcs"
	"github.com/loopforge/autocore/pkg/config"
	"github.com/loopforge/autocore/pkg/executor"
	"github.com/loopforge/autocore/pkg/logger"
	"github.com/loopforge/autocore/pkg/orchestrator"
)

// RunCmd starts a fresh autonomous-execution session.
type RunCmd struct {
	Request    string `arg:"" help:"The task request to execute autonomously."`
	WorkingDir string `help:"Working directory the session operates in." default:"."`
	AgentAddr  string `name:"agent-addr" help:"gRPC address of the agent-invocation service." default:"localhost:50051"`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadAndLog(cli)
	if err != nil {
		return err
	}

	orch, kvStore, err := buildOrchestrator(cfg, c.AgentAddr, c.WorkingDir)
	if err != nil {
		return err
	}
	defer kvStore.Close()

	sessionID := uuid.NewString()
	slog.Info("starting session", "session_id", sessionID)

	if err := orch.Start(ctx, orchestrator.Request{
		SessionID:  sessionID,
		Text:       c.Request,
		WorkingDir: c.WorkingDir,
	}); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	return runToTerminal(ctx, orch)
}

// ResumeCmd resumes a session previously paused or interrupted,
// replaying its original request against a fresh Orchestrator. Task
// and requirement progress is not restored from the checkpoint in
// this command; only the original request and working directory are
// (see DESIGN.md's note on checkpoint-level vs. session-level resume).
type ResumeCmd struct {
	SessionID string `arg:"" help:"Session ID to resume."`
	AgentAddr string `name:"agent-addr" help:"gRPC address of the agent-invocation service." default:"localhost:50051"`
}

func (c *ResumeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

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
	sc, err := storage.LoadSession(ctx, c.SessionID)
	if err != nil {
		return fmt.Errorf("load session checkpoint: %w", err)
	}

	orch, kvStore, err := buildOrchestrator(cfg, c.AgentAddr, sc.WorkingDir)
	if err != nil {
		return err
	}
	defer kvStore.Close()

	slog.Info("resuming session", "session_id", c.SessionID, "iteration", sc.Iteration)

	if err := orch.Start(ctx, orchestrator.Request{
		SessionID:  c.SessionID,
		Text:       sc.OriginalRequest,
		WorkingDir: sc.WorkingDir,
	}); err != nil {
		return fmt.Errorf("restart session: %w", err)
	}

	return runToTerminal(ctx, orch)
}

func runToTerminal(ctx context.Context, orch *orchestrator.Orchestrator) error {
	final, err := orch.Process(ctx)
	if err != nil {
		return fmt.Errorf("process session: %w", err)
	}
	slog.Info("session ended", "state", string(final))
	return nil
}

func loadAndLog(cli *CLI) (*config.Config, error) {
	cfg, err := config.Load(config.LoaderOptions{Type: config.SourceFile, Path: cli.Config})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyOverrides(cfg, cli.Set); err != nil {
		return nil, err
	}

	level := cli.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	format := cli.LogFormat
	if format == "" {
		format = cfg.Logging.Format
	}
	slog.SetDefault(logger.New(logger.Config{Level: level, Format: format}))

	return cfg, nil
}

func buildOrchestrator(cfg *config.Config, agentAddr, workingDir string) (*orchestrator.Orchestrator, closableKV, error) {
	bus := collab.NewInProcessBus()

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	conn, err := grpc.NewClient(agentAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("dial agent service: %w", err)
	}
	agentClient := agent.NewGRPCClient(conn)

	vcsDriver := vcs.NewGitDriver(workingDir)

	orch := orchestrator.New(uuid.NewString(), bus, agentClient, vcsDriver, store,
		executor.CommandTestRunner{Command: []string{"go", "test", "./..."}, Timeout: 5 * time.Minute},
		executor.CommandVerifier{TypecheckCommand: []string{"go", "vet", "./..."}},
		orchestrator.Config{
			Autonomy:           cfg.Autonomy,
			Unattended:         cfg.Session.Unattended,
			EnableAutoContinue: cfg.Session.EnableAutoContinue,
			AutoRollback:       cfg.Session.AutoRollback,
			MaxConcurrentTasks: cfg.Session.MaxConcurrentTasks,
			CoverageThreshold:  cfg.Session.CoverageThreshold,
			ResourceBudget:     cfg.Resources,
			AutoBreakLoops:     cfg.Session.AutoBreakLoops,
			Checkpoint:         cfg.Checkpoint,
			Metrics:            cfg.Metrics,
		},
	)

	return orch, store, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()
	return ctx, cancel
}
