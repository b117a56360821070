package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/loopforge/autocore/pkg/collab"
)

// containerImageFor maps a language to the image used to run it.
var containerImageFor = map[string]string{
	"python":     "python:3.12-alpine",
	"javascript": "node:20-alpine",
	"shell":      "alpine:3.20",
}

// ContainerBackend runs code in a fresh, auto-removed, locked-down
// container (spec.md §4.8 "Container"): read-only root filesystem
// plus tmpfs scratch, CPU shares, a memory cap and a PID limit (no
// file-descriptor limit or swap setting is applied), dropped
// capabilities, no-new-privileges, and network disabled unless
// explicitly allowed.
type ContainerBackend struct {
	cli           *client.Client
	allowNetwork  bool
	pullIfMissing bool
}

// NewContainerBackend connects to the local Docker daemon.
func NewContainerBackend(allowNetwork bool) (*ContainerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect docker daemon: %w", err)
	}
	return &ContainerBackend{cli: cli, allowNetwork: allowNetwork, pullIfMissing: true}, nil
}

// Execute runs req.Code inside a fresh container.
func (b *ContainerBackend) Execute(ctx context.Context, req collab.ExecRequest) (collab.ExecResult, error) {
	if req.TimeoutMs == 0 {
		return collab.ExecResult{TimedOut: true, ExitCode: 124}, nil
	}

	img, ok := containerImageFor[req.Language]
	if !ok {
		return collab.ExecResult{}, fmt.Errorf("unsupported language for container backend: %s", req.Language)
	}

	interp, ok := interpreterFor[req.Language]
	if !ok {
		return collab.ExecResult{}, fmt.Errorf("no interpreter registered for %s", req.Language)
	}

	if b.pullIfMissing {
		reader, err := b.cli.ImagePull(ctx, img, image.PullOptions{})
		if err == nil {
			io.Copy(io.Discard, reader)
			reader.Close()
		}
	}

	networkMode := container.NetworkMode("none")
	if b.allowNetwork {
		networkMode = container.NetworkMode("bridge")
	}

	memBytes := int64(req.Limits.MemoryMB) * 1024 * 1024
	if memBytes <= 0 {
		memBytes = 256 * 1024 * 1024
	}
	cpuShares := int64(req.Limits.CPUShares)
	if cpuShares <= 0 {
		cpuShares = 512
	}

	cmd := append(append([]string{}, interp[1:]...), req.Code)
	resp, err := b.cli.ContainerCreate(ctx, &container.Config{
		Image:      img,
		Cmd:        append([]string{interp[0]}, cmd...),
		Env:        envSlice(FilterEnv(req.Env)),
		WorkingDir: "/workspace",
	}, &container.HostConfig{
		AutoRemove:     true,
		ReadonlyRootfs: true,
		NetworkMode:    networkMode,
		Resources: container.Resources{
			Memory:    memBytes,
			CPUShares: cpuShares,
			PidsLimit: int64Ptr(64),
		},
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		Tmpfs:       map[string]string{"/workspace": "rw,size=64m"},
	}, nil, nil, "")
	if err != nil {
		return collab.ExecResult{}, fmt.Errorf("create container: %w", err)
	}

	deadline := time.Duration(req.TimeoutMs) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	if err := b.cli.ContainerStart(runCtx, resp.ID, container.StartOptions{}); err != nil {
		return collab.ExecResult{}, fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := b.cli.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	var timedOut bool
	select {
	case err := <-errCh:
		if runCtx.Err() != nil {
			timedOut = true
			exitCode = 124
		} else if err != nil {
			return collab.ExecResult{}, fmt.Errorf("wait container: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}
	duration := time.Since(start)

	logs, err := b.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	var stdout, stderr bytes.Buffer
	if err == nil {
		stdcopy.StdCopy(
			&capWriter{buf: &stdout, limit: maxCapturedOutput},
			&capWriter{buf: &stderr, limit: maxCapturedOutput},
			logs)
		logs.Close()
	}

	return collab.ExecResult{
		ExitCode:   exitCode,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration.Milliseconds(),
		TimedOut:   timedOut,
	}, nil
}

func int64Ptr(v int64) *int64 { return &v }
