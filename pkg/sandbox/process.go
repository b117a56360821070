package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/loopforge/autocore/pkg/collab"
)

// maxCapturedOutput bounds stdout/stderr capture, per spec.md §4.8.
const maxCapturedOutput = 100 * 1024

// interpreterFor maps a language to its invocation, mirroring the
// teacher's shell-out pattern in pkg/tools/command.go.
var interpreterFor = map[string][]string{
	"python":     {"python3", "-c"},
	"javascript": {"node", "-e"},
	"shell":      {"sh", "-c"},
}

// ProcessBackend runs code by spawning a language interpreter
// directly on the host, after pattern-based validation and
// environment scrubbing (spec.md §4.8 "Process").
type ProcessBackend struct{}

// NewProcessBackend returns a ready-to-use process backend.
func NewProcessBackend() *ProcessBackend { return &ProcessBackend{} }

// DefaultTimeoutMs is the deadline a caller should pass when it has
// no specific timeout in mind. TimeoutMs: 0 is not shorthand for this
// default — it is a distinct "run with a zero deadline" request
// (spec.md §8) that Execute honors as an immediate timeout.
const DefaultTimeoutMs = 30000

// Execute runs req.Code under the interpreter for req.Language.
func (b *ProcessBackend) Execute(ctx context.Context, req collab.ExecRequest) (collab.ExecResult, error) {
	if req.TimeoutMs == 0 {
		return collab.ExecResult{TimedOut: true, ExitCode: 124}, nil
	}

	if err := ValidateCode(req.Language, req.Code); err != nil {
		return collab.ExecResult{ExitCode: 1, Error: err}, err
	}

	interp, ok := interpreterFor[req.Language]
	if !ok {
		err := errors.New("unsupported language for process backend: " + req.Language)
		return collab.ExecResult{ExitCode: 1, Error: err}, err
	}

	deadline := time.Duration(req.TimeoutMs) * time.Millisecond
	execCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	args := append(append([]string{}, interp[1:]...), req.Code)
	cmd := exec.CommandContext(execCtx, interp[0], args...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	} else {
		cmd.Dir = os.TempDir()
	}
	cmd.Env = envSlice(FilterEnv(req.Env))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &capWriter{buf: &stdout, limit: maxCapturedOutput}
	cmd.Stderr = &capWriter{buf: &stderr, limit: maxCapturedOutput}

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := collab.ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration.Milliseconds(),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = 124
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if runErr != nil {
		result.Error = runErr
		result.ExitCode = 1
		return result, runErr
	}
	return result, nil
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// capWriter truncates writes once limit bytes have been buffered,
// so a runaway process cannot exhaust memory via stdout/stderr.
type capWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *capWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
	} else {
		w.buf.Write(p)
	}
	return len(p), nil
}
