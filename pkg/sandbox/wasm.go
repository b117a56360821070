package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/loopforge/autocore/pkg/collab"
)

// wasmTimeoutSentinel is the interrupt value passed to goja when a
// deadline elapses; recovered in Execute to produce exit code 124.
const wasmTimeoutSentinel = "autocore: execution deadline exceeded"

// WASMBackend runs JavaScript in an embedded, sandboxed interpreter
// loaded once and reused across executions (spec.md §4.8 "WASM"):
// call-stack depth capped at 256 frames (no memory limit is set),
// console.log/error/warn captured, an interrupt handler aborts on
// deadline, globals may be injected.
type WASMBackend struct {
	mu      sync.Mutex
	runtime *goja.Runtime
}

// NewWASMBackend constructs and primes the embedded JS engine.
func NewWASMBackend() *WASMBackend {
	rt := goja.New()
	rt.SetMaxCallStackSize(256)
	return &WASMBackend{runtime: rt}
}

// DefaultWASMTimeoutMs is the deadline a caller should pass when it
// has no specific timeout in mind. TimeoutMs: 0 is not shorthand for
// this default — it is a distinct "run with a zero deadline" request
// (spec.md §8) that Execute honors as an immediate timeout.
const DefaultWASMTimeoutMs = 10000

// Execute runs req.Code as JavaScript, capturing console output and
// enforcing req.TimeoutMs via an interrupt.
func (b *WASMBackend) Execute(ctx context.Context, req collab.ExecRequest) (collab.ExecResult, error) {
	if req.TimeoutMs == 0 {
		return collab.ExecResult{TimedOut: true, ExitCode: 124}, nil
	}
	if req.Language != "javascript" {
		return collab.ExecResult{}, fmt.Errorf("unsupported language for wasm backend: %s", req.Language)
	}
	if err := ValidateCode(req.Language, req.Code); err != nil {
		return collab.ExecResult{ExitCode: 1, Error: err}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var stdout, stderr strings.Builder
	b.bindConsole(&stdout, &stderr)
	for name, val := range req.Env {
		b.runtime.Set(name, val)
	}

	deadline := time.Duration(req.TimeoutMs) * time.Millisecond

	timer := time.AfterFunc(deadline, func() {
		b.runtime.Interrupt(wasmTimeoutSentinel)
	})
	defer timer.Stop()

	start := time.Now()
	_, err := b.runtime.RunString(req.Code)
	duration := time.Since(start)

	result := collab.ExecResult{
		Stdout:     truncate(stdout.String(), maxCapturedOutput),
		Stderr:     truncate(stderr.String(), maxCapturedOutput),
		DurationMs: duration.Milliseconds(),
	}

	if interrupted, ok := err.(*goja.InterruptedError); ok && fmt.Sprint(interrupted.Value()) == wasmTimeoutSentinel {
		result.TimedOut = true
		result.ExitCode = 124
		return result, nil
	}
	if err != nil {
		result.ExitCode = 1
		result.Stderr = truncate(result.Stderr+"\n"+err.Error(), maxCapturedOutput)
		return result, nil
	}
	return result, nil
}

func (b *WASMBackend) bindConsole(stdout, stderr *strings.Builder) {
	console := b.runtime.NewObject()
	log := func(buf *strings.Builder) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			buf.WriteString(strings.Join(parts, " "))
			buf.WriteString("\n")
			return goja.Undefined()
		}
	}
	console.Set("log", log(stdout))
	console.Set("warn", log(stderr))
	console.Set("error", log(stderr))
	b.runtime.Set("console", console)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
