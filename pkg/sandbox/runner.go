package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/loopforge/autocore/pkg/collab"
)

// Backend selection modes.
const (
	BackendAuto      = "auto"
	BackendProcess   = "process"
	BackendContainer = "container"
	BackendWASM      = "wasm"
)

// Outcome classifies an execution for executeWithReflection
// (spec.md §4.8).
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeSyntax     Outcome = "syntax"
	OutcomeDependency Outcome = "dependency"
	OutcomeRuntime    Outcome = "runtime"
	OutcomeUnknown    Outcome = "unknown"
)

// Runner selects a backend per request and, via ExecuteWithReflection,
// classifies failures and retries with known patches.
type Runner struct {
	Process   collab.SandboxBackend
	Container collab.SandboxBackend // nil if no container runtime is available
	WASM      collab.SandboxBackend

	// Mode is the configured backend selection: auto, process,
	// container, or wasm.
	Mode string

	OnReflection func(outcome Outcome, patch string)
}

// NewRunner wires the three backends with auto-selection mode.
func NewRunner(process, container, wasm collab.SandboxBackend) *Runner {
	return &Runner{Process: process, Container: container, WASM: wasm, Mode: BackendAuto}
}

// Execute dispatches req to the selected backend (spec.md §4.8).
func (r *Runner) Execute(ctx context.Context, req collab.ExecRequest) (collab.ExecResult, error) {
	backend, err := r.selectBackend(req)
	if err != nil {
		return collab.ExecResult{}, err
	}
	return backend.Execute(ctx, req)
}

func (r *Runner) selectBackend(req collab.ExecRequest) (collab.SandboxBackend, error) {
	mode := r.Mode
	if mode == "" {
		mode = BackendAuto
	}

	switch mode {
	case BackendProcess:
		return r.Process, nil
	case BackendContainer:
		if r.Container == nil {
			return nil, fmt.Errorf("container backend requested but unavailable")
		}
		return r.Container, nil
	case BackendWASM:
		return r.WASM, nil
	case BackendAuto:
		if req.Language == "javascript" && isLowComplexity(req.Code) {
			return r.WASM, nil
		}
		if r.Container != nil {
			return r.Container, nil
		}
		return r.Process, nil
	default:
		return nil, fmt.Errorf("unknown sandbox backend mode: %s", mode)
	}
}

// isLowComplexity is a coarse heuristic: short scripts with no
// require()/import that would be unsupported inside the embedded
// interpreter are eligible for the WASM backend.
func isLowComplexity(code string) bool {
	if strings.Contains(code, "require(") || strings.Contains(code, "import ") {
		return false
	}
	return len(code) < 4000
}

// ExecuteWithReflection runs req, classifies any failure, and retries
// up to maxRetries with a patch applied to the code (spec.md §4.8).
func (r *Runner) ExecuteWithReflection(ctx context.Context, req collab.ExecRequest, maxRetries int) (collab.ExecResult, error) {
	attempt := req
	var last collab.ExecResult
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		result, err := r.Execute(ctx, attempt)
		last, lastErr = result, err
		if err == nil && result.ExitCode == 0 {
			return result, nil
		}

		outcome := classify(result, err)
		if outcome == OutcomeSuccess || i == maxRetries {
			break
		}

		patched, patch, ok := applyKnownFix(outcome, attempt.Code, result.Stderr)
		if !ok {
			break
		}
		if r.OnReflection != nil {
			r.OnReflection(outcome, patch)
		}
		attempt.Code = patched
	}

	return last, lastErr
}

func classify(result collab.ExecResult, err error) Outcome {
	if result.TimedOut {
		return OutcomeTimeout
	}
	if result.ExitCode == 0 && err == nil {
		return OutcomeSuccess
	}
	stderr := strings.ToLower(result.Stderr)
	switch {
	case strings.Contains(stderr, "syntaxerror") || strings.Contains(stderr, "indentationerror"):
		return OutcomeSyntax
	case strings.Contains(stderr, "modulenotfounderror") || strings.Contains(stderr, "cannot find module") ||
		strings.Contains(stderr, "no module named"):
		return OutcomeDependency
	case result.ExitCode != 0:
		return OutcomeRuntime
	default:
		return OutcomeUnknown
	}
}

// applyKnownFix implements the three known fixes named in spec.md
// §4.8: indentation normalization, appending install hints, and
// wrapping with a timeout signal.
func applyKnownFix(outcome Outcome, code, stderr string) (patched string, description string, ok bool) {
	switch outcome {
	case OutcomeSyntax:
		return normalizeIndentation(code), "normalized indentation", true
	case OutcomeDependency:
		pkg := extractMissingModule(stderr)
		hint := "# hint: install missing dependency before running: " + pkg + "\n"
		return hint + code, "appended install hint for " + pkg, true
	case OutcomeTimeout:
		return wrapWithTimeoutSignal(code), "wrapped with timeout signal", true
	default:
		return code, "", false
	}
}

func normalizeIndentation(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lines[i] = strings.ReplaceAll(line, "\t", "    ")
	}
	return strings.Join(lines, "\n")
}

func extractMissingModule(stderr string) string {
	const marker = "no module named"
	idx := strings.Index(strings.ToLower(stderr), marker)
	if idx < 0 {
		return "unknown"
	}
	rest := strings.TrimSpace(stderr[idx+len(marker):])
	rest = strings.Trim(rest, "'\"\n ")
	if rest == "" {
		return "unknown"
	}
	fields := strings.Fields(rest)
	return fields[0]
}

func wrapWithTimeoutSignal(code string) string {
	return "import signal\n" +
		"signal.alarm(5)\n" +
		code
}
