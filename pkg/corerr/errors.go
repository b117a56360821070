package corerr

import "fmt"

// InvalidTransitionError is returned when the state machine rejects a
// requested transition (spec.md §4.1, §7).
type InvalidTransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// ResourceExceededError is returned when a resource budget axis is
// exhausted (spec.md §4.5(a), §7).
type ResourceExceededError struct {
	Axis      string
	Used      float64
	Limit     float64
	SessionID string
}

func (e *ResourceExceededError) Error() string {
	return fmt.Sprintf("resource %s exceeded: %.2f/%.2f (session %s)", e.Axis, e.Used, e.Limit, e.SessionID)
}

// LoopDetectedError is returned when the safety core's behavioral
// guard fires (spec.md §4.5(b), §7).
type LoopDetectedError struct {
	LoopType string
	Detail   string
}

func (e *LoopDetectedError) Error() string {
	return fmt.Sprintf("loop detected (%s): %s", e.LoopType, e.Detail)
}

// DestructiveBlockedError is returned when the destructive-op gate
// refuses an operation (spec.md §4.5(c), §7).
type DestructiveBlockedError struct {
	Category string
	Risk     string
	Reason   string
}

func (e *DestructiveBlockedError) Error() string {
	return fmt.Sprintf("destructive operation blocked (%s, risk=%s): %s", e.Category, e.Risk, e.Reason)
}

// ExecutionFailureError is returned when a sandbox run or test
// execution returns a nonzero exit code (spec.md §4.7-4.8, §7). The
// reflector classifies it before the executor decides retry vs
// escalate.
type ExecutionFailureError struct {
	ExitCode int
	Stderr   string
	TimedOut bool
}

func (e *ExecutionFailureError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("execution timed out (exit=%d)", e.ExitCode)
	}
	return fmt.Sprintf("execution failed with exit code %d: %s", e.ExitCode, e.Stderr)
}

// VerificationFailureError is returned when type-check/lint/coverage
// fails during the Executor's verification step (spec.md §4.7, §7).
type VerificationFailureError struct {
	TypecheckFailed bool
	LintFailed      bool
	CoverageBelow   bool
}

func (e *VerificationFailureError) Error() string {
	return fmt.Sprintf("verification failed: typecheck=%v lint=%v coverage=%v",
		e.TypecheckFailed, e.LintFailed, e.CoverageBelow)
}

// AgentFailureError is returned when an LLM agent invocation errors or
// returns unparseable output (spec.md §7).
type AgentFailureError struct {
	Agent string
	Cause error
}

func (e *AgentFailureError) Error() string {
	return fmt.Sprintf("agent %q failed: %v", e.Agent, e.Cause)
}

func (e *AgentFailureError) Unwrap() error { return e.Cause }

// PersistenceFailureError wraps a KV/file I/O failure. It is logged,
// never fatal to the session (spec.md §7: "does not abort the
// session").
type PersistenceFailureError struct {
	Op    string
	Cause error
}

func (e *PersistenceFailureError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Cause)
}

func (e *PersistenceFailureError) Unwrap() error { return e.Cause }

// VCSFailureError wraps a VCS driver failure (non-existent commit,
// dirty tree, etc.).
type VCSFailureError struct {
	Op    string
	Cause error
}

func (e *VCSFailureError) Error() string {
	return fmt.Sprintf("vcs failure during %s: %v", e.Op, e.Cause)
}

func (e *VCSFailureError) Unwrap() error { return e.Cause }

// FatalInternalError signals an invariant violation. The only place
// autocore panics is via this type, wrapped by the caller immediately
// before panic(), never propagated as a normal error value.
type FatalInternalError struct {
	Invariant string
	Detail    string
}

func (e *FatalInternalError) Error() string {
	return fmt.Sprintf("fatal internal error: invariant %q violated: %s", e.Invariant, e.Detail)
}
