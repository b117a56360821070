// Package autocore is the autonomous-execution core of an AI coding
// assistant: given a user request, it drives a long-running,
// self-supervising control loop that plans work, invokes language-model
// agents, executes code in sandboxes, runs tests, scores decisions against
// a multi-dimensional rubric, checkpoints state, detects pathological
// behavior, rolls back on failure, and decides whether to continue or
// halt.
//
// # Architecture
//
// The core is a closed-loop autonomous controller composed of a per-session
// finite-state machine (pkg/state), a scored decision engine (pkg/decision),
// a dependency-aware task queue (pkg/task), a safety layer (pkg/safety), a
// checkpoint store with operation- and session-level recovery
// (pkg/checkpoint), a rollback manager (pkg/rollback), a TDD executor
// (pkg/executor), a sandboxed code runner (pkg/sandbox), an evolution
// sub-loop (pkg/evolution), a knowledge store (pkg/knowledge), metrics and
// scoring (pkg/metrics), a next-step planner (pkg/planner), and an
// orchestrator (pkg/orchestrator) that ties the rest together for a single
// session.
//
// The LLM provider, sandbox execution primitives, project VCS, key-value
// persistence, event bus, and CLI/HTTP bridge are external collaborators;
// this module only depends on the interfaces it needs from them (see
// pkg/collab).
package autocore
