package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loopforge/autocore/pkg/collab"
	"github.com/loopforge/autocore/pkg/corerr"
)

// Queue holds the task-id-to-Task mapping for one session and
// enforces the dependency and concurrency rules of spec.md §4.2.
type Queue struct {
	mu            sync.RWMutex
	tasks         map[string]*Task
	order         []string // insertion order, for FIFO tie-breaking
	maxConcurrent int
	running       map[string]bool
	sessionID     string
	bus           collab.EventBus
}

// NewQueue constructs an empty queue bounded at maxConcurrent
// simultaneous running tasks (default 3 per spec.md §5).
func NewQueue(sessionID string, bus collab.EventBus, maxConcurrent int) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Queue{
		tasks:         make(map[string]*Task),
		maxConcurrent: maxConcurrent,
		running:       make(map[string]bool),
		sessionID:     sessionID,
		bus:           bus,
	}
}

// Add registers t, wires back-edges for its dependencies, and
// publishes task.created. It panics with a *corerr.FatalInternalError
// if adding t would create a dependency cycle — topological sort
// cycle detection is the one documented invariant violation that is
// fatal rather than a typed result (spec.md §7).
func (q *Queue) Add(ctx context.Context, t *Task) {
	q.mu.Lock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	q.tasks[t.ID] = t
	q.order = append(q.order, t.ID)

	for _, depID := range t.DependencyIDs {
		if dep, ok := q.tasks[depID]; ok {
			dep.DependentIDs = appendUnique(dep.DependentIDs, t.ID)
		}
	}
	q.mu.Unlock()

	if cycle := q.findCycle(); cycle != nil {
		panic(&corerr.FatalInternalError{
			Invariant: "task dependency DAG acyclic",
			Detail:    fmt.Sprintf("cycle detected: %v", cycle),
		})
	}

	q.bus.Publish(ctx, collab.EventTaskCreated, collab.Payload{
		SessionID: q.sessionID,
		Fields:    map[string]any{"task_id": t.ID, "subject": t.Subject},
	})
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// findCycle runs a depth-first topological check over the dependency
// graph and returns the cycle's task ids, or nil if the graph is a
// DAG.
func (q *Queue) findCycle() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(q.tasks))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return append(append([]string{}, path...), id)
		}
		state[id] = visiting
		path = append(path, id)
		t := q.tasks[id]
		if t != nil {
			for _, dep := range t.DependencyIDs {
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for id := range q.tasks {
		if state[id] == unvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Runnable returns the pending tasks whose dependencies are all
// completed, sorted by priority descending and creation time
// ascending, truncated to max_concurrent - |running| (spec.md §4.2).
func (q *Queue) Runnable() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	slots := q.maxConcurrent - len(q.running)
	if slots <= 0 {
		return nil
	}

	var candidates []*Task
	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status != StatusPending {
			continue
		}
		if q.dependenciesCompletedLocked(t) {
			candidates = append(candidates, t)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := priorityRank[candidates[i].Priority], priorityRank[candidates[j].Priority]
		if pi != pj {
			return pi < pj
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	if len(candidates) > slots {
		candidates = candidates[:slots]
	}
	return candidates
}

func (q *Queue) dependenciesCompletedLocked(t *Task) bool {
	for _, depID := range t.DependencyIDs {
		dep, ok := q.tasks[depID]
		if !ok || dep.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Start transitions a pending task to running. It is the only path by
// which a task may observe StatusRunning (spec.md §4.2 invariant).
func (q *Queue) Start(ctx context.Context, id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("unknown task %q", id)
	}
	if t.Status != StatusPending {
		q.mu.Unlock()
		return fmt.Errorf("task %q not pending (status=%s)", id, t.Status)
	}
	t.Status = StatusRunning
	t.StartedAt = time.Now()
	q.running[id] = true
	q.mu.Unlock()

	q.bus.Publish(ctx, collab.EventTaskStarted, collab.Payload{
		SessionID: q.sessionID,
		Fields:    map[string]any{"task_id": id},
	})
	return nil
}

// Complete marks a running task completed.
func (q *Queue) Complete(ctx context.Context, id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("unknown task %q", id)
	}
	if t.Status != StatusRunning {
		q.mu.Unlock()
		return fmt.Errorf("task %q not running (status=%s)", id, t.Status)
	}
	t.Status = StatusCompleted
	t.CompletedAt = time.Now()
	delete(q.running, id)
	q.mu.Unlock()

	q.bus.Publish(ctx, collab.EventTaskCompleted, collab.Payload{
		SessionID: q.sessionID,
		Fields:    map[string]any{"task_id": id},
	})
	return nil
}

// Fail records a task failure. When retryable and the retry budget
// remains, the task returns to pending with an incremented retry
// count; otherwise it is marked failed.
func (q *Queue) Fail(ctx context.Context, id string, execErr error, retryable bool) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("unknown task %q", id)
	}
	if t.Status != StatusRunning {
		q.mu.Unlock()
		return fmt.Errorf("task %q not running (status=%s)", id, t.Status)
	}
	delete(q.running, id)
	t.LastError = execErr.Error()

	if retryable && t.RetryCount < t.MaxRetries {
		t.RetryCount++
		t.Status = StatusPending
	} else {
		t.Status = StatusFailed
		t.CompletedAt = time.Now()
	}
	status := t.Status
	q.mu.Unlock()

	q.bus.Publish(ctx, collab.EventTaskFailed, collab.Payload{
		SessionID: q.sessionID,
		Fields:    map[string]any{"task_id": id, "error": execErr.Error(), "status": string(status)},
	})
	return nil
}

// Skip marks a pending task skipped.
func (q *Queue) Skip(ctx context.Context, id, reason string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("unknown task %q", id)
	}
	t.Status = StatusSkipped
	t.CompletedAt = time.Now()
	q.mu.Unlock()

	q.bus.Publish(ctx, collab.EventTaskFailed, collab.Payload{
		SessionID: q.sessionID,
		Fields:    map[string]any{"task_id": id, "skipped_reason": reason},
	})
	return nil
}

// Block marks a pending task blocked (e.g. an unmet external
// precondition, distinct from a dependency that simply has not
// completed yet).
func (q *Queue) Block(ctx context.Context, id, reason string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("unknown task %q", id)
	}
	t.Status = StatusBlocked
	q.mu.Unlock()

	q.bus.Publish(ctx, collab.EventTaskFailed, collab.Payload{
		SessionID: q.sessionID,
		Fields:    map[string]any{"task_id": id, "blocked_reason": reason},
	})
	return nil
}

// Retry moves a blocked or failed task back to pending, resetting
// neither its retry count nor its dependency edges.
func (q *Queue) Retry(ctx context.Context, id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("unknown task %q", id)
	}
	t.Status = StatusPending
	q.mu.Unlock()

	q.bus.Publish(ctx, collab.EventTaskCreated, collab.Payload{
		SessionID: q.sessionID,
		Fields:    map[string]any{"task_id": id, "retried": true},
	})
	return nil
}

// Get returns the task for id.
func (q *Queue) Get(id string) (*Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.tasks[id]
	return t, ok
}

// RunExecutor is the function signature the queue drives each
// runnable task through.
type RunExecutor func(ctx context.Context, t *Task) error

// RunCycle executes every currently-runnable task concurrently,
// bounded by max_concurrent, and waits for all of them to finish
// (start/complete/fail mutators are invoked by RunCycle itself so
// callers only provide the execution body).
func (q *Queue) RunCycle(ctx context.Context, exec RunExecutor) error {
	runnable := q.Runnable()
	if len(runnable) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range runnable {
		t := t
		g.Go(func() error {
			if err := q.Start(gctx, t.ID); err != nil {
				return err
			}
			if err := exec(gctx, t); err != nil {
				return q.Fail(gctx, t.ID, err, true)
			}
			return q.Complete(gctx, t.ID)
		})
	}
	return g.Wait()
}
