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

package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loopforge/autocore/pkg/collab"
)

// Collector tracks the counters of spec.md §4.11 and exposes them
// both as Prometheus series and as the raw running sums the quality
// and craziness score formulas need. It is wired to a session's
// EventBus via Subscribe and is safe for concurrent use.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	tasksTotal     *prometheus.CounterVec
	decisionsTotal *prometheus.CounterVec
	testRuns       *prometheus.CounterVec
	tddPhases      *prometheus.CounterVec
	safetyEvents   *prometheus.CounterVec
	stateTransit   *prometheus.CounterVec
	resourceUsage  *prometheus.GaugeVec
	decisionScore  prometheus.Histogram

	mu sync.Mutex
	s  snapshot
}

// snapshot holds the raw counters the scoring formulas read. Kept
// separate from the Prometheus vectors because score computation needs
// plain sums and rates, not label cardinality.
type snapshot struct {
	tasksTotal, tasksPassed, tasksFailed, tasksSkipped int
	decisionsTotal, decisionsApproved, decisionsPaused int
	decisionsBlocked                                   int
	decisionScoreSum                                   float64
	decisionScoreCount                                 int
	testRuns, testsPassed, testsFailed                 int
	tddPhaseSuccesses, tddPhaseTotal                   int
	rollbacks, loopsDetected, warnings                 int
	stateTransitions                                   int
	elapsedMinutes                                     float64
	tokensUsed                                          int
}

// New constructs a Collector with its own Prometheus registry.
func New(cfg Config) *Collector {
	cfg.SetDefaults()
	c := &Collector{config: cfg, registry: prometheus.NewRegistry()}

	c.tasksTotal = c.counterVec("tasks_total", "Total tasks by outcome.", "outcome")
	c.decisionsTotal = c.counterVec("decisions_total", "Total decisions by result.", "result")
	c.testRuns = c.counterVec("test_runs_total", "Total test runs by outcome.", "outcome")
	c.tddPhases = c.counterVec("tdd_phase_total", "Total TDD phase outcomes.", "phase", "outcome")
	c.safetyEvents = c.counterVec("safety_events_total", "Total safety events by kind.", "kind")
	c.stateTransit = c.counterVec("state_transitions_total", "Total state machine transitions.", "from", "to")
	c.resourceUsage = c.gaugeVec("resource_usage", "Current resource usage by axis.", "axis")
	c.decisionScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Name:      "decision_score",
		Help:      "Distribution of CLOSE decision scores (0-10).",
		Buckets:   prometheus.LinearBuckets(0, 1, 11),
	})
	c.registry.MustRegister(c.decisionScore)

	return c
}

func (c *Collector) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: c.config.Namespace, Name: name, Help: help}, labels)
	c.registry.MustRegister(v)
	return v
}

func (c *Collector) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: c.config.Namespace, Name: name, Help: help}, labels)
	c.registry.MustRegister(v)
	return v
}

// Registry returns the Prometheus registry backing this Collector.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns an HTTP handler serving this Collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Subscribe wires the Collector to bus, deriving every counter in
// spec.md §4.11 from the fixed event vocabulary (pkg/collab) rather
// than requiring call sites to report metrics directly.
func (c *Collector) Subscribe(bus collab.EventBus) {
	bus.Subscribe(collab.EventTaskCompleted, c.onTaskCompleted)
	bus.Subscribe(collab.EventTaskFailed, c.onTaskFailed)
	bus.Subscribe(collab.EventDecisionMade, c.onDecisionMade)
	bus.Subscribe(collab.EventTDDCycleCompleted, c.onTDDCycleCompleted)
	bus.Subscribe(collab.EventRollbackPerformed, c.onRollback)
	bus.Subscribe(collab.EventLoopDetected, c.onLoopDetected)
	bus.Subscribe(collab.EventResourceWarning, c.onResourceWarning)
	bus.Subscribe(collab.EventResourceExceeded, c.onResourceExceeded)
	bus.Subscribe(collab.EventStateChanged, c.onStateChanged)
}

func (c *Collector) onTaskCompleted(_ context.Context, _ collab.EventDef, _ collab.Payload) {
	c.mu.Lock()
	c.s.tasksTotal++
	c.s.tasksPassed++
	c.mu.Unlock()
	c.tasksTotal.WithLabelValues("completed").Inc()
}

func (c *Collector) onTaskFailed(_ context.Context, _ collab.EventDef, p collab.Payload) {
	outcome := "failed"
	if _, ok := p.Fields["skipped_reason"]; ok {
		outcome = "skipped"
	} else if _, ok := p.Fields["blocked_reason"]; ok {
		outcome = "blocked"
	}

	c.mu.Lock()
	c.s.tasksTotal++
	if outcome == "skipped" {
		c.s.tasksSkipped++
	} else {
		c.s.tasksFailed++
	}
	c.mu.Unlock()
	c.tasksTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) onDecisionMade(_ context.Context, _ collab.EventDef, p collab.Payload) {
	result, _ := p.Fields["result"].(string)
	score, _ := p.Fields["score"].(float64)

	c.mu.Lock()
	c.s.decisionsTotal++
	c.s.decisionScoreSum += score
	c.s.decisionScoreCount++
	switch result {
	case "proceed", "proceed_with_caution":
		c.s.decisionsApproved++
	case "pause":
		c.s.decisionsPaused++
	case "block":
		c.s.decisionsBlocked++
	}
	c.mu.Unlock()

	c.decisionsTotal.WithLabelValues(result).Inc()
	c.decisionScore.Observe(score)
}

func (c *Collector) onTDDCycleCompleted(_ context.Context, _ collab.EventDef, p collab.Payload) {
	success, _ := p.Fields["success"].(bool)
	outcome := "failure"
	c.mu.Lock()
	c.s.tddPhaseTotal++
	if success {
		c.s.tddPhaseSuccesses++
		outcome = "success"
	}
	c.mu.Unlock()
	c.tddPhases.WithLabelValues("cycle", outcome).Inc()
}

func (c *Collector) onRollback(_ context.Context, _ collab.EventDef, _ collab.Payload) {
	c.mu.Lock()
	c.s.rollbacks++
	c.mu.Unlock()
	c.safetyEvents.WithLabelValues("rollback").Inc()
}

func (c *Collector) onLoopDetected(_ context.Context, _ collab.EventDef, _ collab.Payload) {
	c.mu.Lock()
	c.s.loopsDetected++
	c.mu.Unlock()
	c.safetyEvents.WithLabelValues("loop_detected").Inc()
}

func (c *Collector) onResourceWarning(_ context.Context, _ collab.EventDef, p collab.Payload) {
	c.mu.Lock()
	c.s.warnings++
	c.mu.Unlock()
	c.safetyEvents.WithLabelValues("warning").Inc()
	c.recordResourceGauge(p)
}

func (c *Collector) onResourceExceeded(_ context.Context, _ collab.EventDef, p collab.Payload) {
	c.safetyEvents.WithLabelValues("resource_exceeded").Inc()
	c.recordResourceGauge(p)
}

func (c *Collector) recordResourceGauge(p collab.Payload) {
	axis, _ := p.Fields["axis"].(string)
	if axis == "" {
		return
	}
	if used, ok := p.Fields["used"].(float64); ok {
		c.resourceUsage.WithLabelValues(axis).Set(used)
	}
	if axis == "elapsed_minutes" {
		if used, ok := p.Fields["used"].(float64); ok {
			c.mu.Lock()
			c.s.elapsedMinutes = used
			c.mu.Unlock()
		}
	}
	if axis == "tokens" {
		if used, ok := p.Fields["used"].(float64); ok {
			c.mu.Lock()
			c.s.tokensUsed = int(used)
			c.mu.Unlock()
		}
	}
}

func (c *Collector) onStateChanged(_ context.Context, _ collab.EventDef, p collab.Payload) {
	from, _ := p.Fields["from"].(string)
	to, _ := p.Fields["to"].(string)
	c.mu.Lock()
	c.s.stateTransitions++
	c.mu.Unlock()
	c.stateTransit.WithLabelValues(from, to).Inc()
}

// RecordTestRun records a single test run outside the event bus
// (the Orchestrator calls this directly with the pass/fail tally of a
// verification run, since that detail does not appear on
// tdd.cycle_completed).
func (c *Collector) RecordTestRun(passed, failed int) {
	c.mu.Lock()
	c.s.testRuns++
	c.s.testsPassed += passed
	c.s.testsFailed += failed
	c.mu.Unlock()

	if failed == 0 {
		c.testRuns.WithLabelValues("passed").Inc()
	} else {
		c.testRuns.WithLabelValues("failed").Inc()
	}
}

// Snapshot returns a copy of the raw counters for score computation.
func (c *Collector) Snapshot() snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
