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

package rollback

import (
	"context"

	"github.com/loopforge/autocore/pkg/safety"
)

// TestResult summarizes a test run for HandleTestFailure's
// failure-rate gate (spec.md §4.6).
type TestResult struct {
	Total  int
	Failed int
}

// FailureRate is Failed/Total, or 0 when Total is 0.
func (r TestResult) FailureRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Failed) / float64(r.Total)
}

// HandleTestFailure rolls back only when the failure rate exceeds 50%
// (spec.md §4.6): an isolated flaky test is not worth a rollback, a
// majority-failing run is.
func (m *Manager) HandleTestFailure(ctx context.Context, result TestResult) (Outcome, bool) {
	if result.FailureRate() <= 0.5 {
		return Outcome{}, false
	}
	return m.RestoreLatest(ctx, TriggerTestFailure), true
}

// HandleVerificationFailure rolls back to the latest checkpoint when
// the type-check step failed (spec.md §4.6, §8 property 5).
func (m *Manager) HandleVerificationFailure(ctx context.Context, typecheckFailed bool) (Outcome, bool) {
	if !typecheckFailed {
		return Outcome{}, false
	}
	return m.RestoreLatest(ctx, TriggerVerificationFailure), true
}

// HandleResourceExceeded rolls back to the latest checkpoint whenever
// a resource axis is exhausted (spec.md §4.6).
func (m *Manager) HandleResourceExceeded(ctx context.Context, axis string) Outcome {
	return m.RestoreLatest(ctx, TriggerResourceExceeded)
}

// HandleLoopDetected rolls back to break a detected behavioral loop
// (spec.md §4.6, §8 property 3).
func (m *Manager) HandleLoopDetected(ctx context.Context, loopType safety.LoopType) Outcome {
	return m.RestoreLatest(ctx, TriggerLoopDetected)
}
