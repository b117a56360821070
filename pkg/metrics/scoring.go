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

import "github.com/loopforge/autocore/pkg/decision"

// The w* constants are the default quality and craziness weightings of
// spec.md §4.11.
const (
	wTestCoverage   = 0.25
	wCodeQuality    = 0.25
	wDecisionQual   = 0.20
	wEfficiency     = 0.15
	wSafety         = 0.15

	wAutonomy       = 0.35
	wSelfCorrection = 0.25
	wSpeed          = 0.20
	wRiskTaking     = 0.20
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// QualityScore computes the 0-100 quality score of spec.md §4.11 from
// the session's accumulated counters.
func (c *Collector) QualityScore() float64 {
	s := c.Snapshot()

	passRate := rate(s.testsPassed, s.testsPassed+s.testsFailed)
	tddCompletion := rate(s.tddPhaseSuccesses, s.tddPhaseTotal)
	testCountScore := clamp01(float64(s.testRuns) / 10)
	testCoverage := passRate*40 + tddCompletion*30 + testCountScore*30

	codeQuality := 100 * rate(s.tasksPassed, s.tasksTotal)

	approvalRate := rate(s.decisionsApproved, s.decisionsTotal)
	avgScore := 0.0
	if s.decisionScoreCount > 0 {
		avgScore = s.decisionScoreSum / float64(s.decisionScoreCount)
	}
	decisionQuality := 100 * (0.6*approvalRate + 0.4*(avgScore/10))

	tasksPerMinute := 0.0
	if s.elapsedMinutes > 0 {
		tasksPerMinute = float64(s.tasksTotal) / s.elapsedMinutes
	}
	tokensPerTask := 0.0
	if s.tasksTotal > 0 {
		tokensPerTask = float64(s.tokensUsed) / float64(s.tasksTotal)
	}
	efficiency := clamp01(tasksPerMinute/2)*60 + clamp01(1-tokensPerTask/5000)*40

	penalties := float64(s.rollbacks)*10 + float64(s.loopsDetected)*15 + float64(s.warnings)*5 + float64(s.tasksFailed)*5
	safety := 100 - penalties
	if safety < 0 {
		safety = 0
	}

	total := wTestCoverage*testCoverage + wCodeQuality*codeQuality + wDecisionQual*decisionQuality + wEfficiency*efficiency + wSafety*safety
	return clampScore(total)
}

// CrazinessScore computes the 0-100 "how autonomous/aggressive was
// this run" score of spec.md §4.11, plus the AutonomyLevel it maps to.
func (c *Collector) CrazinessScore() (float64, decision.AutonomyLevel) {
	s := c.Snapshot()

	interventionRate := rate(s.decisionsPaused+s.decisionsBlocked, s.decisionsTotal)
	autonomy := 100 * (1 - interventionRate)

	selfCorrection := clamp01(float64(s.rollbacks)/5) * 100

	tasksPerMinute := 0.0
	if s.elapsedMinutes > 0 {
		tasksPerMinute = float64(s.tasksTotal) / s.elapsedMinutes
	}
	speed := clamp01(tasksPerMinute/3) * 100

	avgScore := 0.0
	if s.decisionScoreCount > 0 {
		avgScore = s.decisionScoreSum / float64(s.decisionScoreCount)
	}
	approvalRate := rate(s.decisionsApproved, s.decisionsTotal)
	riskTaking := 100 * (0.5*(avgScore/10) + 0.5*approvalRate)

	total := wAutonomy*autonomy + wSelfCorrection*selfCorrection + wSpeed*speed + wRiskTaking*riskTaking
	total = clampScore(total)
	return total, autonomyLevelFor(total)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// autonomyThresholds maps a craziness score floor to the
// decision.AutonomyLevel it represents, checked from most to least
// aggressive (spec.md §4.11, §3).
var autonomyThresholds = []struct {
	floor float64
	level decision.AutonomyLevel
}{
	{90, decision.Lunatic},
	{75, decision.Insane},
	{60, decision.Crazy},
	{45, decision.Wild},
	{25, decision.Bold},
	{0, decision.Timid},
}

func autonomyLevelFor(score float64) decision.AutonomyLevel {
	for _, t := range autonomyThresholds {
		if score >= t.floor {
			return t.level
		}
	}
	return decision.Timid
}
